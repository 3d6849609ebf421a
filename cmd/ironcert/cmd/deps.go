package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/config"
	"github.com/jmcleod/ironcert/notify"
	"github.com/jmcleod/ironcert/render"
	"github.com/jmcleod/ironcert/storage"
	bboltstorage "github.com/jmcleod/ironcert/storage/bbolt"
	"github.com/jmcleod/ironcert/storage/memory"
	"github.com/jmcleod/ironcert/storage/postgres"
	redisstorage "github.com/jmcleod/ironcert/storage/redis"
)

// backend bundles the configured stores and everything that must be closed
// when the command exits.
type backend struct {
	certs     storage.CertificateRepository
	templates storage.TemplateStore
	closers   []func() error
}

func (b *backend) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		repo := memory.NewRepository()
		b.certs, b.templates = repo, repo
	case config.DriverBBolt:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.Storage.DataDir, "ironcert.db"), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open certificate storage: %w", err)
		}
		b.certs, b.templates = repo, repo
		b.onClose(repo.Close)
	case config.DriverPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open certificate storage: %w", err)
		}
		b.certs, b.templates = repo, repo
		b.onClose(func() error { repo.Close(); return nil })
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return b, nil
}

// certificateOptions builds the issuer, validator and loader options from
// cfg. Cache and notification sinks register their cleanup on b.
func certificateOptions(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *backend) ([]certificate.Option, error) {
	opts := []certificate.Option{
		certificate.WithLogger(logger),
		certificate.WithCSSInliner(render.NewPremailerInliner()),
		certificate.WithMaxInsertAttempts(cfg.Certificate.MaxInsertAttempts),
		certificate.WithDefaults(certificate.IssueDefaults{
			Prefix:      cfg.Certificate.Prefix,
			Length:      cfg.Certificate.RandomLength,
			FixedLength: cfg.Certificate.Fixed(),
		}),
	}

	if cfg.Cache.RedisAddr != "" {
		cache, err := redisstorage.NewCacheFromAddr(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.onClose(cache.Close)
		opts = append(opts, certificate.WithCache(cache))
	} else {
		opts = append(opts, certificate.WithCache(certificate.NewMemoryCache(cfg.Cache.TTL)))
	}

	if n := buildNotifier(cfg, logger, b); n != nil {
		opts = append(opts, certificate.WithNotifier(n))
	}
	return opts, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger, b *backend) certificate.Notifier {
	var sinks notify.Multi
	if cfg.Notify.Log {
		sinks = append(sinks, notify.NewLog(logger))
	}
	if cfg.Notify.WebhookURL != "" {
		wh := notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookAuthHeader, notify.WithWebhookLogger(logger))
		b.onClose(wh.Close)
		sinks = append(sinks, wh)
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, notify.WithKafkaLogger(logger))
		b.onClose(k.Close)
		sinks = append(sinks, k)
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

func newPDFRenderer(cfg *config.Config) *render.PDFRenderer {
	opts := []render.PDFOption{render.WithDPI(cfg.Export.DPI)}
	if cfg.Export.WkhtmltopdfPath != "" {
		opts = append(opts, render.WithBinaryPath(cfg.Export.WkhtmltopdfPath))
	}
	return render.NewPDFRenderer(opts...)
}
