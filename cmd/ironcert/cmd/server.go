package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/api"
	"github.com/jmcleod/ironcert/internal/config"
	"github.com/jmcleod/ironcert/internal/metrics"
	"github.com/jmcleod/ironcert/internal/telemetry"
	"github.com/jmcleod/ironcert/internal/util"
)

var (
	port           int
	trustedProxies []string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the certificate service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := cfg.Logging.NewLogger(os.Stderr)
		ctx := cmd.Context()

		shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
		if err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
		defer shutdownTracer(context.Background())

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}

		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				logger.Error("closing backend", slog.String("error", err.Error()))
			}
		}()

		certOpts, err := certificateOptions(ctx, cfg, logger, b)
		if err != nil {
			return err
		}

		apiOpts := []api.Option{
			api.WithLogger(logger),
			api.WithCertificateOptions(certOpts...),
			api.WithVerifyRateLimit(cfg.RateLimit.VerifyRPS, cfg.RateLimit.VerifyBurst),
			api.WithPublicBaseURL(cfg.Server.PublicBaseURL),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("anomaly detected",
					slog.String("alert", string(e.Type)),
					slog.Int("count", e.Count),
					slog.Int("threshold", e.Threshold),
				)
			}),
		}
		if pdf := newPDFRenderer(cfg); pdf.Available() {
			apiOpts = append(apiOpts, api.WithRenderer(pdf))
		} else {
			logger.Warn("wkhtmltopdf not found, certificate downloads are disabled")
		}
		if len(trustedProxies) > 0 {
			opt, err := api.WithTrustedProxies(trustedProxies)
			if err != nil {
				return err
			}
			apiOpts = append(apiOpts, opt)
		}
		a := api.New(b.certs, b.templates, apiOpts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())

		r.Mount(api.BasePath, a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		}
		if !cfg.Server.PlainHTTP {
			tlsConfig, err := serverTLSConfig(cfg.Server)
			if err != nil {
				return err
			}
			server.TLSConfig = tlsConfig
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if cfg.Server.PlainHTTP {
				err = server.ListenAndServe()
			} else {
				err = server.ListenAndServeTLS("", "")
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (storage: %s)...\n", cfg.Server.Port, cfg.Storage.Driver)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func serverTLSConfig(sc config.ServerConfig) (*tls.Config, error) {
	if sc.TLSCert != "" && sc.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(sc.TLSCert, sc.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	}
	cert, err := util.GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	fmt.Println("Using self-signed runtime generated certificate for TLS")
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDR ranges whose X-Forwarded-For headers are trusted")
}
