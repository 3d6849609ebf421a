package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/ironcert/storage"
)

// Loader reads certificates by internal id and performs administrative
// state changes. Reads go through the optional Cache; correctness never
// depends on it.
type Loader struct {
	certs  storage.CertificateRepository
	cache  Cache
	now    func() time.Time
	logger *slog.Logger
}

// NewLoader returns a Loader. WithCache, WithClock and WithLogger apply.
func NewLoader(certs storage.CertificateRepository, opts ...Option) *Loader {
	o := newOptions(opts)
	return &Loader{certs: certs, cache: o.cache, now: o.now, logger: o.logger}
}

// Load returns the certificate with internal id. A zero id yields ErrNotFound.
func (l *Loader) Load(ctx context.Context, id int64) (*Certificate, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	if l.cache != nil {
		c, ok, err := l.cache.Get(ctx, id)
		if err != nil {
			l.logger.Warn("certificate cache read failed", slog.Int64("id", id), slog.String("error", err.Error()))
		} else if ok {
			return c, nil
		}
	}

	rec, err := l.certs.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("certificate %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading certificate %d: %w", id, err)
	}
	c := fromRecord(rec)
	if l.cache != nil {
		if err := l.cache.Put(ctx, c); err != nil {
			l.logger.Warn("certificate cache write failed", slog.Int64("id", id), slog.String("error", err.Error()))
		}
	}
	return c, nil
}

// SetState activates or deactivates a certificate. Only StateActive and
// StateInactive are accepted.
func (l *Loader) SetState(ctx context.Context, id int64, state int) error {
	if state != StateActive && state != StateInactive {
		return fmt.Errorf("state %d: %w", state, ErrInvalidState)
	}
	err := l.certs.SetState(ctx, id, state)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("certificate %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating certificate %d: %w", id, err)
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, id); err != nil {
			l.logger.Warn("certificate cache invalidation failed", slog.Int64("id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

// ListIssued returns the certificates issued to userID within one client
// context. All three filters are required. With expiredOnly set, only
// certificates whose expiry has passed are returned.
func (l *Loader) ListIssued(ctx context.Context, client string, clientID, userID int64, expiredOnly bool) ([]*Certificate, error) {
	switch {
	case client == "":
		return nil, issuanceErrorf(ErrEmptyRequiredField, "client", nil)
	case clientID == 0:
		return nil, issuanceErrorf(ErrEmptyRequiredField, "client_id", nil)
	case userID == 0:
		return nil, issuanceErrorf(ErrEmptyRequiredField, "user_id", nil)
	}
	recs, err := l.certs.List(ctx, storage.CertificateFilter{
		Client:      client,
		ClientID:    clientID,
		UserID:      userID,
		ExpiredOnly: expiredOnly,
		Now:         l.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}
	out := make([]*Certificate, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}
