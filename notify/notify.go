// Package notify delivers certificate issuance events to external sinks.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/uuid"
)

var (
	// ErrQueueFull is returned when an asynchronous sink drops an event.
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed is returned by Notify after the sink has been closed.
	ErrClosed = errors.New("notification sink closed")
)

// Message is the wire form of an issuance event. The generated body is not
// included; consumers can match Fingerprint against a rendering instead.
type Message struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	IsNew       bool   `json:"is_new"`
	Timestamp   string `json:"timestamp"`
	UniqueID    string `json:"unique_certificate_id"`
	CertID      int64  `json:"certificate_id"`
	TemplateID  int64  `json:"certificate_template_id"`
	UserID      int64  `json:"user_id"`
	Client      string `json:"client,omitempty"`
	ClientID    int64  `json:"client_id,omitempty"`
	IssuedOn    string `json:"issued_on"`
	ExpiredOn   string `json:"expired_on"`
	Fingerprint string `json:"fingerprint"`
}

// NewMessage converts ev to its wire form with a fresh message id.
func NewMessage(ev certificate.Event) Message {
	m := Message{
		ID:        uuid.New(),
		Type:      ev.Type,
		IsNew:     ev.IsNew,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if c := ev.Certificate; c != nil {
		m.UniqueID = c.UniqueID
		m.CertID = c.ID
		m.TemplateID = c.TemplateID
		m.UserID = c.UserID
		m.Client = c.Client
		m.ClientID = c.ClientID
		m.IssuedOn = c.IssuedOn.UTC().Format(time.RFC3339)
		m.ExpiredOn = c.ExpiredOn.String()
		m.Fingerprint = certificate.Fingerprint(c)
	}
	return m
}

// Log writes each event to a structured logger.
type Log struct {
	logger *slog.Logger
}

var _ certificate.Notifier = (*Log)(nil)

// NewLog returns a sink logging to logger, or slog.Default when nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With(slog.String("component", "notify"))}
}

func (l *Log) Notify(ctx context.Context, ev certificate.Event) error {
	m := NewMessage(ev)
	l.logger.LogAttrs(ctx, slog.LevelInfo, "certificate event",
		slog.String("type", m.Type),
		slog.Bool("is_new", m.IsNew),
		slog.String("unique_certificate_id", m.UniqueID),
		slog.Int64("user_id", m.UserID),
		slog.String("expired_on", m.ExpiredOn),
	)
	return nil
}

// Multi fans an event out to several sinks. Every sink is called; their
// errors are joined.
type Multi []certificate.Notifier

var _ certificate.Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, ev certificate.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
