package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/metrics"
)

// webhookQueueSize is the bounded channel capacity for outbound events.
const webhookQueueSize = 1024

// Webhook POSTs events to an HTTP endpoint. Events are enqueued
// non-blockingly into a bounded channel and sent by a background goroutine.
// If the channel is full, Notify returns ErrQueueFull and the event is dropped.
type Webhook struct {
	url        string
	authHeader *memguard.Enclave // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
	events     chan Message
	wg         sync.WaitGroup

	mu     sync.RWMutex // guards closed and sends on events
	closed bool
}

var _ certificate.Notifier = (*Webhook)(nil)

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.client = c
	}
}

// WithWebhookLogger sets the logger for delivery failures.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = l
	}
}

// NewWebhook creates a webhook dispatcher and starts its background loop.
// The auth header is held in a memguard enclave while idle.
func NewWebhook(url, authHeader string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		logger:     slog.Default(),
		events:     make(chan Message, webhookQueueSize),
	}
	if authHeader != "" {
		w.authHeader = memguard.NewEnclave([]byte(authHeader))
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Notify enqueues ev. It never blocks and returns ErrClosed after Close.
func (w *Webhook) Notify(_ context.Context, ev certificate.Event) error {
	m := NewMessage(ev)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return fmt.Errorf("webhook %s: %w", m.UniqueID, ErrClosed)
	}
	select {
	case w.events <- m:
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues("webhook", "dropped").Inc()
		return fmt.Errorf("webhook %s: %w", m.UniqueID, ErrQueueFull)
	}
}

// Close shuts down the dispatcher, draining any remaining events.
func (w *Webhook) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}

func (w *Webhook) loop() {
	defer w.wg.Done()
	for m := range w.events {
		if w.send(m) {
			metrics.NotificationsTotal.WithLabelValues("webhook", "ok").Inc()
		} else {
			metrics.NotificationsTotal.WithLabelValues("webhook", "failed").Inc()
		}
	}
}

// send POSTs the message with one retry on 5xx or transport errors.
func (w *Webhook) send(m Message) bool {
	body, err := json.Marshal(m)
	if err != nil {
		w.logger.Warn("webhook: marshal failed", "error", err)
		return false
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("webhook: request creation failed", "error", err)
			return false
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "IronCert-Webhook/1.0")
		if err := w.setAuth(req); err != nil {
			w.logger.Warn("webhook: opening auth header failed", "error", err)
			return false
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
		if resp.StatusCode >= 500 {
			w.logger.Warn("webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		// 4xx: client error, not retried.
		w.logger.Warn("webhook: client error", "status", resp.StatusCode)
		return false
	}
	return false
}

func (w *Webhook) setAuth(req *http.Request) error {
	if w.authHeader == nil {
		return nil
	}
	buf, err := w.authHeader.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	name, value, ok := strings.Cut(buf.String(), ":")
	if ok {
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return nil
}
