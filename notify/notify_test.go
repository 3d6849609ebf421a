package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/metrics"
)

func testEvent() certificate.Event {
	return certificate.Event{
		Type:      certificate.EventCertificateIssued,
		IsNew:     true,
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Certificate: &certificate.Certificate{
			ID:            4,
			UniqueID:      "CERT-55555",
			TemplateID:    2,
			UserID:        9,
			Client:        "course",
			ClientID:      3,
			GeneratedBody: "<p>secret body</p>",
			State:         certificate.StateActive,
			IssuedOn:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestNewMessage(t *testing.T) {
	ev := testEvent()
	m := NewMessage(ev)
	assert.Len(t, m.ID, 36)
	assert.Equal(t, "CertificateIssued", m.Type)
	assert.Equal(t, "CERT-55555", m.UniqueID)
	assert.Equal(t, certificate.NullDate, m.ExpiredOn)
	assert.Equal(t, certificate.Fingerprint(ev.Certificate), m.Fingerprint)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret body")
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, l.Notify(context.Background(), testEvent()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notify", entry["component"])
	assert.Equal(t, "CERT-55555", entry["unique_certificate_id"])
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, certificate.Event) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a failed")
	a := &stubNotifier{err: errA}
	b := &stubNotifier{}
	err := Multi{a, nil, b}.Notify(context.Background(), testEvent())
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "later sinks still run after a failure")

	assert.NoError(t, Multi{b}.Notify(context.Background(), testEvent()))
}

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	err     error
	release chan struct{} // when set, writes block until it is closed
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) written() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func TestKafka(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "certificates")
	require.NoError(t, k.Notify(context.Background(), testEvent()))
	require.NoError(t, k.Close())

	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("CERT-55555"), msgs[0].Key)
	assert.True(t, w.closed, "Close closes the producer")

	var m Message
	require.NoError(t, json.Unmarshal(msgs[0].Value, &m))
	assert.Equal(t, int64(9), m.UserID)
	assert.Equal(t, "event_type", msgs[0].Headers[0].Key)
}

func TestKafka_WriteFailureIsCounted(t *testing.T) {
	failed := metrics.NotificationsTotal.WithLabelValues("kafka", "failed")
	before := testutil.ToFloat64(failed)

	k := newKafka(&fakeWriter{err: errors.New("broker down")}, "certificates",
		WithKafkaLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, k.Notify(context.Background(), testEvent()), "write errors surface in metrics, not to the caller")
	require.NoError(t, k.Close())

	assert.InDelta(t, before+1, testutil.ToFloat64(failed), 1e-9)
}

func TestKafka_NotifyDoesNotWaitForBroker(t *testing.T) {
	w := &fakeWriter{release: make(chan struct{})}
	k := newKafka(w, "certificates")

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, k.Notify(context.Background(), testEvent()))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, w.written(), "writer is still blocked")

	close(w.release)
	require.NoError(t, k.Close())
	assert.Len(t, w.written(), 5, "Close drains the queue")
}

func TestKafka_QueueFullDrops(t *testing.T) {
	w := &fakeWriter{release: make(chan struct{})}
	k := newKafka(w, "certificates")

	var dropped int
	for i := 0; i < kafkaQueueSize+10; i++ {
		if err := k.Notify(context.Background(), testEvent()); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			dropped++
		}
	}
	assert.Positive(t, dropped)

	close(w.release)
	require.NoError(t, k.Close())
}

func TestKafka_NotifyAfterClose(t *testing.T) {
	k := newKafka(&fakeWriter{}, "certificates")
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	assert.ErrorIs(t, k.Notify(context.Background(), testEvent()), ErrClosed)
}

func TestNewKafka(t *testing.T) {
	k := NewKafka([]string{"localhost:9092"}, "certificates")
	writer, ok := k.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "certificates", writer.Topic)
	assert.Equal(t, kafkaBatchTimeout, writer.BatchTimeout)
	require.NoError(t, k.Close())
}
