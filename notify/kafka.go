package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jmcleod/ironcert/certificate"
	"github.com/jmcleod/ironcert/internal/metrics"
)

const (
	// kafkaQueueSize is the bounded channel capacity for outbound messages.
	kafkaQueueSize = 1024
	// kafkaWriteTimeout caps one WriteMessages call made by the worker.
	kafkaWriteTimeout = 10 * time.Second
	// kafkaBatchTimeout is how long the writer waits to fill a batch.
	kafkaBatchTimeout = 10 * time.Millisecond
)

// messageWriter is the subset of *kafka.Writer used by Kafka.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a topic, keyed by unique certificate id so all
// events for one certificate land on the same partition. Notify only
// enqueues; a background goroutine does the writes.
type Kafka struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	logger       *slog.Logger
	events       chan kafka.Message
	wg           sync.WaitGroup

	mu     sync.RWMutex // guards closed and sends on events
	closed bool
}

var _ certificate.Notifier = (*Kafka)(nil)

// KafkaOption configures a Kafka sink.
type KafkaOption func(*Kafka)

// WithKafkaLogger sets the logger for delivery failures.
func WithKafkaLogger(l *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = l
	}
}

// NewKafka returns a producer writing to topic on brokers and starts its
// background loop.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) *Kafka {
	return newKafka(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: kafkaBatchTimeout,
		MaxAttempts:  3,
		WriteTimeout: kafkaWriteTimeout,
	}, topic, opts...)
}

func newKafka(w messageWriter, topic string, opts ...KafkaOption) *Kafka {
	k := &Kafka{
		writer:       w,
		topic:        topic,
		writeTimeout: kafkaWriteTimeout,
		logger:       slog.Default(),
		events:       make(chan kafka.Message, kafkaQueueSize),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.wg.Add(1)
	go k.loop()
	return k
}

// Notify encodes ev and enqueues it. It never blocks; a full queue drops
// the event with ErrQueueFull.
func (k *Kafka) Notify(_ context.Context, ev certificate.Event) error {
	m := NewMessage(ev)
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(m.UniqueID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.Type)},
		},
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return fmt.Errorf("kafka %s: %w", k.topic, ErrClosed)
	}
	select {
	case k.events <- msg:
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues("kafka", "dropped").Inc()
		return fmt.Errorf("kafka %s: %w", k.topic, ErrQueueFull)
	}
}

// Close drains queued messages, then flushes and closes the producer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if !k.closed {
		k.closed = true
		close(k.events)
	}
	k.mu.Unlock()
	k.wg.Wait()
	return k.writer.Close()
}

func (k *Kafka) loop() {
	defer k.wg.Done()
	for msg := range k.events {
		ctx, cancel := context.WithTimeout(context.Background(), k.writeTimeout)
		err := k.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("kafka", "failed").Inc()
			k.logger.Warn("kafka: publish failed",
				slog.String("topic", k.topic),
				slog.String("unique_certificate_id", string(msg.Key)),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("kafka", "ok").Inc()
	}
}
