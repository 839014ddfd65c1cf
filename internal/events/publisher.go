// Package events publishes domain events after their transaction commits
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types
const (
	OrderCompleted      = "order.completed"
	OrderFailed         = "order.failed"
	OrderCancelled      = "order.cancelled"
	PricePublished      = "price.published"
	DepositVerified     = "deposit.verified"
	DepositRejected     = "deposit.rejected"
	WithdrawalCreated   = "withdrawal.created"
	WithdrawalApproved  = "withdrawal.approved"
	WithdrawalCompleted = "withdrawal.completed"
	WithdrawalCancelled = "withdrawal.cancelled"
	WithdrawalRejected  = "withdrawal.rejected"
	InstallmentCreated  = "installment.created"
	InstallmentPaid     = "installment.paid"
)

// Event is a domain fact emitted after commit.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	Reference string                 `json:"reference,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Key is the partitioning key of the event.
func (e *Event) Key() string {
	if e.UserID != nil {
		return e.UserID.String()
	}
	return e.Reference
}

// Sink defines a destination for events
type Sink interface {
	Send(ctx context.Context, event *Event) error
}

// Publisher fans events out to every configured sink
type Publisher struct {
	sinks []Sink
	log   *zap.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(log *zap.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks: sinks,
		log:   log,
	}
}

// Publish sends the event to all sinks. It fails only if every sink fails.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var lastErr error
	successCount := 0

	for i, sink := range p.sinks {
		if err := sink.Send(ctx, event); err != nil {
			p.log.Error("failed to publish event",
				zap.Int("sink_index", i),
				zap.String("event_type", event.Type),
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("all sinks failed, last error: %w", lastErr)
	}
	return nil
}

// Emit builds and publishes an event. Failures are logged, never returned:
// the domain operation that produced the event has already committed. A nil
// publisher discards the event.
func (p *Publisher) Emit(ctx context.Context, eventType string, userID *uuid.UUID, reference string, payload map[string]interface{}) {
	if p == nil {
		return
	}
	event := &Event{
		Type:      eventType,
		UserID:    userID,
		Reference: reference,
		Payload:   payload,
	}
	if err := p.Publish(ctx, event); err != nil {
		p.log.Warn("dropped domain event", zap.String("event_type", eventType), zap.String("reference", reference), zap.Error(err))
	}
}

// Close releases sinks that hold connections.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	for _, sink := range p.sinks {
		if c, ok := sink.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// KafkaSink implements Sink for Apache Kafka
type KafkaSink struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaSink creates a Kafka sink writing to "<prefix>.events"
func NewKafkaSink(brokers []string, prefix string, log *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        prefix + ".events",
			Balancer:     &kafka.CRC32Balancer{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
		log: log,
	}
}

// Send publishes an event to Kafka keyed by user or reference
func (k *KafkaSink) Send(ctx context.Context, event *Event) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	k.log.Debug("publishing event to kafka",
		zap.String("topic", k.writer.Topic),
		zap.String("event_type", event.Type),
		zap.Int("event_size", len(eventData)),
	)

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: eventData,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// RedisStreamSink implements Sink for Redis Streams
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
	log    *zap.Logger
}

// NewRedisStreamSink creates a sink appending to "<prefix>:events"
func NewRedisStreamSink(client redis.Cmdable, prefix string, log *zap.Logger) *RedisStreamSink {
	return &RedisStreamSink{
		client: client,
		stream: prefix + ":events",
		maxLen: 100000,
		log:    log,
	}
}

// Send appends an event to the stream
func (r *RedisStreamSink) Send(ctx context.Context, event *Event) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"event_type": event.Type,
			"data":       string(eventData),
			"timestamp":  event.Timestamp.Format(time.RFC3339),
		},
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish to redis stream: %w", err)
	}

	r.log.Debug("published event to redis stream",
		zap.String("stream", r.stream),
		zap.String("message_id", result.Val()))
	return nil
}

// LogSink writes events to the application log. It is the only sink when no
// broker is configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (l *LogSink) Send(_ context.Context, event *Event) error {
	l.log.Info("domain event",
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID.String()),
		zap.String("key", event.Key()),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// Recorder keeps events in memory. Tests use it to observe what a service
// emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
