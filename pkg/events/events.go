// Package events publishes test session lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/pkg/jobs"
)

// Event types.
const (
	TypeSessionStarted   = "session.started"
	TypeSessionFinished  = "session.finished"
	TypeSessionCancelled = "session.cancelled"
	TypeTestCompleted    = "session.test_completed"
)

// Event mirrors a session state change.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id"`
	ActorID   string    `json:"actor_id"`
	Level     string    `json:"level,omitempty"`
	Status    string    `json:"status,omitempty"`
	TestID    string    `json:"test_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by subject id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return jobs.Permanent(fmt.Errorf("encode event: %w", err))
	}
	msg := kafka.Message{Key: []byte(event.SubjectID), Value: payload, Time: event.At}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Async hands events to a worker queue so callers never wait on the broker.
type Async struct {
	next   Publisher
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAsync wraps next with a retrying worker queue. Call Start before publishing.
func NewAsync(next Publisher, cfg jobs.QueueConfig) *Async {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	a := &Async{next: next, logger: cfg.Logger}
	a.queue = jobs.NewQueue("session-events", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(Event)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
		}
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return a.next.Publish(sendCtx, event)
	}, cfg)
	return a
}

// Start launches the delivery workers.
func (a *Async) Start(ctx context.Context) { a.queue.Start(ctx) }

// Publish enqueues event. A full queue drops the event with a warning.
func (a *Async) Publish(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	err := a.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: event.Type, Payload: event})
	if err != nil {
		a.logger.Warn("session event dropped", zap.String("type", event.Type), zap.String("session_id", event.SessionID), zap.Error(err))
	}
	return err
}

// Stats exposes delivery counters.
func (a *Async) Stats() jobs.Stats { return a.queue.Stats() }

// Close stops the workers and closes the wrapped publisher.
func (a *Async) Close() error {
	a.queue.Stop()
	return a.next.Close()
}
