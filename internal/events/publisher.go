// Package events publishes completed workflow results to downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// Publisher emits a completed WorkflowResult.
type Publisher interface {
	Publish(ctx context.Context, result *model.WorkflowResult) error
	Close() error
}

// Noop discards every result.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, *model.WorkflowResult) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes results to a Kafka topic keyed by run ID.
type KafkaPublisher struct {
	writer messageWriter
	retry  resilience.RetryConfig
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
			OnRetry:        resilience.RetryLogger(resilience.Operation("kafka.publish")),
		},
	}
}

// Publish implements Publisher. Temporary broker errors are retried.
func (p *KafkaPublisher) Publish(ctx context.Context, result *model.WorkflowResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "events: marshal result")
	}
	msg := kafka.Message{
		Key:   []byte(result.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ticket_id", Value: []byte(result.TicketID)},
			{Key: "category", Value: []byte(result.Classification.Category)},
		},
	}

	err = resilience.Do(ctx, p.retry, func(ctx context.Context) error {
		return temporary(p.writer.WriteMessages(ctx, msg))
	})
	if err != nil {
		return eris.Wrapf(err, "events: publish run %s", result.RunID)
	}
	zap.L().Debug("events: result published", zap.String("run_id", result.RunID))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func temporary(err error) error {
	var kerr kafka.Error
	if errors.As(err, &kerr) && kerr.Temporary() {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
