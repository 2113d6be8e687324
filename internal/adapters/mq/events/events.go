// Package events publishes report progress to interested consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
)

// Publisher emits report events.
type Publisher interface {
	Publish(ctx context.Context, ev model.ReportEvent) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic keyed by report id, so events
// of a report stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  logger.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...Option) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, opts...)
}

func newKafkaPublisher(w messageWriter, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  w,
		timeout: defaultPublishTimeout,
		logger:  logger.Get().Named("events"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev model.ReportEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.RecordEventPublished("encode_error")
		return fmt.Errorf("encode event %s: %w", ev.ReportID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ReportID),
		Value: data,
		Time:  ev.At,
	})
	if err != nil {
		metrics.RecordEventPublished("error")
		return fmt.Errorf("publish event %s: %w", ev.ReportID, err)
	}
	metrics.RecordEventPublished("ok")
	p.logger.Debug(ctx, "report event published",
		logger.String("report_id", ev.ReportID),
		logger.String("status", string(ev.Status)),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event.
type Nop struct{}

var _ Publisher = Nop{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, model.ReportEvent) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
