// Package kafka publishes run lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/pkg/logger"
	"github.com/okian/harvest/pkg/metrics"
)

const defaultPublishTimeout = 5 * time.Second

// Event kinds.
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
)

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the message body. Report is set on run_finished only.
type Event struct {
	Event  string        `json:"event"`
	RunID  string        `json:"run_id"`
	At     time.Time     `json:"at"`
	Report *types.Report `json:"report,omitempty"`
}

// Publisher sends one message per run start and finish, keyed by run id.
// Publish failures are logged and never reach the run.
type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  logger.Logger
}

// NewPublisher creates a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	p := &Publisher{
		topic:   topic,
		timeout: defaultPublishTimeout,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		}
	}
	return p, nil
}

// RunStarted publishes a run_started event.
func (p *Publisher) RunStarted(ctx context.Context, runID string) {
	p.publish(ctx, Event{Event: EventRunStarted, RunID: runID, At: time.Now().UTC()})
}

// RunFinished publishes the final report.
func (p *Publisher) RunFinished(ctx context.Context, report types.Report) {
	p.publish(ctx, Event{Event: EventRunFinished, RunID: report.RunID, At: report.FinishedAt, Report: &report})
}

func (p *Publisher) publish(ctx context.Context, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		metrics.RecordErrorByComponent("kafka", "publish")
		p.logger.Warn(ctx, "run event not published",
			logger.String("event", ev.Event),
			logger.String("run_id", ev.RunID),
			logger.Error(err))
	}
}

// Publish writes one event. The write outlives ctx cancellation, bounded by
// the publish timeout, so a cancelled run still reports.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Event, err)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.RunID),
		Value: body,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(wctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
