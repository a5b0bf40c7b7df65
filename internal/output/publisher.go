package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/inkwell/internal/config"
	"github.com/segmentio/kafka-go"
)

// TranscriptEvent is one committed-text growth.
type TranscriptEvent struct {
	ControllerID string    `json:"controller_id"`
	Sequence     uint64    `json:"sequence"`
	Appended     string    `json:"appended"`
	Committed    string    `json:"committed"`
	At           time.Time `json:"at"`
}

// PublishRecorder observes publish attempts.
type PublishRecorder interface {
	RecordPublish(err error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes transcript events to Kafka, or only logs them when disabled.
type Publisher struct {
	writer       messageWriter
	topic        string
	controllerID string
	logger       *slog.Logger
	recorder     PublishRecorder
	now          func() time.Time

	mu       sync.Mutex
	sequence uint64
	last     string
}

// NewPublisher builds a publisher from config. A nil recorder is allowed.
func NewPublisher(cfg config.KafkaConfig, controllerID string, logger *slog.Logger, recorder PublishRecorder) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:        cfg.Topic,
		controllerID: controllerID,
		logger:       logger,
		recorder:     recorder,
		now:          time.Now,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	logger.Info("kafka publisher initialized", "brokers", strings.Join(cfg.Brokers, ","), "topic", cfg.Topic)
	return p
}

// Name identifies the consumer in logs.
func (p *Publisher) Name() string { return "kafka" }

// Commit publishes the text committed since the previous call.
func (p *Publisher) Commit(ctx context.Context, committed string) error {
	p.mu.Lock()
	appended := committed
	if strings.HasPrefix(committed, p.last) {
		appended = strings.TrimPrefix(committed, p.last)
	}
	if strings.TrimSpace(appended) == "" {
		p.last = committed
		p.mu.Unlock()
		return nil
	}
	p.sequence++
	event := TranscriptEvent{
		ControllerID: p.controllerID,
		Sequence:     p.sequence,
		Appended:     appended,
		Committed:    committed,
		At:           p.now().UTC(),
	}
	p.last = committed
	p.mu.Unlock()

	err := p.publish(ctx, event)
	if p.recorder != nil {
		p.recorder.RecordPublish(err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, event TranscriptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}
	p.logger.Debug("publishing transcript event", "topic", p.topic, "sequence", event.Sequence, "payload", string(payload))

	if p.writer == nil {
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(event.ControllerID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript.committed")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
