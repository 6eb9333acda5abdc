package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"researchtools/internal/config"
	"researchtools/internal/framework"
)

// EventType names a domain event
type EventType string

const (
	SessionSavedEvent   EventType = "framework_session_saved"
	SessionDeletedEvent EventType = "framework_session_deleted"
	JobFinishedEvent    EventType = "research_job_finished"
	UserLoginEvent      EventType = "user_login"
)

// Event is the JSON document written to the topic
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProducer publishes domain events. A producer without a writer drops
// events, so callers never need to check whether Kafka is enabled.
type EventProducer struct {
	writer messageWriter
	source string
	logger *zap.Logger
}

// NewEventProducer creates a producer from config. Kafka writes are async;
// delivery failures are logged.
func NewEventProducer(cfg config.EventsConfig, logger *zap.Logger) *EventProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")
	p := &EventProducer{source: cfg.ClientID, logger: logger}
	if !cfg.EnableKafka {
		return p
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	logger.Info("kafka event publishing enabled",
		zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	return p
}

// Enabled reports whether events are published anywhere
func (p *EventProducer) Enabled() bool {
	return p.writer != nil
}

// ProduceEvent sends an event. Messages are keyed by user so one user's
// events stay ordered within a partition.
func (p *EventProducer) ProduceEvent(ctx context.Context, event Event) error {
	if p.writer == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Source == "" {
		event.Source = p.source
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	message := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *EventProducer) produce(ctx context.Context, event Event) {
	if err := p.ProduceEvent(ctx, event); err != nil {
		p.logger.Warn("publishing event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// SessionSaved publishes a framework_session_saved event
func (p *EventProducer) SessionSaved(ctx context.Context, s *framework.Session) {
	p.produce(ctx, Event{
		Type:      SessionSavedEvent,
		UserID:    s.UserID,
		SessionID: s.ID,
		Data: map[string]interface{}{
			"framework_type": string(s.Type),
			"status":         string(s.Status),
			"version":        s.Version,
			"title":          s.Title,
		},
	})
}

// SessionDeleted publishes a framework_session_deleted event
func (p *EventProducer) SessionDeleted(ctx context.Context, userID, id string) {
	p.produce(ctx, Event{Type: SessionDeletedEvent, UserID: userID, SessionID: id})
}

// UserLoggedIn publishes a user_login event
func (p *EventProducer) UserLoggedIn(ctx context.Context, userID, method string) {
	p.produce(ctx, Event{Type: UserLoginEvent, UserID: userID, Data: map[string]interface{}{"method": method}})
}

// SendToUser publishes finished research jobs. It matches the job manager's
// notifier so the producer can sit next to the websocket hub.
func (p *EventProducer) SendToUser(userID, msgType string, data interface{}) {
	payload, ok := data.(map[string]interface{})
	if !ok || msgType != "job_progress" {
		return
	}
	switch payload["status"] {
	case "completed", "failed", "cancelled":
		p.produce(context.Background(), Event{Type: JobFinishedEvent, UserID: userID, Data: payload})
	}
}

// Close flushes pending messages
func (p *EventProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
