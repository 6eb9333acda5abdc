package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"researchtools/internal/config"
	"researchtools/internal/framework"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func newCaptured() (*EventProducer, *captureWriter) {
	w := &captureWriter{}
	return &EventProducer{writer: w, source: "researchtools-test", logger: zap.NewNop()}, w
}

func decode(t *testing.T, m kafka.Message) Event {
	t.Helper()
	var e Event
	require.NoError(t, json.Unmarshal(m.Value, &e))
	return e
}

func TestDisabledProducerDropsEvents(t *testing.T) {
	p := NewEventProducer(config.EventsConfig{EnableKafka: false}, zap.NewNop())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.ProduceEvent(context.Background(), Event{Type: UserLoginEvent}))
	assert.NoError(t, p.Close())
}

func TestSessionEvents(t *testing.T) {
	p, w := newCaptured()
	ctx := context.Background()

	p.SessionSaved(ctx, &framework.Session{
		ID: "s1", UserID: "u1", Title: "Ports", Type: framework.TypeSWOT,
		Status: framework.StatusDraft, Version: 2,
	})
	p.SessionDeleted(ctx, "u1", "s1")

	require.Len(t, w.messages, 2)
	saved := decode(t, w.messages[0])
	assert.Equal(t, SessionSavedEvent, saved.Type)
	assert.Equal(t, "s1", saved.SessionID)
	assert.Equal(t, "swot", saved.Data["framework_type"])
	assert.Equal(t, float64(2), saved.Data["version"])
	assert.Equal(t, "researchtools-test", saved.Source)
	assert.Equal(t, []byte("u1"), w.messages[0].Key)
	assert.Contains(t, w.messages[0].Headers, kafka.Header{Key: "type", Value: []byte(SessionSavedEvent)})

	assert.Equal(t, SessionDeletedEvent, decode(t, w.messages[1]).Type)
}

func TestJobEventsOnlyOnFinish(t *testing.T) {
	p, w := newCaptured()

	p.SendToUser("u1", "job_progress", map[string]interface{}{"job_id": "j1", "status": "in_progress"})
	p.SendToUser("u1", "job_progress", map[string]interface{}{"job_id": "j1", "status": "completed"})
	p.SendToUser("u1", "notice", map[string]interface{}{"status": "completed"})

	require.Len(t, w.messages, 1)
	e := decode(t, w.messages[0])
	assert.Equal(t, JobFinishedEvent, e.Type)
	assert.Equal(t, "j1", e.Data["job_id"])
}

func TestWriteFailureIsReturned(t *testing.T) {
	p, w := newCaptured()
	w.err = errors.New("broker down")

	err := p.ProduceEvent(context.Background(), Event{Type: UserLoginEvent, UserID: "u1"})
	assert.ErrorContains(t, err, "broker down")

	p.UserLoggedIn(context.Background(), "u1", "password")
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
