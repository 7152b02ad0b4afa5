package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

func TestNewMessage(t *testing.T) {
	subject := uuid.New()
	e := event.StatusChanged(valueobject.SubjectKindJob, subject, "rejected", "rejected_accepted", uuid.Nil,
		time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), uuid.New())

	msg, err := NewMessage(e)
	require.NoError(t, err)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, string(event.TypeSubmissionStatusChanged), msg.Type)
	assert.Equal(t, subject.String(), msg.CorrelationId)
	assert.Equal(t, "job", msg.Headers["x-subject-kind"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "rejected_accepted", body["new_status"])
	assert.NotContains(t, body, "Recipients")
}
