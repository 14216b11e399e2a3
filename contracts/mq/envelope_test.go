package mq_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpulse/contracts/mq"
)

func TestNewEnvelope(t *testing.T) {
	env, err := mq.NewEnvelope(mq.EventTaskCreated, "task", 42, 7, mq.TaskLifecyclePayload{
		Title: "write weekly report",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err, "event_id is a uuid")
	assert.Equal(t, mq.EventTaskCreated, env.EventType)
	assert.Equal(t, int64(42), env.EntityID)
	assert.Equal(t, int64(7), env.UserID)
	assert.False(t, env.OccurredAt.IsZero())

	var p mq.TaskLifecyclePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "write weekly report", p.Title)
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := mq.NewEnvelope(mq.EventTaskDeleted, "task", 42, 7, nil)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"payload"`)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := mq.NewEnvelope(mq.EventRecurrenceTrigger, "task", 42, 7,
		mq.RecurrenceTriggerPayload{ParentTaskID: 42, UserID: 7, InstanceDate: "2025-03-10"})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded mq.Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.JSONEq(t, string(env.Payload), string(decoded.Payload))
}

func TestIsTaskLifecycle(t *testing.T) {
	assert.True(t, mq.IsTaskLifecycle(mq.EventTaskCreated))
	assert.True(t, mq.IsTaskLifecycle(mq.EventTaskUpdated))
	assert.True(t, mq.IsTaskLifecycle(mq.EventTaskCompleted))
	assert.True(t, mq.IsTaskLifecycle(mq.EventTaskDeleted))
	assert.False(t, mq.IsTaskLifecycle(mq.EventRecurrenceTrigger))
	assert.False(t, mq.IsTaskLifecycle(mq.EventReminderDue))
}
