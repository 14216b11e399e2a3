package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/notify"
	"taskpulse/internal/reminder"
)

type fakePusher struct {
	frames    [][]byte
	delivered int
}

func (f *fakePusher) Push(userID int64, frame []byte) int {
	if f.delivered > 0 {
		f.frames = append(f.frames, frame)
	}
	return f.delivered
}

type fakeFallback struct {
	sent     []string // subjects
	failures int      // fail this many sends with ErrDeliveryUnavailable
	hardErr  error    // returned unconditionally when set
}

func (f *fakeFallback) Send(ctx context.Context, userID int64, subject, body string) error {
	if f.hardErr != nil {
		return f.hardErr
	}
	if f.failures > 0 {
		f.failures--
		return notify.ErrDeliveryUnavailable
	}
	f.sent = append(f.sent, subject)
	return nil
}

type fakeDeadLetters struct {
	records map[string]string
}

func newFakeDeadLetters() *fakeDeadLetters {
	return &fakeDeadLetters{records: map[string]string{}}
}

func (f *fakeDeadLetters) Insert(ctx context.Context, eventID, routingKey string, payload json.RawMessage, errorMsg string) error {
	if _, ok := f.records[eventID]; !ok {
		f.records[eventID] = errorMsg
	}
	return nil
}

// fakeDeduper mirrors the SetNX semantics: first acquire per key wins,
// Release frees the key again.
type fakeDeduper struct {
	keys map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{keys: map[string]bool{}}
}

func (d *fakeDeduper) AcquireOnce(ctx context.Context, handler, eventID string) bool {
	key := handler + ":" + eventID
	if d.keys[key] {
		return false
	}
	d.keys[key] = true
	return true
}

func (d *fakeDeduper) Release(ctx context.Context, handler, eventID string) {
	delete(d.keys, handler+":"+eventID)
}

func reminderDueEvent(t *testing.T, channel string) json.RawMessage {
	t.Helper()
	env, err := contracts.NewEnvelope(contracts.EventReminderDue, "reminder", 1, 7,
		contracts.ReminderDuePayload{
			ReminderID: 1,
			TaskID:     42,
			UserID:     7,
			TaskTitle:  "water the plants",
			FireAt:     time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
			Channel:    channel,
		})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestHandle_LiveDeliveryWins(t *testing.T) {
	pusher := &fakePusher{delivered: 2}
	fallback := &fakeFallback{}
	h := notify.NewHandler(pusher, fallback, nil, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), reminderDueEvent(t, reminder.ChannelBoth))
	require.NoError(t, err)

	assert.Len(t, pusher.frames, 1, "one frame fans out to all channels in one push")
	assert.Empty(t, fallback.sent, "live delivery suppresses the fallback")

	var frame notify.Frame
	require.NoError(t, json.Unmarshal(pusher.frames[0], &frame))
	assert.Equal(t, "reminder", frame.Type)
	assert.Equal(t, "water the plants", frame.TaskTitle)
}

func TestHandle_OfflineUserFallsBackToEmail(t *testing.T) {
	pusher := &fakePusher{delivered: 0}
	fallback := &fakeFallback{}
	h := notify.NewHandler(pusher, fallback, nil, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), reminderDueEvent(t, reminder.ChannelBoth))
	require.NoError(t, err)

	require.Len(t, fallback.sent, 1)
	assert.Contains(t, fallback.sent[0], "water the plants")
}

func TestHandle_OfflineLiveOnlyDrops(t *testing.T) {
	pusher := &fakePusher{delivered: 0}
	fallback := &fakeFallback{}
	h := notify.NewHandler(pusher, fallback, nil, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), reminderDueEvent(t, reminder.ChannelLive))
	require.NoError(t, err)
	assert.Empty(t, fallback.sent, "live-only reminders never reach the fallback")
}

func TestHandle_FallbackRetriesOnce(t *testing.T) {
	pusher := &fakePusher{delivered: 0}
	fallback := &fakeFallback{failures: 1}
	h := notify.NewHandler(pusher, fallback, nil, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), reminderDueEvent(t, reminder.ChannelDurable))
	require.NoError(t, err)
	assert.Len(t, fallback.sent, 1, "first failure triggers exactly one retry")
}

func TestHandle_FallbackExhaustedAcksAnyway(t *testing.T) {
	pusher := &fakePusher{delivered: 0}
	fallback := &fakeFallback{failures: 2}
	h := notify.NewHandler(pusher, fallback, nil, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), reminderDueEvent(t, reminder.ChannelDurable))
	assert.NoError(t, err, "an unreachable mail relay must not requeue forever")
	assert.Empty(t, fallback.sent)
}

func TestHandle_DeduperShortCircuits(t *testing.T) {
	pusher := &fakePusher{delivered: 1}
	fallback := &fakeFallback{}
	h := notify.NewHandler(pusher, fallback, newFakeDeduper(), newFakeDeadLetters(), zap.NewNop())

	raw := reminderDueEvent(t, reminder.ChannelBoth)
	require.NoError(t, h.Handle(context.Background(), raw))
	require.NoError(t, h.Handle(context.Background(), raw))

	assert.Len(t, pusher.frames, 1, "duplicate delivery is skipped")
}

func TestHandle_DeliveryFailureReleasesDedupKey(t *testing.T) {
	pusher := &fakePusher{delivered: 0}
	fallback := &fakeFallback{hardErr: assert.AnError}
	deduper := newFakeDeduper()
	h := notify.NewHandler(pusher, fallback, deduper, newFakeDeadLetters(), zap.NewNop())

	raw := reminderDueEvent(t, reminder.ChannelDurable)

	err := h.Handle(context.Background(), raw)
	require.Error(t, err, "hard delivery failure leaves the event unacked")

	// Redelivery must not be skipped as a duplicate: the dedup key was
	// released together with the nack.
	fallback.hardErr = nil
	require.NoError(t, h.Handle(context.Background(), raw))
	assert.Len(t, fallback.sent, 1, "redelivery after a failed delivery must send")
}

func TestHandle_ForeignEventTypeDeadLetters(t *testing.T) {
	deadLetters := newFakeDeadLetters()
	h := notify.NewHandler(&fakePusher{}, &fakeFallback{}, nil, deadLetters, zap.NewNop())

	env, err := contracts.NewEnvelope(contracts.EventTaskCreated, "task", 1, 7, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	assert.NoError(t, h.Handle(context.Background(), raw), "a misrouted event is acked, not requeued forever")
	assert.Len(t, deadLetters.records, 1)
}

func TestHandle_GarbledEnvelopeDeadLettersOnce(t *testing.T) {
	deadLetters := newFakeDeadLetters()
	h := notify.NewHandler(&fakePusher{}, &fakeFallback{}, nil, deadLetters, zap.NewNop())

	raw := json.RawMessage(`{not json`)
	require.NoError(t, h.Handle(context.Background(), raw))
	require.NoError(t, h.Handle(context.Background(), raw), "redelivery of garbage acks again")

	assert.Len(t, deadLetters.records, 1, "same bytes map to one dead-letter key")
}

func TestHandle_GarbledPayloadDeadLetters(t *testing.T) {
	deadLetters := newFakeDeadLetters()
	fallback := &fakeFallback{}
	h := notify.NewHandler(&fakePusher{}, fallback, nil, deadLetters, zap.NewNop())

	env, err := contracts.NewEnvelope(contracts.EventReminderDue, "reminder", 1, 7, nil)
	require.NoError(t, err)
	env.Payload = json.RawMessage(`"not an object"`)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	assert.NoError(t, h.Handle(context.Background(), raw))
	assert.Len(t, deadLetters.records, 1)
	assert.Empty(t, fallback.sent)
}
