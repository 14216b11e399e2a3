package recurring_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/recurrence"
	"taskpulse/internal/recurring"
	"taskpulse/internal/task"
)

type fakeRules struct {
	tasks     map[int64]*task.RecurringTask
	exhausted []int64
}

func (f *fakeRules) GetRecurringTask(ctx context.Context, taskID int64) (*task.RecurringTask, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t, nil
}

func (f *fakeRules) MarkExhausted(ctx context.Context, taskID int64) error {
	f.exhausted = append(f.exhausted, taskID)
	return nil
}

type fakeCreator struct {
	created map[string]*task.Instance // keyed by instance_date
	nextID  int64
	fail    error
}

func newFakeCreator() *fakeCreator {
	return &fakeCreator{created: map[string]*task.Instance{}, nextID: 100}
}

func (f *fakeCreator) CreateInstance(ctx context.Context, req task.CreateInstanceRequest) (*task.Instance, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if existing, ok := f.created[req.InstanceDate]; ok {
		copied := *existing
		copied.Existing = true
		return &copied, nil
	}
	inst := &task.Instance{
		ID:           f.nextID,
		ParentTaskID: req.ParentTaskID,
		InstanceDate: req.InstanceDate,
		Title:        req.Title,
	}
	f.nextID++
	f.created[req.InstanceDate] = inst
	return inst, nil
}

type fakeDeadLetters struct {
	records map[string]string // event_id -> error message
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

func triggerEvent(t *testing.T, taskID, userID int64, instanceDate string) json.RawMessage {
	t.Helper()
	env, err := contracts.NewEnvelope(contracts.EventRecurrenceTrigger, "task", taskID, userID,
		contracts.RecurrenceTriggerPayload{
			ParentTaskID: taskID,
			UserID:       userID,
			InstanceDate: instanceDate,
		})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func dailyTask(id int64) *task.RecurringTask {
	return &task.RecurringTask{
		ID:     id,
		UserID: 7,
		Title:  "daily standup notes",
		Rule:   recurrence.Rule{Frequency: recurrence.Daily, Interval: 1},
	}
}

func TestHandle_CreatesNextInstance(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: dailyTask(42)}}
	creator := newFakeCreator()
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 42, 7, "2025-03-10"))
	require.NoError(t, err)

	require.Len(t, creator.created, 1)
	assert.Contains(t, creator.created, "2025-03-11")
}

func TestHandle_RedeliveryCreatesNoTwin(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: dailyTask(42)}}
	creator := newFakeCreator()
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	raw := triggerEvent(t, 42, 7, "2025-03-10")
	require.NoError(t, h.Handle(context.Background(), raw))
	require.NoError(t, h.Handle(context.Background(), raw))

	assert.Len(t, creator.created, 1, "redelivery must reuse the existing instance")
}

func TestHandle_EndDateMarksExhausted(t *testing.T) {
	end := time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: {
		ID:     42,
		UserID: 7,
		Title:  "expiring task",
		Rule:   recurrence.Rule{Frequency: recurrence.Daily, Interval: 1, EndDate: &end},
	}}}
	creator := newFakeCreator()
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 42, 7, "2025-03-10"))
	require.NoError(t, err)

	assert.Empty(t, creator.created, "no instance on or after the end date")
	assert.Equal(t, []int64{42}, rules.exhausted)
}

func TestHandle_ExhaustedTaskAcks(t *testing.T) {
	exhaustedTask := dailyTask(42)
	exhaustedTask.Exhausted = true
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: exhaustedTask}}
	creator := newFakeCreator()
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 42, 7, "2025-03-10"))
	require.NoError(t, err)
	assert.Empty(t, creator.created)
}

func TestHandle_MissingTaskAcks(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{}}
	creator := newFakeCreator()
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 99, 7, "2025-03-10"))
	assert.NoError(t, err, "a deleted task spends the event")
}

func TestHandle_InvalidRuleDeadLetters(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: {
		ID:     42,
		UserID: 7,
		Title:  "broken rule",
		Rule:   recurrence.Rule{Frequency: "fortnightly", Interval: 1},
	}}}
	creator := newFakeCreator()
	deadLetters := newFakeDeadLetters()
	h := recurring.NewHandler(rules, creator, deadLetters, zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 42, 7, "2025-03-10"))
	assert.NoError(t, err, "dead-lettered events are acked, not requeued")
	assert.Len(t, deadLetters.records, 1)
	assert.Empty(t, creator.created)
}

func TestHandle_CreateFailureLeavesEventUnacked(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{42: dailyTask(42)}}
	creator := newFakeCreator()
	creator.fail = assert.AnError
	h := recurring.NewHandler(rules, creator, newFakeDeadLetters(), zap.NewNop())

	err := h.Handle(context.Background(), triggerEvent(t, 42, 7, "2025-03-10"))
	assert.Error(t, err, "transient downstream failure must trigger redelivery")
}

func TestHandle_GarbledEnvelopeDeadLettersOnce(t *testing.T) {
	rules := &fakeRules{tasks: map[int64]*task.RecurringTask{}}
	deadLetters := newFakeDeadLetters()
	h := recurring.NewHandler(rules, newFakeCreator(), deadLetters, zap.NewNop())

	raw := json.RawMessage(`{definitely not json`)
	require.NoError(t, h.Handle(context.Background(), raw))
	require.NoError(t, h.Handle(context.Background(), raw), "redelivery of garbage acks again")

	assert.Len(t, deadLetters.records, 1, "same bytes map to one dead-letter key")
}
