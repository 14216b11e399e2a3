package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/deadletter"
	"taskpulse/internal/recurrence"
	"taskpulse/internal/task"
	"taskpulse/pkg/metrics"
)

// RuleStore loads the originating task and its recurrence rule.
type RuleStore interface {
	GetRecurringTask(ctx context.Context, taskID int64) (*task.RecurringTask, error)
	MarkExhausted(ctx context.Context, taskID int64) error
}

// DeadLetterStore records events that can never succeed on retry.
type DeadLetterStore interface {
	Insert(ctx context.Context, eventID, routingKey string, payload json.RawMessage, errorMsg string) error
}

// Handler consumes recurrence.trigger events: it computes the next
// occurrence from the task's rule and asks the task API to materialize the
// instance. Redelivery is safe end to end: the create-instance call is
// idempotent on (parent_task_id, instance_date).
type Handler struct {
	rules       RuleStore
	creator     task.Creator
	deadLetters DeadLetterStore
	logger      *zap.Logger
}

func NewHandler(rules RuleStore, creator task.Creator, deadLetters DeadLetterStore, logger *zap.Logger) *Handler {
	return &Handler{
		rules:       rules,
		creator:     creator,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) error {
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A garbled envelope never parses on redelivery either.
		h.logger.Error("Failed to unmarshal envelope, dead-lettering", zap.Error(err))
		return h.deadLetter(ctx, deadletter.RawEventID(raw), raw, err)
	}

	var p contracts.RecurrenceTriggerPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.logger.Error("Failed to unmarshal RecurrenceTriggerPayload",
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		return h.deadLetter(ctx, env.EventID, raw, err)
	}

	log := h.logger.With(
		zap.String("event_id", env.EventID),
		zap.Int64("parent_task_id", p.ParentTaskID),
		zap.Int64("user_id", p.UserID),
	)
	log.Info("Handling recurrence.trigger event")

	parent, err := h.rules.GetRecurringTask(ctx, p.ParentTaskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			// Deleted between completion and consumption; nothing to
			// generate, the event is spent.
			log.Warn("Recurring task no longer exists, acking")
			return nil
		}
		return err
	}

	if parent.Exhausted {
		log.Info("Recurring task already exhausted, acking")
		return nil
	}

	current, err := h.currentDate(env, p, parent)
	if err != nil {
		log.Error("Unusable instance date", zap.Error(err))
		return h.deadLetter(ctx, env.EventID, raw, err)
	}

	next, err := recurrence.Next(current, parent.Rule)
	if err != nil {
		if errors.Is(err, recurrence.ErrInvalidRule) {
			log.Error("Malformed recurrence rule, dead-lettering", zap.Error(err))
			return h.deadLetter(ctx, env.EventID, raw, err)
		}
		return err
	}

	if parent.Rule.Ended(next) {
		log.Info("Recurrence reached end date, marking exhausted",
			zap.Time("next_date", next),
			zap.Time("end_date", *parent.Rule.EndDate),
		)
		return h.rules.MarkExhausted(ctx, parent.ID)
	}

	instance, err := h.creator.CreateInstance(ctx, task.CreateInstanceRequest{
		ParentTaskID: parent.ID,
		UserID:       parent.UserID,
		InstanceDate: next.Format("2006-01-02"),
		Title:        parent.Title,
		Description:  parent.Description,
		Priority:     parent.Priority,
		DueDate:      &next,
	})
	if err != nil {
		// Left unacked; the idempotency key makes redelivery safe.
		log.Error("Failed to create task instance", zap.Error(err))
		return err
	}

	if instance.Existing {
		log.Info("Instance already existed (redelivery), acking",
			zap.Int64("instance_id", instance.ID),
			zap.String("instance_date", instance.InstanceDate),
		)
		return nil
	}

	metrics.IncrementInstancesGenerated(string(parent.Rule.Frequency))
	log.Info("Recurring task instance created",
		zap.Int64("instance_id", instance.ID),
		zap.String("instance_date", instance.InstanceDate),
	)
	return nil
}

// currentDate picks the base date the next occurrence is computed from:
// the completed instance's date, falling back to the parent's original due
// date, falling back to the event timestamp.
func (h *Handler) currentDate(env contracts.Envelope, p contracts.RecurrenceTriggerPayload, parent *task.RecurringTask) (time.Time, error) {
	if p.InstanceDate != "" {
		d, err := time.Parse("2006-01-02", p.InstanceDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad instance_date %q: %w", p.InstanceDate, err)
		}
		return d, nil
	}
	if parent.DueDate != nil {
		return *parent.DueDate, nil
	}
	return env.OccurredAt, nil
}

func (h *Handler) deadLetter(ctx context.Context, eventID string, raw json.RawMessage, cause error) error {
	if err := h.deadLetters.Insert(ctx, eventID, contracts.EventRecurrenceTrigger, raw, cause.Error()); err != nil {
		// Couldn't even record it; keep the event on the bus.
		return err
	}
	return nil
}
