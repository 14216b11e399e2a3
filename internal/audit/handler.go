package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/deadletter"
)

// Store is the slice of Repository the consumer needs.
type Store interface {
	Insert(ctx context.Context, rec *Record) (bool, error)
}

// Deduper is an optional fast-path duplicate check (Redis SetNX). The
// conditional insert stays authoritative when it fails open. Release is
// called when the side effect fails, so the redelivery is not mistaken
// for a duplicate.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// DeadLetterStore records events that can never succeed on retry.
type DeadLetterStore interface {
	Insert(ctx context.Context, eventID, routingKey string, payload json.RawMessage, errorMsg string) error
}

var actionByEventType = map[string]string{
	contracts.EventTaskCreated:   "create",
	contracts.EventTaskUpdated:   "update",
	contracts.EventTaskCompleted: "complete",
	contracts.EventTaskDeleted:   "delete",
}

// Handler consumes task lifecycle events and appends one audit record per
// event_id.
type Handler struct {
	store       Store
	deduper     Deduper
	deadLetters DeadLetterStore
	logger      *zap.Logger
}

func NewHandler(store Store, deduper Deduper, deadLetters DeadLetterStore, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		deduper:     deduper,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) error {
	var env contracts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A garbled envelope never parses on redelivery either.
		h.logger.Error("Failed to unmarshal envelope, dead-lettering", zap.Error(err))
		return h.deadLetter(ctx, deadletter.RawEventID(raw), "task.*", raw, err)
	}

	log := h.logger.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Int64("entity_id", env.EntityID),
	)

	action, ok := actionByEventType[env.EventType]
	if !ok {
		// Misrouted onto this queue; a nack would just loop it.
		err := fmt.Errorf("not a task lifecycle event: %s", env.EventType)
		log.Error("Unexpected event type, dead-lettering", zap.Error(err))
		return h.deadLetter(ctx, env.EventID, env.EventType, raw, err)
	}

	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "audit", env.EventID) {
		log.Debug("Duplicate delivery skipped by deduper")
		return nil
	}

	var oldValues, newValues json.RawMessage
	if len(env.Payload) > 0 {
		var p contracts.TaskLifecyclePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Warn("Unparseable lifecycle payload, recording without deltas", zap.Error(err))
		} else {
			oldValues = marshalValues(p.OldValues)
			newValues = marshalValues(p.NewValues)
			if newValues == nil {
				// Events without explicit deltas still record the state
				// they carry.
				newValues = env.Payload
			}
		}
	}

	inserted, err := h.store.Insert(ctx, &Record{
		EventID:    env.EventID,
		EntityType: env.EntityType,
		EntityID:   env.EntityID,
		UserID:     env.UserID,
		Action:     action,
		OldValues:  oldValues,
		NewValues:  newValues,
		RecordedAt: env.OccurredAt,
	})
	if err != nil {
		// Unacked → redelivered; safe because the insert is conditional.
		// The dedup key must go with it, or the redelivery would be
		// skipped as a duplicate and the record never written.
		if h.deduper != nil {
			h.deduper.Release(ctx, "audit", env.EventID)
		}
		return err
	}

	if inserted {
		log.Info("Audit record written", zap.String("action", action))
	} else {
		log.Info("Audit record already present (redelivery), acking")
	}
	return nil
}

func (h *Handler) deadLetter(ctx context.Context, eventID, routingKey string, raw json.RawMessage, cause error) error {
	if err := h.deadLetters.Insert(ctx, eventID, routingKey, raw, cause.Error()); err != nil {
		// Couldn't even record it; keep the event on the bus.
		return err
	}
	return nil
}

func marshalValues(values map[string]any) json.RawMessage {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}
