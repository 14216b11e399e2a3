package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/internal/deadletter"
	"taskpulse/internal/reminder"
	"taskpulse/pkg/metrics"
)

// Deduper is an optional fast-path duplicate check (Redis SetNX). Release
// is called when delivery fails, so the redelivery is not mistaken for a
// duplicate.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// DeadLetterStore records events that can never succeed on retry.
type DeadLetterStore interface {
	Insert(ctx context.Context, eventID, routingKey string, payload json.RawMessage, errorMsg string) error
}

// Pusher is the slice of Registry the consumer needs.
type Pusher interface {
	Push(userID int64, frame []byte) int
}

// Handler consumes reminder.due events and delivers them: live channels
// first, durable fallback when the user is offline and the reminder
// allows it.
type Handler struct {
	registry    Pusher
	fallback    FallbackSender
	deduper     Deduper
	deadLetters DeadLetterStore
	logger      *zap.Logger
}

func NewHandler(registry Pusher, fallback FallbackSender, deduper Deduper, deadLetters DeadLetterStore, logger *zap.Logger) *Handler {
	return &Handler{
		registry:    registry,
		fallback:    fallback,
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
		return h.deadLetter(ctx, deadletter.RawEventID(raw), raw, err)
	}

	if env.EventType != contracts.EventReminderDue {
		// Misrouted onto this queue; a nack would just loop it.
		err := fmt.Errorf("unexpected event type: %s", env.EventType)
		h.logger.Error("Unexpected event type, dead-lettering",
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		return h.deadLetter(ctx, env.EventID, raw, err)
	}

	var p contracts.ReminderDuePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.logger.Error("Failed to unmarshal reminder payload, dead-lettering",
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
		return h.deadLetter(ctx, env.EventID, raw, err)
	}

	log := h.logger.With(
		zap.String("event_id", env.EventID),
		zap.Int64("reminder_id", p.ReminderID),
		zap.Int64("user_id", p.UserID),
	)

	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "notify", env.EventID) {
		log.Debug("Duplicate delivery skipped by deduper")
		return nil
	}

	if err := h.deliver(ctx, log, &p); err != nil {
		// Unacked → redelivered. The dedup key must go with it, or the
		// redelivery would be skipped and the reminder never delivered.
		if h.deduper != nil {
			h.deduper.Release(ctx, "notify", env.EventID)
		}
		return err
	}
	return nil
}

func (h *Handler) deliver(ctx context.Context, log *zap.Logger, p *contracts.ReminderDuePayload) error {
	frame, err := json.Marshal(Frame{
		Type:      "reminder",
		TaskTitle: p.TaskTitle,
		FireAt:    p.FireAt,
		Message:   fmt.Sprintf("Reminder: %s", p.TaskTitle),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if delivered := h.registry.Push(p.UserID, frame); delivered > 0 {
		metrics.IncrementNotificationsDelivered("live")
		log.Info("Reminder pushed on live channels", zap.Int("channels", delivered))
		return nil
	}

	switch p.Channel {
	case reminder.ChannelDurable, reminder.ChannelBoth:
		return h.sendFallback(ctx, log, p)
	default:
		// Live-only reminder and the user is offline. Dropping is the
		// contract; the reminder stays visible in the task list.
		metrics.IncrementNotificationsDelivered("dropped")
		log.Info("User offline, live-only reminder dropped")
		return nil
	}
}

// sendFallback attempts the durable delivery with one retry. Failures are
// logged and acked: a broken mail relay must not stall the consumer loop
// or pile up redeliveries.
func (h *Handler) sendFallback(ctx context.Context, log *zap.Logger, p *contracts.ReminderDuePayload) error {
	subject := fmt.Sprintf("Reminder: %s", p.TaskTitle)
	body := fmt.Sprintf("Your task %q is due at %s.", p.TaskTitle, p.FireAt.Format(time.RFC1123))

	err := h.fallback.Send(ctx, p.UserID, subject, body)
	if err != nil {
		log.Warn("Fallback delivery failed, retrying once", zap.Error(err))
		err = h.fallback.Send(ctx, p.UserID, subject, body)
	}
	if err != nil {
		if errors.Is(err, ErrDeliveryUnavailable) {
			metrics.IncrementNotificationsDelivered("dropped")
			log.Error("Fallback delivery unavailable, reminder dropped", zap.Error(err))
			return nil
		}
		return err
	}

	metrics.IncrementNotificationsDelivered("email")
	log.Info("Reminder delivered by fallback email")
	return nil
}

func (h *Handler) deadLetter(ctx context.Context, eventID string, raw json.RawMessage, cause error) error {
	if err := h.deadLetters.Insert(ctx, eventID, contracts.EventReminderDue, raw, cause.Error()); err != nil {
		// Couldn't even record it; keep the event on the bus.
		return err
	}
	return nil
}
