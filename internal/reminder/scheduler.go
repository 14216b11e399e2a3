package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	contracts "taskpulse/contracts/mq"
	"taskpulse/pkg/metrics"
)

// Store is the slice of Repository the scheduler needs.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64) error
	FinalizeStalePublished(ctx context.Context) (int64, error)
}

// Publisher puts envelopes on the bus with bounded retry.
type Publisher interface {
	PublishEnvelope(env contracts.Envelope) error
}

// Scheduler periodically scans for due reminders and emits one
// reminder.due event per reminder. The mark-as-sent write happens only
// after the bus acknowledges the publish; a crash in between re-emits on
// the next scan, which downstream tolerates (at-least-once contract).
type Scheduler struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewScheduler(store Store, publisher Publisher, interval time.Duration, batchSize int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start runs the scan loop until ctx is cancelled. Blocks; run in a
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting reminder scheduler",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
	)

	// First scan immediately; reminders due across a restart should not
	// wait a full interval.
	s.Scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan is one scheduler period: finalize rows stranded in published by a
// crash or a transient mark failure (their publish was acked, they only
// need the terminal mark), then publish reminder.due for every reminder
// with fire_at <= now and status pending and advance each row to sent.
func (s *Scheduler) Scan(ctx context.Context) {
	if n, err := s.store.FinalizeStalePublished(ctx); err != nil {
		s.logger.Error("Failed to finalize stale published reminders", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Finalized reminders left in published state",
			zap.Int64("count", n),
		)
	}

	due, err := s.store.ListDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list due reminders", zap.Error(err))
		return
	}

	if len(due) == 0 {
		s.logger.Debug("No due reminders")
		return
	}

	s.logger.Info("Processing due reminders", zap.Int("count", len(due)))

	for _, rem := range due {
		if err := s.emit(ctx, rem); err != nil {
			// Row stays pending and is retried next period.
			s.logger.Error("Failed to emit reminder, will retry next scan",
				zap.Int64("reminder_id", rem.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) emit(ctx context.Context, rem Reminder) error {
	env, err := contracts.NewEnvelope(
		contracts.EventReminderDue,
		"reminder",
		rem.ID,
		rem.UserID,
		contracts.ReminderDuePayload{
			ReminderID: rem.ID,
			TaskID:     rem.TaskID,
			UserID:     rem.UserID,
			TaskTitle:  rem.TaskTitle,
			FireAt:     rem.FireAt,
			Channel:    rem.Channel,
		},
	)
	if err != nil {
		return err
	}

	if err := s.publisher.PublishEnvelope(env); err != nil {
		return err
	}

	// Publish is acked from here on; the worst a crash can do is emit a
	// duplicate, never lose the reminder.
	if err := s.store.MarkPublished(ctx, rem.ID); err != nil {
		return err
	}
	if err := s.store.MarkSent(ctx, rem.ID); err != nil {
		return err
	}

	metrics.RemindersPublished.Inc()
	s.logger.Info("Reminder published",
		zap.Int64("reminder_id", rem.ID),
		zap.Int64("task_id", rem.TaskID),
		zap.Int64("user_id", rem.UserID),
		zap.String("channel", rem.Channel),
	)
	return nil
}
