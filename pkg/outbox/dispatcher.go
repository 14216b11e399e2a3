package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"taskpulse/pkg/metrics"
)

// BusPublisher is the slice of pkg/mq.Publisher the dispatcher needs.
type BusPublisher interface {
	Publish(routingKey string, payload any) error
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	repo       *Repository
	publisher  BusPublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(
	repo *Repository,
	publisher BusPublisher,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   1 * time.Second,
		batchSize:  100,
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start 启动 Dispatcher（在 goroutine 中运行）
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.processPendingEvents(ctx)
		}
	}
}

func (d *Dispatcher) processPendingEvents(ctx context.Context) {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return
	}

	if len(events) == 0 {
		return
	}

	d.logger.Debug("Processing pending events",
		zap.Int("count", len(events)),
	)

	for _, event := range events {
		if err := d.publisher.Publish(event.RoutingKey, event.Payload); err != nil {
			d.logger.Error("Failed to publish event",
				zap.Int64("outbox_id", event.ID),
				zap.String("event_id", event.EventID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			metrics.IncrementEventsPublished(event.RoutingKey, "failed")

			exhausted, markErr := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries)
			if markErr != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("outbox_id", event.ID),
					zap.Error(markErr),
				)
				continue
			}
			if exhausted {
				// Terminal: surface the event on the DLQ exchange for
				// inspection alongside the failed outbox row.
				if dlqErr := d.publisher.PublishToDLQ(event.RoutingKey, event.Payload, err.Error()); dlqErr != nil {
					d.logger.Error("Failed to dead-letter exhausted event",
						zap.Int64("outbox_id", event.ID),
						zap.String("event_id", event.EventID),
						zap.Error(dlqErr),
					)
				} else {
					d.logger.Warn("Event exhausted retries, dead-lettered",
						zap.Int64("outbox_id", event.ID),
						zap.String("event_id", event.EventID),
						zap.String("routing_key", event.RoutingKey),
					)
				}
			}
			continue
		}

		metrics.IncrementEventsPublished(event.RoutingKey, "success")
		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("outbox_id", event.ID),
				zap.Error(err),
			)
		} else {
			d.logger.Debug("Event published successfully",
				zap.Int64("outbox_id", event.ID),
				zap.String("event_id", event.EventID),
				zap.String("routing_key", event.RoutingKey),
			)
		}
	}
}
