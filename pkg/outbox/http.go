package outbox

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminStore is the slice of Repository the admin surface needs.
type AdminStore interface {
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	ReplayEvent(ctx context.Context, eventID int64) error
}

// AdminHandler lets an operator inspect outbox rows that exhausted their
// retries and push them back to pending for the dispatcher to pick up.
type AdminHandler struct {
	store  AdminStore
	logger *zap.Logger
}

func NewAdminHandler(store AdminStore, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

func (h *AdminHandler) Register(r *gin.Engine) {
	r.GET("/outbox/failed", h.ListFailed)
	r.POST("/outbox/:id/replay", h.Replay)
}

func (h *AdminHandler) ListFailed(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.store.GetFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list failed outbox events", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to list outbox events"})
		return
	}

	c.JSON(200, gin.H{"count": len(events), "entries": events})
}

func (h *AdminHandler) Replay(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid id"})
		return
	}

	if err := h.store.ReplayEvent(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to replay outbox event",
			zap.Int64("outbox_id", id),
			zap.Error(err),
		)
		c.JSON(500, gin.H{"error": "failed to replay"})
		return
	}

	h.logger.Info("Outbox event reset to pending", zap.Int64("outbox_id", id))
	c.JSON(200, gin.H{"status": "pending"})
}
