package deadletter

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Replayer puts a raw payload back on the bus under its original routing
// key.
type Replayer interface {
	Publish(routingKey string, payload any) error
}

// AdminHandler lets an operator inspect and replay dead-lettered events.
type AdminHandler struct {
	repo     *Repository
	replayer Replayer
	logger   *zap.Logger
}

func NewAdminHandler(repo *Repository, replayer Replayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, replayer: replayer, logger: logger}
}

func (h *AdminHandler) Register(r *gin.Engine) {
	r.GET("/deadletters", h.List)
	r.POST("/deadletters/:id/replay", h.Replay)
	r.POST("/deadletters/:id/resolve", h.Resolve)
}

func (h *AdminHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.repo.ListPending(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to list dead letters"})
		return
	}

	c.JSON(200, gin.H{"count": len(records), "entries": records})
}

// Replay republishes the stored payload and marks the record resolved. The
// operator is expected to have fixed the underlying cause first; a payload
// that still cannot be processed dead-letters again under the same
// event_id and stays resolved here.
func (h *AdminHandler) Replay(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid id"})
		return
	}

	rec, err := h.repo.GetPending(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(404, gin.H{"error": "dead letter not found or not pending"})
			return
		}
		h.logger.Error("Failed to load dead letter for replay", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to load dead letter"})
		return
	}

	if err := h.replayer.Publish(rec.RoutingKey, rec.Payload); err != nil {
		h.logger.Error("Failed to replay dead letter",
			zap.Int64("id", id),
			zap.String("event_id", rec.EventID),
			zap.Error(err),
		)
		c.JSON(502, gin.H{"error": "replay publish failed"})
		return
	}
	if err := h.repo.MarkResolved(c.Request.Context(), id); err != nil {
		h.logger.Error("Replayed but failed to mark resolved",
			zap.Int64("id", id),
			zap.Error(err),
		)
	}

	h.logger.Info("Dead letter replayed",
		zap.Int64("id", id),
		zap.String("event_id", rec.EventID),
		zap.String("routing_key", rec.RoutingKey),
	)
	c.JSON(200, gin.H{"status": "replayed", "event_id": rec.EventID})
}

func (h *AdminHandler) Resolve(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid id"})
		return
	}

	if err := h.repo.MarkResolved(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to resolve dead letter", zap.Int64("id", id), zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to resolve"})
		return
	}

	c.JSON(200, gin.H{"status": "resolved"})
}
