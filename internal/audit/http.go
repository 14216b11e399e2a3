package audit

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryHandler exposes the audit trail to operators and other services.
type QueryHandler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewQueryHandler(repo *Repository, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{repo: repo, logger: logger}
}

func (h *QueryHandler) Register(r *gin.Engine) {
	r.GET("/audit/users/:user_id", h.GetUserTrail)
	r.GET("/audit/:entity_type/:entity_id", h.GetEntityTrail)
}

// GetEntityTrail returns the ordered audit trail for one entity.
func (h *QueryHandler) GetEntityTrail(c *gin.Context) {
	entityType := c.Param("entity_type")
	entityID, err := strconv.ParseInt(c.Param("entity_id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid entity_id"})
		return
	}

	records, err := h.repo.ListByEntity(c.Request.Context(), entityType, entityID, limitParam(c, 50))
	if err != nil {
		h.logger.Error("Failed to fetch entity audit trail", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to fetch audit trail"})
		return
	}

	c.JSON(200, gin.H{
		"entity_type": entityType,
		"entity_id":   entityID,
		"count":       len(records),
		"entries":     records,
	})
}

// GetUserTrail returns the ordered audit trail for one user.
func (h *QueryHandler) GetUserTrail(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid user_id"})
		return
	}

	records, err := h.repo.ListByUser(c.Request.Context(), userID, limitParam(c, 100))
	if err != nil {
		h.logger.Error("Failed to fetch user audit trail", zap.Error(err))
		c.JSON(500, gin.H{"error": "failed to fetch audit trail"})
		return
	}

	c.JSON(200, gin.H{
		"user_id": userID,
		"count":   len(records),
		"entries": records,
	})
}

func limitParam(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}
