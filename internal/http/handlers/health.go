package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/seatbook/seatbook-backend/internal/http/response"
	"github.com/seatbook/seatbook-backend/internal/platform/logger"
)

type HealthHandler struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewHealthHandler(log *logger.Logger, db *gorm.DB) *HealthHandler {
	return &HealthHandler{
		log: log.With("handler", "HealthHandler"),
		db:  db,
	}
}

// GET /healthz
func (h *HealthHandler) Check(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.Warn("health check failed", "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "db_unreachable", err)
		return
	}
	response.RespondOK(c, gin.H{"status": "ok"})
}
