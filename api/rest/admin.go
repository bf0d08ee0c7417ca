package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/game/session"
	"github.com/philsgames/questtracker/game/watcher"
	"github.com/philsgames/questtracker/model"
	"github.com/philsgames/questtracker/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	sm     *session.Manager
	sched  *scheduler.Scheduler
	w      *watcher.Watcher
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	sm *session.Manager,
	sched *scheduler.Scheduler,
	w *watcher.Watcher,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, sm: sm, sched: sched, w: w, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_viewers":  h.sm.Count(),
		"scheduler_tasks": h.sched.Tasks(),
	})
}

// Sweep forces an immediate visibility sweep instead of waiting for
// the next scheduled tick.
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	h.w.SweepVisibility(c.Request.Context())
	h.logger.Info("manual visibility sweep triggered")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuditLog returns recent audit entries, newest first.
// GET /api/admin/audit?limit=50
func (h *AdminHandler) AuditLog(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	var entries []model.AuditLog
	if err := h.db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
