package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/calendar"
	"github.com/philsgames/questtracker/game/visibility"
	mw "github.com/philsgames/questtracker/middleware"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
)

// CalendarHandler exposes the world calendar over REST. The service
// may be nil when the calendar is disabled; every endpoint then
// answers 503 so clients can distinguish "absent" from "empty".
type CalendarHandler struct {
	svc    *calendar.Service
	logger *zap.Logger
}

// NewCalendarHandler creates a CalendarHandler. svc may be nil.
func NewCalendarHandler(svc *calendar.Service, logger *zap.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, logger: logger}
}

func (h *CalendarHandler) unavailable(c *gin.Context) bool {
	if h.svc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar disabled"})
		return true
	}
	return false
}

// Today returns the current world date. Month is zero-indexed.
// GET /api/calendar/today
func (h *CalendarHandler) Today(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	d, err := h.svc.CurrentDate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calendar read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": d.Year, "month": d.Month, "day": d.Day})
}

type setDateRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month"`
	Day   int `json:"day" binding:"required,min=1"`
}

// SetDate advances (or rewinds) the world date. Month is zero-indexed.
// POST /api/calendar/today   (GM only)
func (h *CalendarHandler) SetDate(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	var req setDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := visibility.Date{Year: req.Year, Month: req.Month, Day: req.Day}
	if err := h.svc.SetCurrentDate(c.Request.Context(), d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calendar write failed"})
		return
	}
	h.logger.Info("world date changed",
		zap.Int("year", d.Year), zap.Int("month", d.Month), zap.Int("day", d.Day),
		zap.Int64("account_id", mw.GetAccountID(c)))
	c.JSON(http.StatusOK, gin.H{"year": d.Year, "month": d.Month, "day": d.Day})
}

// Events lists the events on one date key. Hidden events are only
// included for the GM.
// GET /api/calendar/events/:dateKey
func (h *CalendarHandler) Events(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	includeHidden := mw.GetRole(c) == model.RoleGM
	events, err := h.svc.EventsOn(c.Request.Context(), c.Param("dateKey"), includeHidden)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calendar read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
