package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/config"
	"github.com/philsgames/questtracker/game/session"
	mw "github.com/philsgames/questtracker/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler upgrades GET /ws?token=<jwt> connections and pumps inbound
// packets through the router until the viewer disconnects.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	sm       *session.Manager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	sm *session.Manager,
	router *Router,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		db:     db,
		cache:  c,
		sec:    sec,
		sm:     sm,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(sec.AllowedOrigins),
		},
	}
}

// originChecker admits the configured origins. An empty list admits
// everything, which is only sane for local play.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, reason := mw.VerifySession(c.Request.Context(), c.Query("token"), h.sec, h.cache)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": reason})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := session.New(claims.AccountID, h.username(claims.AccountID), claims.Role, conn, h.logger)
	h.sm.Register(sess)
	h.logger.Info("viewer connected",
		zap.Int64("account_id", sess.AccountID),
		zap.String("username", sess.Username),
		zap.String("role", sess.Role))

	h.readPump(sess) // blocks until disconnect
}

func (h *Handler) username(accountID int64) string {
	var row struct{ Username string }
	if err := h.db.Table("accounts").Select("username").
		Where("id = ?", accountID).Scan(&row).Error; err != nil {
		return ""
	}
	return row.Username
}

func (h *Handler) readPump(s *session.Session) {
	defer func() {
		s.Close()
		h.sm.Unregister(s)
		h.logger.Info("viewer disconnected",
			zap.Int64("account_id", s.AccountID),
			zap.String("username", s.Username))
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("account_id", s.AccountID), zap.Error(err))
			}
			return
		}
		// Any inbound traffic counts as liveness.
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}
