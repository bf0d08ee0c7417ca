// Package sse streams quest announcements over server-sent events so
// plain HTTP clients can follow the table without a WebSocket.
package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/config"
	mw "github.com/philsgames/questtracker/middleware"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

type Handler struct {
	pubsub  cache.PubSub
	channel string
	cache   cache.Cache
	sec     config.SecurityConfig
	logger  *zap.Logger
}

func NewHandler(pubsub cache.PubSub, channel string, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, channel: channel, cache: c, sec: sec, logger: logger}
}

func writeEvent(c *gin.Context, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}

// ServeSSE handles GET /sse?token=<jwt>. Completion cards published on
// the announcement channel arrive as "announce" events; a comment line
// every keepaliveInterval keeps proxies from closing the stream.
func (h *Handler) ServeSSE(c *gin.Context) {
	claims, reason := mw.VerifySession(c.Request.Context(), c.Query("token"), h.sec, h.cache)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": reason})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	msgCh, unsub, err := h.pubsub.Subscribe(c.Request.Context(), h.channel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	writeEvent(c, "connected", "{}")

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			writeEvent(c, "announce", msg.Payload)
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
