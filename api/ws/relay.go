package ws

import (
	"context"
	"encoding/json"

	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/game/session"
	"go.uber.org/zap"
)

// Relay forwards chat announcements from the pub/sub channel to every
// connected WS session. This is how completion cards reach viewers that
// sit on a different server instance than the one that posted them.
type Relay struct {
	pubsub  cache.PubSub
	channel string
	sm      *session.Manager
	logger  *zap.Logger
}

func NewRelay(ps cache.PubSub, channel string, sm *session.Manager, logger *zap.Logger) *Relay {
	return &Relay{
		pubsub:  ps,
		channel: channel,
		sm:      sm,
		logger:  logger,
	}
}

// Run subscribes and forwards until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	msgs, cancel, err := r.pubsub.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer cancel()

	r.logger.Info("announcement relay started", zap.String("channel", r.channel))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.sm.Broadcast(&session.Packet{
				Type:    "chat_message",
				Payload: json.RawMessage(msg.Payload),
			})
		}
	}
}
