package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/philsgames/questtracker/cache"
	"go.uber.org/zap"
)

// ChatMessage is the wire shape published on the announcement channel.
type ChatMessage struct {
	Speaker   string `json:"speaker"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ChatPoster delivers messages over pub/sub and keeps a bounded history
// list so late joiners can replay recent announcements.
type ChatPoster struct {
	cache      cache.Cache
	pubsub     cache.PubSub
	channel    string
	historyLen int64
	logger     *zap.Logger
}

// NewChatPoster creates a ChatPoster on the given channel. historyLen
// bounds the replay list.
func NewChatPoster(c cache.Cache, ps cache.PubSub, channel string, historyLen int, logger *zap.Logger) *ChatPoster {
	if historyLen <= 0 {
		historyLen = 200
	}
	return &ChatPoster{
		cache:      c,
		pubsub:     ps,
		channel:    channel,
		historyLen: int64(historyLen),
		logger:     logger,
	}
}

// PostMessage publishes one message and appends it to the history list.
func (p *ChatPoster) PostMessage(ctx context.Context, htmlContent, speaker string) error {
	msg := ChatMessage{
		Speaker:   speaker,
		Content:   htmlContent,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		return err
	}
	if err := p.pubsub.Publish(ctx, p.channel, string(payload)); err != nil {
		return err
	}

	historyKey := p.channel + ":history"
	if err := p.cache.LPush(ctx, historyKey, string(payload)); err != nil {
		p.logger.Warn("announcement history push failed", zap.Error(err))
		return nil
	}
	if err := p.cache.LTrim(ctx, historyKey, 0, p.historyLen-1); err != nil {
		p.logger.Warn("announcement history trim failed", zap.Error(err))
	}
	return nil
}

// History returns up to limit recent messages, newest first.
func (p *ChatPoster) History(ctx context.Context, limit int64) ([]ChatMessage, error) {
	if limit <= 0 || limit > p.historyLen {
		limit = p.historyLen
	}
	raw, err := p.cache.LRange(ctx, p.channel+":history", 0, limit-1)
	if err != nil {
		return nil, err
	}
	msgs := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
