package broadcast

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/philsgames/questtracker/game/quest"
	"go.uber.org/zap"
)

// Poster is the broadcast capability: deliver one HTML message under a
// speaker label.
type Poster interface {
	PostMessage(ctx context.Context, htmlContent, speaker string) error
}

// Announcer emits the one-time completion announcement for a quest.
// Emission is fire-and-forget: failures are logged, never raised and
// never retried, so a duplicate announcement is possible when the same
// completion is re-saved.
type Announcer struct {
	poster  Poster
	speaker string
	logger  *zap.Logger
}

// New creates an Announcer posting under the given speaker label.
func New(poster Poster, speaker string, logger *zap.Logger) *Announcer {
	return &Announcer{poster: poster, speaker: speaker, logger: logger}
}

// Announce builds and posts the completion card for q.
func (a *Announcer) Announce(ctx context.Context, q *quest.Quest) {
	if a.poster == nil {
		return
	}
	if err := a.poster.PostMessage(ctx, RenderCard(q), a.speaker); err != nil {
		a.logger.Warn("completion announcement failed",
			zap.String("quest_id", q.ID), zap.Error(err))
	}
}

// RenderCard renders the completion chat card: formatted title, the
// first giver's image when present, gold and XP totals only when
// positive, then the itemized reward list.
func RenderCard(q *quest.Quest) string {
	var b strings.Builder
	b.WriteString(`<div class="qt-chat-card">`)
	fmt.Fprintf(&b, `<h3>Quest Completed: %s</h3>`, html.EscapeString(q.Title))

	if len(q.Givers) > 0 && q.Givers[0].Img != "" {
		fmt.Fprintf(&b, `<img src="%s" class="qt-chat-img"/>`, html.EscapeString(q.Givers[0].Img))
	}
	if q.Gold > 0 {
		fmt.Fprintf(&b, `<div class="qt-gold-reward">%d Gold</div>`, q.Gold)
	}
	if q.XP > 0 {
		fmt.Fprintf(&b, `<div class="qt-xp-reward">%d XP</div>`, q.XP)
	}

	b.WriteString(`<div class="qt-rewards">`)
	for _, r := range q.Rewards {
		if r.UUID != "" {
			// Linkable reference.
			fmt.Fprintf(&b,
				`<div class="qt-reward-item"><span class="qt-reward-qty">%dx</span> @UUID[%s]{%s}</div>`,
				r.Quantity, html.EscapeString(r.UUID), html.EscapeString(r.Name))
		} else {
			fmt.Fprintf(&b,
				`<div class="qt-reward-item"><img src="%s" width="24" height="24"/><span>%dx %s</span></div>`,
				html.EscapeString(r.Img), r.Quantity, html.EscapeString(r.Name))
		}
	}
	b.WriteString(`</div></div>`)
	return b.String()
}
