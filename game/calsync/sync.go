package calsync

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/philsgames/questtracker/calendar"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/visibility"
	"go.uber.org/zap"
)

// Sync keeps a quest's linked calendar event consistent with its start
// date. The invariant after every relevant mutation: a linked event
// exists iff syncWithCalendar is true and dates.start parses.
type Sync struct {
	cal    calendar.Calendar // nil when the collaborator is absent
	logger *zap.Logger
}

// New creates a Sync. cal may be nil; every operation then no-ops.
func New(cal calendar.Calendar, logger *zap.Logger) *Sync {
	return &Sync{cal: cal, logger: logger}
}

// Enabled reports whether a calendar collaborator is present.
func (s *Sync) Enabled() bool { return s.cal != nil }

// SyncQuest upserts the start-date event for q. Upsert is always
// remove-then-add so renames and date changes never leave a stale
// event; calling it twice with unchanged data yields exactly one event.
func (s *Sync) SyncQuest(ctx context.Context, q *quest.Quest) error {
	if s.cal == nil || !q.SyncWithCalendar {
		return nil
	}

	start, ok := visibility.ParseDate(q.Dates.Start)
	if ok {
		if _, err := s.cal.RemoveLinkedEvent(ctx, q.ID); err != nil {
			return err
		}

		hidden := q.Visibility == quest.VisibilityGM
		if q.Visibility == quest.VisibilityDate {
			today, err := s.cal.CurrentDate(ctx)
			if err != nil {
				// Unknown world date degrades to the most
				// restrictive outcome, never the most permissive.
				hidden = true
				s.logger.Warn("current date unavailable, hiding event",
					zap.String("quest_id", q.ID), zap.Error(err))
			} else if today.Composite() < start.Composite() {
				hidden = true
			}
		}

		ts := q.Dates.Created
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		err := s.cal.AddEvent(ctx, calendar.DateKey(start), calendar.Event{
			Title:         "Start: " + q.Title,
			Description:   StripMarkup(q.Description),
			Category:      "quest",
			Hidden:        hidden,
			CorrelationID: q.ID,
			Timestamp:     ts,
			Link:          q.ID,
		})
		if err != nil {
			return err
		}
		s.logger.Debug("calendar event synced",
			zap.String("quest_id", q.ID), zap.String("date", calendar.DateKey(start)))
	}

	// Completion-date events are a recognized but unwired capability:
	// q.Dates.Completed carries a timestamp, not a parsable world date,
	// so no event is created for it. Callers must not assume one exists.
	return nil
}

// Remove deletes the linked events for questID. Removal by correlation
// id runs first; if the calendar reports nothing removed (events created
// before correlation ids existed), it falls back to the exact composite
// key of parsed start date + "Start: " + title.
func (s *Sync) Remove(ctx context.Context, questID string, q *quest.Quest) error {
	if s.cal == nil {
		return nil
	}

	removed := false
	if questID != "" {
		var err error
		removed, err = s.cal.RemoveLinkedEvent(ctx, questID)
		if err != nil {
			return err
		}
	}

	if !removed && q != nil && q.Title != "" {
		if start, ok := visibility.ParseDate(q.Dates.Start); ok {
			if err := s.cal.RemoveEvent(ctx, calendar.DateKey(start), "Start: "+q.Title); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	paraCloseRe = regexp.MustCompile(`(?i)</p>`)
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
)

// StripMarkup renders rich text as plain text: paragraph closes and
// line breaks become newlines, every other tag is dropped.
func StripMarkup(s string) string {
	s = paraCloseRe.ReplaceAllString(s, "\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
