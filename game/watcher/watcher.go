package watcher

import (
	"context"
	"fmt"

	"github.com/philsgames/questtracker/calendar"
	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/broadcast"
	"github.com/philsgames/questtracker/game/calsync"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/visibility"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
)

const handlerName = "quest-watcher"

// systemActor marks writes issued by the watcher itself.
const systemActor int64 = 0

// Watcher orchestrates the synchronization engine: it reacts to
// document lifecycle notifications and keeps permission levels,
// calendar events and completion announcements consistent with quest
// state. Every write it performs re-enters the bus on the same
// goroutine; each handler only writes when the computed value differs
// from the stored one, which is the sole termination guarantee.
type Watcher struct {
	quests    *quest.Store
	cal       calendar.Calendar // nil when the collaborator is absent
	sync      *calsync.Sync
	announcer *broadcast.Announcer
	// isAuthor gates every mutating entry point. A non-author session
	// observes notifications but never mutates shared state; the call
	// is a no-op, not an error.
	isAuthor bool
	logger   *zap.Logger
}

// New creates a Watcher. cal may be nil.
func New(quests *quest.Store, cal calendar.Calendar, sync *calsync.Sync, announcer *broadcast.Announcer, isAuthor bool, logger *zap.Logger) *Watcher {
	return &Watcher{
		quests:    quests,
		cal:       cal,
		sync:      sync,
		announcer: announcer,
		isAuthor:  isAuthor,
		logger:    logger,
	}
}

// Attach subscribes the watcher to the document bus.
func (w *Watcher) Attach(bus *docstore.Bus) {
	bus.Register(docstore.EventPostCreate, 10, handlerName, w.handlePostCreate)
	bus.Register(docstore.EventPreUpdate, 10, handlerName, w.handlePreUpdate)
	bus.Register(docstore.EventPostUpdate, 10, handlerName, w.handlePostUpdate)
	bus.Register(docstore.EventPostDelete, 10, handlerName, w.handlePostDelete)
}

// Detach removes the watcher's bus subscriptions.
func (w *Watcher) Detach(bus *docstore.Bus) {
	bus.Unregister(docstore.EventPostCreate, handlerName)
	bus.Unregister(docstore.EventPreUpdate, handlerName)
	bus.Unregister(docstore.EventPostUpdate, handlerName)
	bus.Unregister(docstore.EventPostDelete, handlerName)
}

// handlePostCreate resolves the initial permission level for a new
// quest and creates its calendar event if it opts into syncing.
func (w *Watcher) handlePostCreate(ctx context.Context, _ string, data interface{}) error {
	if !w.isAuthor {
		return nil
	}
	ev, ok := data.(*docstore.CreateEvent)
	if !ok {
		return fmt.Errorf("watcher: unexpected post-create payload %T", data)
	}
	q, err := quest.FromDocument(ev.Doc)
	if err != nil || q == nil || q.Type != "quest" {
		return err
	}

	if err := w.applyVisibility(ctx, ev.Doc, q); err != nil {
		w.logger.Warn("initial visibility failed",
			zap.String("quest_id", q.ID), zap.Error(err))
	}
	if q.SyncWithCalendar {
		if err := w.sync.SyncQuest(ctx, q); err != nil {
			w.logger.Warn("initial calendar sync failed",
				zap.String("quest_id", q.ID), zap.Error(err))
		}
	}
	return nil
}

// handlePreUpdate inspects the incoming delta before it commits. If the
// quest currently syncs with the calendar and the delta renames it,
// moves its start date or turns sync off, the linked event is removed
// proactively with the pre-update data so a stale event never survives.
func (w *Watcher) handlePreUpdate(ctx context.Context, _ string, data interface{}) error {
	if !w.isAuthor {
		return nil
	}
	ev, ok := data.(*docstore.UpdateEvent)
	if !ok {
		return fmt.Errorf("watcher: unexpected pre-update payload %T", data)
	}
	cur, err := quest.FromDocument(ev.Doc)
	if err != nil || cur == nil || cur.Type != "quest" {
		return err
	}
	if !cur.SyncWithCalendar {
		return nil
	}

	patch := docstore.DeltaFlag(ev.Delta, quest.Namespace, quest.FlagKey)
	if patch == nil {
		return nil
	}

	titleChanged := false
	if title, ok := patch["title"].(string); ok && title != "" && title != cur.Title {
		titleChanged = true
	}
	dateChanged := false
	if dates, ok := patch["dates"].(map[string]interface{}); ok {
		if start, ok := dates["start"].(string); ok && start != "" && start != cur.Dates.Start {
			dateChanged = true
		}
	}
	syncTurnedOff := false
	if v, ok := patch["syncWithCalendar"].(bool); ok && !v && cur.SyncWithCalendar {
		syncTurnedOff = true
	}

	if titleChanged || dateChanged || syncTurnedOff {
		if err := w.sync.Remove(ctx, cur.ID, cur); err != nil {
			w.logger.Warn("pre-update calendar cleanup failed",
				zap.String("quest_id", cur.ID), zap.Error(err))
		}
	}
	return nil
}

// handlePostUpdate re-reads the committed record and converges the
// derived state: permission level, auto-promotion, calendar event and
// the completion announcement. Completion is detected solely from the
// delta payload carrying the literal completed status, so a no-op
// update that re-sends it will re-announce.
func (w *Watcher) handlePostUpdate(ctx context.Context, _ string, data interface{}) error {
	if !w.isAuthor {
		return nil
	}
	ev, ok := data.(*docstore.UpdateEvent)
	if !ok {
		return fmt.Errorf("watcher: unexpected post-update payload %T", data)
	}
	q, err := quest.FromDocument(ev.Doc)
	if err != nil || q == nil || q.Type != "quest" {
		return err
	}

	patch := docstore.DeltaFlag(ev.Delta, quest.Namespace, quest.FlagKey)
	_, permissionTouched := ev.Delta["permission"]

	if patch != nil || permissionTouched {
		if err := w.applyVisibility(ctx, ev.Doc, q); err != nil {
			w.logger.Warn("visibility update failed",
				zap.String("quest_id", q.ID), zap.Error(err))
		}
	}

	if q.SyncWithCalendar {
		if err := w.sync.SyncQuest(ctx, q); err != nil {
			w.logger.Warn("calendar sync failed",
				zap.String("quest_id", q.ID), zap.Error(err))
		}
	}

	if patch != nil {
		if status, _ := patch["status"].(string); status == string(quest.StatusCompleted) {
			w.logger.Info("quest completed", zap.String("quest_id", q.ID), zap.String("title", q.Title))
			w.announcer.Announce(ctx, q)
		}
	}
	return nil
}

// handlePostDelete cascades the calendar removal using the last-known
// record carried by the notification.
func (w *Watcher) handlePostDelete(ctx context.Context, _ string, data interface{}) error {
	if !w.isAuthor {
		return nil
	}
	ev, ok := data.(*docstore.DeleteEvent)
	if !ok {
		return fmt.Errorf("watcher: unexpected post-delete payload %T", data)
	}
	q, err := quest.FromDocument(ev.Doc)
	if err != nil || q == nil || q.Type != "quest" {
		return err
	}
	w.logger.Info("quest deleted, cascading calendar removal", zap.String("quest_id", q.ID))
	return w.sync.Remove(ctx, q.ID, q)
}

// SweepVisibility re-resolves every date-gated quest. Runs on the
// world-clock tick so gate crossings caused purely by time passing are
// caught without an explicit edit. Idempotent: a second pass with an
// unchanged date performs no writes.
func (w *Watcher) SweepVisibility(ctx context.Context) {
	if !w.isAuthor {
		return
	}
	docs, err := w.quests.Docs().List(ctx, w.quests.Folder())
	if err != nil {
		w.logger.Warn("visibility sweep list failed", zap.Error(err))
		return
	}
	for i := range docs {
		q, err := quest.FromDocument(&docs[i])
		if err != nil || q == nil || q.Type != "quest" {
			continue
		}
		if q.Visibility != quest.VisibilityDate || q.Dates.Start == "" {
			continue
		}
		if err := w.applyVisibility(ctx, &docs[i], q); err != nil {
			w.logger.Warn("visibility sweep failed",
				zap.String("quest_id", q.ID), zap.Error(err))
		}
	}
}

// applyVisibility resolves the policy and writes the results. The
// permission write and the promotion write are separate and each only
// issued when the computed value differs from the stored one.
func (w *Watcher) applyVisibility(ctx context.Context, doc *model.Document, q *quest.Quest) error {
	res := visibility.Resolve(q, w.today(ctx))

	if doc.Permission != res.Level {
		if err := w.quests.SetPermission(ctx, q.ID, res.Level, systemActor); err != nil {
			return err
		}
		w.logger.Info("permission level updated",
			zap.String("quest_id", q.ID), zap.Int("level", res.Level))
	}

	if res.AutoPromote && q.Status == quest.StatusAvailable {
		patch := map[string]interface{}{"status": string(quest.StatusActive)}
		if _, err := w.quests.Update(ctx, q.ID, patch, systemActor); err != nil {
			return err
		}
		w.logger.Info("quest auto-promoted to active", zap.String("quest_id", q.ID))
	}
	return nil
}

// today reads the current calendar date, or nil when the collaborator
// is absent or unreadable (the resolver then fails safe).
func (w *Watcher) today(ctx context.Context) *visibility.Date {
	if w.cal == nil {
		return nil
	}
	d, err := w.cal.CurrentDate(ctx)
	if err != nil {
		return nil
	}
	return &d
}
