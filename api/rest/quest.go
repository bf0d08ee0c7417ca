package rest

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/audit"
	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/quest"
	mw "github.com/philsgames/questtracker/middleware"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuestHandler handles quest REST endpoints.
type QuestHandler struct {
	db     *gorm.DB
	quests *quest.Store
	audit  *audit.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(db *gorm.DB, quests *quest.Store, auditSvc *audit.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{db: db, quests: quests, audit: auditSvc, logger: logger}
}

// questView is one quest as returned to clients: the record data plus
// the document id and the stored permission level.
type questView struct {
	doc  *model.Document
	q    *quest.Quest
	sort float64
}

func (h *QuestHandler) render(v questView) map[string]interface{} {
	data, err := quest.Encode(v.q)
	if err != nil {
		data = map[string]interface{}{"title": v.q.Title}
	}
	data["id"] = v.doc.ID
	data["permission"] = v.doc.Permission
	return data
}

// visibleTo reports whether a player account may see this quest.
// GMs bypass this check entirely.
func visibleTo(v questView, username string) bool {
	if v.q.Visibility == quest.VisibilityGM {
		return false
	}
	if v.q.Status == quest.StatusDraft {
		return false
	}
	if v.doc.Permission >= model.PermissionObserver {
		return true
	}
	for _, name := range v.q.VisibleTo {
		if name == username {
			return true
		}
	}
	return false
}

// List returns quests visible to the caller, ordered by sort value.
// GET /api/quests
func (h *QuestHandler) List(c *gin.Context) {
	isGM := mw.GetRole(c) == model.RoleGM
	username := h.username(c)

	docs, err := h.quests.Docs().List(c.Request.Context(), h.quests.Folder())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	views := make([]questView, 0, len(docs))
	for i := range docs {
		q, err := quest.FromDocument(&docs[i])
		if err != nil || q == nil || q.Type != "quest" {
			continue
		}
		v := questView{doc: &docs[i], q: q, sort: q.Sort}
		if !isGM && !visibleTo(v, username) {
			continue
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].sort != views[j].sort {
			return views[i].sort < views[j].sort
		}
		return views[i].q.Dates.Created < views[j].q.Dates.Created
	})

	out := make([]map[string]interface{}, 0, len(views))
	for _, v := range views {
		out = append(out, h.render(v))
	}
	c.JSON(http.StatusOK, gin.H{"quests": out, "count": len(out)})
}

// Get returns a single quest.
// GET /api/quests/:id
func (h *QuestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.quests.Docs().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		return
	}
	q, err := quest.FromDocument(doc)
	if err != nil || q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		return
	}
	v := questView{doc: doc, q: q}
	if mw.GetRole(c) != model.RoleGM && !visibleTo(v, h.username(c)) {
		// Hidden quests are indistinguishable from absent ones.
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		return
	}
	c.JSON(http.StatusOK, h.render(v))
}

// Create creates a new quest from a partial record.
// POST /api/quests   (GM only)
func (h *QuestHandler) Create(c *gin.Context) {
	start := time.Now()
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.quests.Create(c.Request.Context(), body)
	h.log(c, "quest.create", questID(q), body, err, start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": q.ID, "title": q.Title})
}

// Patch applies a partial update to a quest record.
// PATCH /api/quests/:id   (GM only)
func (h *QuestHandler) Patch(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.quests.Update(c.Request.Context(), id, patch, mw.GetAccountID(c))
	h.log(c, "quest.update", id, patch, err, start)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": q.ID, "status": string(q.Status)})
}

// Delete removes a quest. Deleting an unknown id is a no-op.
// DELETE /api/quests/:id   (GM only)
func (h *QuestHandler) Delete(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	err := h.quests.Delete(c.Request.Context(), id)
	h.log(c, "quest.delete", id, nil, err, start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type reorderRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// Reorder rewrites sort values from the given id order. Each quest
// gets index*10 so manual drags can slot between neighbours later.
// POST /api/quests/reorder   (GM only)
func (h *QuestHandler) Reorder(c *gin.Context) {
	start := time.Now()
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := mw.GetAccountID(c)
	updated := 0
	for i, id := range req.IDs {
		patch := map[string]interface{}{"sort": float64(i * 10)}
		if _, err := h.quests.Update(c.Request.Context(), id, patch, actor); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			h.log(c, "quest.reorder", id, req, err, start)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reorder failed"})
			return
		}
		updated++
	}
	h.log(c, "quest.reorder", "", req, nil, start)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *QuestHandler) username(c *gin.Context) string {
	var row struct{ Username string }
	if err := h.db.Table("accounts").Select("username").
		Where("id = ?", mw.GetAccountID(c)).Scan(&row).Error; err != nil {
		return ""
	}
	return row.Username
}

func (h *QuestHandler) log(c *gin.Context, action, questID string, req interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	accountID := mw.GetAccountID(c)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	h.audit.Log(audit.Entry{
		AccountID:  &accountID,
		Username:   h.username(c),
		Action:     action,
		QuestID:    questID,
		Request:    req,
		Error:      errMsg,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
}

func questID(q *quest.Quest) string {
	if q == nil {
		return ""
	}
	return q.ID
}
