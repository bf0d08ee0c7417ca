package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/api/rest"
	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/broadcast"
	"github.com/philsgames/questtracker/game/calsync"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/watcher"
	mw "github.com/philsgames/questtracker/middleware"
	"github.com/philsgames/questtracker/model"
	"github.com/philsgames/questtracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nullPoster struct{}

func (nullPoster) PostMessage(ctx context.Context, htmlContent, speaker string) error { return nil }

// asRole injects an authenticated identity, standing in for mw.Auth.
func asRole(accountID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(mw.AccountIDKey, accountID)
		c.Set(mw.RoleKey, role)
		c.Next()
	}
}

func newQuestAPI(t *testing.T, role string) (*gin.Engine, *quest.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	bus := docstore.NewBus()
	docs := docstore.New(db, bus, zap.NewNop())
	quests := quest.NewStore(docs, "Quest Tracker", zap.NewNop())

	announcer := broadcast.New(nullPoster{}, "Quest Tracker", zap.NewNop())
	w := watcher.New(quests, nil, calsync.New(nil, zap.NewNop()), announcer, true, zap.NewNop())
	w.Attach(bus)
	t.Cleanup(func() { w.Detach(bus) })

	// Seed the player account so audit rows carry the username.
	require.NoError(t, db.Create(&model.Account{Username: "tester", Role: role}).Error)

	h := rest.NewQuestHandler(db, quests, nil, zap.NewNop())
	r := gin.New()
	g := r.Group("/api/quests")
	g.Use(asRole(1, role))
	g.GET("", h.List)
	g.POST("/reorder", mw.RequireGM(), h.Reorder)
	g.GET("/:id", h.Get)
	g.POST("", mw.RequireGM(), h.Create)
	g.PATCH("/:id", mw.RequireGM(), h.Patch)
	g.DELETE("/:id", mw.RequireGM(), h.Delete)
	return r, quests
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuestCreateAndGet(t *testing.T) {
	r, _ := newQuestAPI(t, model.RoleGM)

	w := doJSON(r, http.MethodPost, "/api/quests", map[string]interface{}{"title": "Dragon Hunt"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)

	w = doJSON(r, http.MethodGet, "/api/quests/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Dragon Hunt", got["title"])
	assert.Equal(t, id, got["id"])
}

func TestQuestListFiltersForPlayers(t *testing.T) {
	r, quests := newQuestAPI(t, model.RolePlayer)
	ctx := context.Background()

	_, err := quests.Create(ctx, map[string]interface{}{
		"title": "Open", "status": "active", "visibility": "always",
	})
	require.NoError(t, err)
	_, err = quests.Create(ctx, map[string]interface{}{
		"title": "Secret", "status": "active", "visibility": "gm",
	})
	require.NoError(t, err)
	_, err = quests.Create(ctx, map[string]interface{}{
		"title": "Draft", "visibility": "always",
	})
	require.NoError(t, err)
	_, err = quests.Create(ctx, map[string]interface{}{
		"title": "Allowed", "status": "active", "visibility": "gm",
		"visibleTo": []interface{}{"tester"},
	})
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/api/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Quests []map[string]interface{} `json:"quests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	titles := make([]string, 0, len(resp.Quests))
	for _, q := range resp.Quests {
		titles = append(titles, q["title"].(string))
	}
	assert.Contains(t, titles, "Open")
	assert.NotContains(t, titles, "Secret", "gm-only quests hidden from players")
	assert.NotContains(t, titles, "Draft", "drafts hidden from players")
	assert.NotContains(t, titles, "Allowed", "gm visibility beats the allow-list")
}

func TestQuestGetHiddenLooksAbsent(t *testing.T) {
	r, quests := newQuestAPI(t, model.RolePlayer)

	q, err := quests.Create(context.Background(), map[string]interface{}{
		"title": "Secret", "status": "active", "visibility": "gm",
	})
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/api/quests/"+q.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuestMutationsRequireGM(t *testing.T) {
	r, quests := newQuestAPI(t, model.RolePlayer)

	q, err := quests.Create(context.Background(), map[string]interface{}{"title": "Locked"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/api/quests", map[string]interface{}{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodPatch, "/api/quests/"+q.ID, map[string]interface{}{"status": "active"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/quests/"+q.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQuestPatch(t *testing.T) {
	r, quests := newQuestAPI(t, model.RoleGM)
	ctx := context.Background()

	q, err := quests.Create(ctx, map[string]interface{}{"title": "WIP"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodPatch, "/api/quests/"+q.ID, map[string]interface{}{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := quests.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusActive, got.Status)
}

func TestQuestPatchMissing(t *testing.T) {
	r, _ := newQuestAPI(t, model.RoleGM)
	w := doJSON(r, http.MethodPatch, "/api/quests/missing", map[string]interface{}{"status": "active"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuestReorder(t *testing.T) {
	r, quests := newQuestAPI(t, model.RoleGM)
	ctx := context.Background()

	a, err := quests.Create(ctx, map[string]interface{}{"title": "A"})
	require.NoError(t, err)
	b, err := quests.Create(ctx, map[string]interface{}{"title": "B"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/api/quests/reorder", map[string]interface{}{
		"ids": []string{b.ID, a.ID},
	})
	require.Equal(t, http.StatusOK, w.Code)

	gotB, err := quests.Get(ctx, b.ID)
	require.NoError(t, err)
	gotA, err := quests.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), gotB.Sort)
	assert.Equal(t, float64(10), gotA.Sort)

	// List reflects the new order.
	w = doJSON(r, http.MethodGet, "/api/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Quests []map[string]interface{} `json:"quests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Quests, 2)
	assert.Equal(t, "B", resp.Quests[0]["title"])
	assert.Equal(t, "A", resp.Quests[1]["title"])
}

func TestQuestDelete(t *testing.T) {
	r, quests := newQuestAPI(t, model.RoleGM)
	ctx := context.Background()

	q, err := quests.Create(ctx, map[string]interface{}{"title": "Gone"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodDelete, "/api/quests/"+q.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = quests.Get(ctx, q.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	// Deleting again is still OK.
	w = doJSON(r, http.MethodDelete, "/api/quests/"+q.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
