package docstore_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *docstore.Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return docstore.New(db, docstore.NewBus(), zap.NewNop())
}

func TestStoreCreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, docstore.CreateInput{
		Name:   "Dragon Hunt",
		Folder: "Quest Tracker",
		Flags: map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{"title": "Dragon Hunt"},
			},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dragon Hunt", got.Name)

	raw, ok := docstore.GetFlag(got, "quest-tracker", "data")
	require.True(t, ok)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "Dragon Hunt", data["title"])
}

func TestStoreGetNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStoreListByFolder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := s.Create(ctx, docstore.CreateInput{Name: name, Folder: "quests"})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, docstore.CreateInput{Name: "c", Folder: "other"})
	require.NoError(t, err)

	docs, err := s.List(ctx, "quests")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestStoreUpdateMergesFlags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, docstore.CreateInput{
		Name:   "q",
		Folder: "quests",
		Flags: map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{
					"title":  "q",
					"status": "draft",
					"notes":  map[string]interface{}{"gm": "secret"},
				},
			},
		},
	})
	require.NoError(t, err)

	updated, err := s.Update(ctx, doc.ID, map[string]interface{}{
		"name": "q2",
		"flags": map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{
					"status": "active",
					"notes":  map[string]interface{}{"player": "hello"},
				},
			},
		},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "q2", updated.Name)

	raw, ok := docstore.GetFlag(updated, "quest-tracker", "data")
	require.True(t, ok)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "q", data["title"], "untouched keys survive the merge")

	notes := data["notes"].(map[string]interface{})
	assert.Equal(t, "secret", notes["gm"], "nested maps merge key by key")
	assert.Equal(t, "hello", notes["player"])
}

func TestStoreUpdatePermission(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, docstore.CreateInput{Name: "q", Folder: "quests"})
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Permission)

	updated, err := s.Update(ctx, doc.ID, map[string]interface{}{"permission": 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Permission)
}

func TestStoreUpdatePublishesEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := docstore.NewBus()
	s := docstore.New(db, bus, zap.NewNop())
	ctx := context.Background()

	var events []string
	record := func(ctx context.Context, event string, data interface{}) error {
		events = append(events, event)
		return nil
	}
	bus.Register(docstore.EventPostCreate, 10, "t", record)
	bus.Register(docstore.EventPreUpdate, 10, "t", record)
	bus.Register(docstore.EventPostUpdate, 10, "t", record)
	bus.Register(docstore.EventPostDelete, 10, "t", record)

	doc, err := s.Create(ctx, docstore.CreateInput{Name: "q", Folder: "quests"})
	require.NoError(t, err)
	_, err = s.Update(ctx, doc.ID, map[string]interface{}{"name": "q2"}, 1)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, doc.ID))

	assert.Equal(t, []string{
		docstore.EventPostCreate,
		docstore.EventPreUpdate,
		docstore.EventPostUpdate,
		docstore.EventPostDelete,
	}, events)
}

func TestStoreDeleteMissingIsNoop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := docstore.NewBus()
	s := docstore.New(db, bus, zap.NewNop())

	fired := false
	bus.Register(docstore.EventPostDelete, 10, "t", func(ctx context.Context, event string, data interface{}) error {
		fired = true
		return nil
	})

	require.NoError(t, s.Delete(context.Background(), "missing"))
	assert.False(t, fired, "no notification for a missing id")
}

func TestMergeMaps(t *testing.T) {
	dst := map[string]interface{}{
		"a": 1,
		"nested": map[string]interface{}{
			"keep":    "yes",
			"replace": "old",
		},
		"list":   []interface{}{1, 2, 3},
		"remove": "me",
	}
	src := map[string]interface{}{
		"b": 2,
		"nested": map[string]interface{}{
			"replace": "new",
		},
		"list":   []interface{}{9},
		"remove": nil,
	}

	out := docstore.MergeMaps(dst, src)

	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["b"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, "yes", nested["keep"])
	assert.Equal(t, "new", nested["replace"])
	assert.Equal(t, []interface{}{9}, out["list"], "arrays replace wholesale")
	_, exists := out["remove"]
	assert.False(t, exists, "nil source value deletes the key")
}

func TestDeltaFlag(t *testing.T) {
	delta := map[string]interface{}{
		"flags": map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{"status": "completed"},
			},
		},
	}
	patch := docstore.DeltaFlag(delta, "quest-tracker", "data")
	require.NotNil(t, patch)
	assert.Equal(t, "completed", patch["status"])

	assert.Nil(t, docstore.DeltaFlag(map[string]interface{}{"name": "x"}, "quest-tracker", "data"))
	assert.Nil(t, docstore.DeltaFlag(delta, "other-ns", "data"))
}

func TestStoreUpdateWritesOnlyTouchedColumns(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := docstore.New(db, docstore.NewBus(), zap.NewNop())
	ctx := context.Background()

	doc, err := s.Create(ctx, docstore.CreateInput{
		Name:   "Dragon Hunt",
		Folder: "Quest Tracker",
		Flags: map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{"title": "Dragon Hunt"},
			},
		},
	})
	require.NoError(t, err)

	// Another writer renames the row between our read and our write.
	require.NoError(t, db.Table("documents").
		Where("id = ?", doc.ID).
		Update("name", "Renamed Elsewhere").Error)

	// A flags-only delta must not push our stale name back.
	_, err = s.Update(ctx, doc.ID, map[string]interface{}{
		"flags": map[string]interface{}{
			"quest-tracker": map[string]interface{}{
				"data": map[string]interface{}{"status": "active"},
			},
		},
	}, 1)
	require.NoError(t, err)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Elsewhere", got.Name)

	raw, ok := docstore.GetFlag(got, "quest-tracker", "data")
	require.True(t, ok)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "Dragon Hunt", data["title"], "merge keeps sibling keys")
}
