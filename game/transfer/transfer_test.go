package transfer_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/transfer"
	"github.com/philsgames/questtracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*transfer.Service, *quest.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	docs := docstore.New(db, docstore.NewBus(), zap.NewNop())
	quests := quest.NewStore(docs, "Quest Tracker", zap.NewNop())
	return transfer.New(quests, zap.NewNop()), quests
}

func TestExportImportRoundTrip(t *testing.T) {
	svc, quests := newService(t)
	ctx := context.Background()

	_, err := quests.Create(ctx, map[string]interface{}{
		"title":  "Dragon Hunt",
		"status": "active",
		"objectives": []interface{}{
			map[string]interface{}{"id": "o1", "text": "Find the lair", "completed": true},
		},
		"rewards": []interface{}{
			map[string]interface{}{"type": "item", "name": "Sword", "quantity": 1},
		},
		"xp": 500,
	})
	require.NoError(t, err)
	_, err = quests.Create(ctx, map[string]interface{}{"title": "Errand"})
	require.NoError(t, err)

	data, err := svc.Export(ctx)
	require.NoError(t, err)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)

	// Import into a fresh collection.
	svc2, quests2 := newService(t)
	count, err := svc2.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	imported, err := quests2.List(ctx)
	require.NoError(t, err)
	require.Len(t, imported, 2)

	byTitle := map[string]*quest.Quest{}
	for _, q := range imported {
		byTitle[q.Title] = q
	}
	hunt := byTitle["Dragon Hunt"]
	require.NotNil(t, hunt)
	assert.Equal(t, quest.StatusActive, hunt.Status)
	assert.Equal(t, 500, hunt.XP)
	require.Len(t, hunt.Objectives, 1)
	assert.True(t, hunt.Objectives[0].Completed)
	require.Len(t, hunt.Rewards, 1)
	assert.Equal(t, "Sword", hunt.Rewards[0].Name)
}

func TestImportRejectsNonList(t *testing.T) {
	svc, quests := newService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte(`{"title": "not a list"}`))
	assert.ErrorIs(t, err, transfer.ErrNotAList)

	existing, err := quests.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, existing, "nothing written on a malformed payload")
}

func TestImportSkipsUntitledEntries(t *testing.T) {
	svc, quests := newService(t)
	ctx := context.Background()

	count, err := svc.Import(ctx, []byte(`[
		{"title": "Good"},
		{"title": ""},
		{"description": "no title at all"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	quests2, err := quests.List(ctx)
	require.NoError(t, err)
	assert.Len(t, quests2, 1)
}

func TestImportEmptyList(t *testing.T) {
	svc, _ := newService(t)
	count, err := svc.Import(context.Background(), []byte(`[]`))
	require.NoError(t, err)
	assert.Zero(t, count)
}
