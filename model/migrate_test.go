package model_test

import (
	"testing"
	"time"

	"github.com/philsgames/questtracker/model"
	"github.com/philsgames/questtracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account
	acc := &model.Account{Username: "test_gm", PasswordHash: "hash", Role: model.RoleGM}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	var found model.Account
	require.NoError(t, db.First(&found, acc.ID).Error)
	assert.Equal(t, "test_gm", found.Username)

	// Document
	doc := &model.Document{
		ID:         "doc-001",
		Name:       "A Quest",
		Folder:     "Quest Tracker",
		Permission: model.PermissionObserver,
		Flags:      datatypes.JSON([]byte(`{"quest-tracker":{"data":{"title":"A Quest"}}}`)),
	}
	require.NoError(t, db.Create(doc).Error)

	var gotDoc model.Document
	require.NoError(t, db.Where("folder = ?", "Quest Tracker").First(&gotDoc).Error)
	assert.Equal(t, "A Quest", gotDoc.Name)

	// CalendarEvent
	ev := &model.CalendarEvent{
		DateKey:       "2024-1-15",
		Title:         "Start: A Quest",
		CorrelationID: doc.ID,
		Timestamp:     time.Now().UnixMilli(),
	}
	require.NoError(t, db.Create(ev).Error)

	var gotEv model.CalendarEvent
	require.NoError(t, db.Where("correlation_id = ?", doc.ID).First(&gotEv).Error)
	assert.Equal(t, "Start: A Quest", gotEv.Title)

	// WorldDate
	require.NoError(t, db.Create(&model.WorldDate{ID: 1, Year: 2024, Month: 1, Day: 15}).Error)

	// AuditLog
	al := &model.AuditLog{TraceID: "trace-001", Action: "quest.create", QuestID: doc.ID}
	require.NoError(t, db.Create(al).Error)
}
