package calendar_test

import (
	"context"
	"testing"

	"github.com/philsgames/questtracker/calendar"
	"github.com/philsgames/questtracker/config"
	"github.com/philsgames/questtracker/game/visibility"
	"github.com/philsgames/questtracker/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCalendar(t *testing.T) *calendar.Service {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc, err := calendar.NewService(db, config.CalendarConfig{
		EpochYear: 712, EpochMonth: 3, EpochDay: 22,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestSeedsEpochDate(t *testing.T) {
	svc := newCalendar(t)
	d, err := svc.CurrentDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, visibility.Date{Year: 712, Month: 3, Day: 22}, d)
}

func TestSetCurrentDate(t *testing.T) {
	svc := newCalendar(t)
	ctx := context.Background()

	fired := 0
	svc.OnDateChange(func() { fired++ })

	want := visibility.Date{Year: 713, Month: 0, Day: 1}
	require.NoError(t, svc.SetCurrentDate(ctx, want))

	got, err := svc.CurrentDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, fired, "date-change callback fires after commit")
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "2024-2-15", calendar.DateKey(visibility.Date{Year: 2024, Month: 2, Day: 15}))
}

func TestEventLifecycle(t *testing.T) {
	svc := newCalendar(t)
	ctx := context.Background()

	require.NoError(t, svc.AddEvent(ctx, "712-3-22", calendar.Event{
		Title:         "Start: Dragon Hunt",
		Category:      "quest",
		CorrelationID: "q-1",
	}))
	require.NoError(t, svc.AddEvent(ctx, "712-3-22", calendar.Event{
		Title:  "Market Day",
		Hidden: true,
	}))

	visible, err := svc.EventsOn(ctx, "712-3-22", false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Start: Dragon Hunt", visible[0].Title)

	all, err := svc.EventsOn(ctx, "712-3-22", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemoveLinkedEvent(t *testing.T) {
	svc := newCalendar(t)
	ctx := context.Background()

	require.NoError(t, svc.AddEvent(ctx, "712-3-22", calendar.Event{
		Title: "Start: A", CorrelationID: "q-1",
	}))
	require.NoError(t, svc.AddEvent(ctx, "712-4-1", calendar.Event{
		Title: "Start: A moved", CorrelationID: "q-1",
	}))

	removed, err := svc.RemoveLinkedEvent(ctx, "q-1")
	require.NoError(t, err)
	assert.True(t, removed)

	for _, key := range []string{"712-3-22", "712-4-1"} {
		events, err := svc.EventsOn(ctx, key, true)
		require.NoError(t, err)
		assert.Empty(t, events, key)
	}

	removed, err = svc.RemoveLinkedEvent(ctx, "q-1")
	require.NoError(t, err)
	assert.False(t, removed, "second removal finds nothing")

	removed, err = svc.RemoveLinkedEvent(ctx, "")
	require.NoError(t, err)
	assert.False(t, removed, "empty correlation id never matches")
}

func TestRemoveEventByTitle(t *testing.T) {
	svc := newCalendar(t)
	ctx := context.Background()

	require.NoError(t, svc.AddEvent(ctx, "712-3-22", calendar.Event{Title: "Start: Old"}))
	require.NoError(t, svc.AddEvent(ctx, "712-3-22", calendar.Event{Title: "Keep Me"}))

	require.NoError(t, svc.RemoveEvent(ctx, "712-3-22", "Start: Old"))

	events, err := svc.EventsOn(ctx, "712-3-22", true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Keep Me", events[0].Title)
}
