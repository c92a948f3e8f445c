package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

// Wednesday.
var anchor = time.Date(2026, time.April, 15, 13, 45, 0, 0, time.UTC)

func slot(id string, resSeq, seq int64, start time.Time, total, consumed int) *availability.Window {
	return &availability.Window{
		ID:               availability.WindowID(id),
		ResourceID:       "res-1",
		ResourceSequence: resSeq,
		Sequence:         seq,
		Spec:             availability.SlotSpec{Start: start, End: start.Add(time.Hour)},
		Counter:          availability.Counter{Total: total, Consumed: consumed},
		Bookable:         true,
	}
}

func TestGetRangeWeekFromWednesday(t *testing.T) {
	r, err := GetRange(anchor, GranularityWeek)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.April, 13, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Monday, r.Start.Weekday())
	assert.Equal(t, time.Date(2026, time.April, 19, 23, 59, 59, 999999999, time.UTC), r.End)
	assert.Equal(t, time.Sunday, r.End.Weekday())
	assert.Len(t, r.Days, 7)
}

func TestGetRange(t *testing.T) {
	sunday := time.Date(2026, time.April, 19, 8, 0, 0, 0, time.UTC)
	r, err := GetRange(sunday, GranularityWeek)
	require.NoError(t, err)
	assert.Equal(t, 13, r.Start.Day(), "sunday belongs to the week that started on monday")

	r, err = GetRange(anchor, GranularityDay)
	require.NoError(t, err)
	assert.Len(t, r.Days, 1)
	assert.Equal(t, []string{"2026-04-15"}, r.Keys())

	r, err = GetRange(time.Date(2028, time.February, 10, 0, 0, 0, 0, time.UTC), GranularityMonth)
	require.NoError(t, err)
	assert.Len(t, r.Days, 29)
	assert.Equal(t, 1, r.Start.Day())

	_, err = GetRange(anchor, "fortnight")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBucketEventsKeepsEmptyDays(t *testing.T) {
	r, err := GetRange(anchor, GranularityWeek)
	require.NoError(t, err)
	mon := r.Start

	windows := []*availability.Window{
		slot("fri", 1, 4, mon.AddDate(0, 0, 4).Add(9*time.Hour), 5, 0),
		slot("mon-late", 1, 2, mon.Add(15*time.Hour), 5, 0),
		slot("wed", 1, 3, mon.AddDate(0, 0, 2).Add(11*time.Hour), 5, 0),
		slot("mon-early", 1, 1, mon.Add(8*time.Hour), 5, 0),
	}
	buckets := BucketEvents(windows, r)

	require.Len(t, buckets, 7)
	ids := func(key string) []availability.WindowID {
		var out []availability.WindowID
		for _, w := range buckets[key] {
			out = append(out, w.ID)
		}
		return out
	}
	assert.Equal(t, []availability.WindowID{"mon-early", "mon-late"}, ids("2026-04-13"))
	assert.Equal(t, []availability.WindowID{"wed"}, ids("2026-04-15"))
	assert.Equal(t, []availability.WindowID{"fri"}, ids("2026-04-17"))
	assert.Empty(t, buckets["2026-04-14"])
	assert.NotNil(t, buckets["2026-04-14"])
}

func TestBucketEventsTieBreaksOnResourceOrder(t *testing.T) {
	r, _ := GetRange(anchor, GranularityDay)
	at := r.Start.Add(10 * time.Hour)
	buckets := BucketEvents([]*availability.Window{
		slot("second-resource", 2, 1, at, 1, 0),
		slot("first-resource", 1, 7, at, 1, 0),
	}, r)

	day := buckets["2026-04-15"]
	require.Len(t, day, 2)
	assert.Equal(t, availability.WindowID("first-resource"), day[0].ID)
}

func TestBucketEventsMultiDayKinds(t *testing.T) {
	r, _ := GetRange(anchor, GranularityWeek)
	pass := &availability.Window{ID: "pass", Spec: availability.AllotmentSpec{ValidFrom: r.Start.AddDate(0, 0, -3), ValidTo: r.Start.AddDate(0, 0, 1)}}
	bikes := &availability.Window{ID: "bikes", Spec: availability.UnitPoolSpec{AvailableFrom: r.Start.AddDate(0, 0, 5)}}

	buckets := BucketEvents([]*availability.Window{pass, bikes}, r)
	assert.Len(t, buckets["2026-04-13"], 1)
	assert.Len(t, buckets["2026-04-14"], 1)
	assert.Empty(t, buckets["2026-04-15"])
	assert.Len(t, buckets["2026-04-18"], 1)
	assert.Len(t, buckets["2026-04-19"], 1)
}

func TestBuildPublicView(t *testing.T) {
	r, _ := GetRange(anchor, GranularityWeek)
	today := anchor
	published := &catalog.Resource{ID: "res-1", Status: lifecycle.StatusPublished, Attributes: catalog.SlotAttributes{DurationMinutes: 60}}
	draft := &catalog.Resource{ID: "res-2", Status: lifecycle.StatusDraft, Attributes: catalog.SlotAttributes{DurationMinutes: 60}}
	resources := map[catalog.ResourceID]*catalog.Resource{published.ID: published, draft.ID: draft}

	past := slot("past", 1, 1, r.Start.Add(9*time.Hour), 4, 0)
	soldOut := slot("sold-out", 1, 2, today.Add(2*time.Hour), 4, 4)
	open := slot("open", 1, 3, today.AddDate(0, 0, 1), 4, 1)
	hidden := slot("draft", 2, 4, today.AddDate(0, 0, 1), 4, 0)
	hidden.ResourceID = draft.ID
	closed := slot("closed", 1, 5, today.AddDate(0, 0, 2), 4, 0)
	closed.Bookable = false

	cal := Build([]*availability.Window{past, soldOut, open, hidden, closed}, resources, r, ViewPublic, today)
	require.Len(t, cal.Days, 7)
	assert.Empty(t, cal.Days[0].Entries, "days before today are hidden")

	wed := cal.Days[2].Entries
	require.Len(t, wed, 1)
	assert.True(t, wed[0].SoldOut)
	assert.Nil(t, wed[0].Remaining)

	thu := cal.Days[3].Entries
	require.Len(t, thu, 1)
	assert.Equal(t, availability.WindowID("open"), thu[0].Window.ID)
	require.NotNil(t, thu[0].Remaining)
	assert.Equal(t, 3, *thu[0].Remaining)
	assert.Empty(t, cal.Days[4].Entries)

	admin := Build([]*availability.Window{past, soldOut, open, hidden, closed}, resources, r, ViewAdmin, today)
	assert.Len(t, admin.Days[0].Entries, 1)
	assert.Len(t, admin.Days[3].Entries, 2)
}

func TestNavigate(t *testing.T) {
	today := anchor

	next, moved, err := Navigate(anchor, GranularityWeek, DirectionNext, ViewPublic, today)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 22, next.Day())

	prev, moved, err := Navigate(anchor, GranularityWeek, DirectionPrevious, ViewPublic, today)
	require.NoError(t, err)
	assert.False(t, moved, "public view cannot move into a fully past week")
	assert.Equal(t, 15, prev.Day())

	back, moved, err := Navigate(next, GranularityWeek, DirectionPrevious, ViewPublic, today)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 15, back.Day())

	prev, moved, err = Navigate(anchor, GranularityMonth, DirectionPrevious, ViewAdmin, today)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, time.March, prev.Month())

	jan31 := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	feb, _, err := Navigate(jan31, GranularityMonth, DirectionNext, ViewAdmin, today)
	require.NoError(t, err)
	assert.Equal(t, time.February, feb.Month())

	_, _, err = Navigate(anchor, GranularityWeek, "sideways", ViewAdmin, today)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
