package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

var now = time.Date(2026, time.May, 6, 9, 30, 0, 0, time.UTC)

func resource(t *testing.T, id string, seq int64, attrs catalog.Attributes) *catalog.Resource {
	t.Helper()
	r, err := catalog.NewResource(catalog.CreateParams{ID: catalog.ResourceID(id), VendorID: "ven-1", Attributes: attrs, Sequence: seq, Now: now})
	require.NoError(t, err)
	return r
}

func TestCounter(t *testing.T) {
	c := Counter{Total: 6, Consumed: 4}

	_, err := c.Consume(3)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)

	next, err := c.Consume(2)
	require.NoError(t, err)
	assert.Equal(t, 6, next.Consumed)
	assert.Equal(t, 0, next.Remaining())

	_, err = c.Consume(0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, 0, Counter{Total: 3, Consumed: 1}.Restore(5).Consumed)
	assert.True(t, Counter{Total: 2, Consumed: 2}.Valid())
	assert.False(t, Counter{Total: 2, Consumed: 3}.Valid())
}

func TestNewWindowSlot(t *testing.T) {
	res := resource(t, "res-tour", 1, catalog.SlotAttributes{DurationMinutes: 120, MaxParticipants: 12})
	start := now.Add(48 * time.Hour)

	w, err := NewWindow(CreateParams{ID: "win-1", Resource: res, Spec: SlotSpec{Start: start}, Sequence: 1, Now: now})
	require.NoError(t, err)

	slot := w.Spec.(SlotSpec)
	assert.Equal(t, start.Add(2*time.Hour), slot.End, "end defaults to start + duration")
	assert.Equal(t, 12, w.Counter.Total)
	assert.Equal(t, 12, w.Remaining())
	assert.True(t, w.AcceptsBookings())
	assert.Equal(t, int64(1), w.ResourceSequence)
}

func TestNewWindowRejectsBadSpecs(t *testing.T) {
	slot := resource(t, "res-tour", 1, catalog.SlotAttributes{DurationMinutes: 60, MaxParticipants: 4})
	pool := resource(t, "res-bikes", 2, catalog.UnitPoolAttributes{TotalUnits: 6})
	pass := resource(t, "res-pass", 3, catalog.AllotmentAttributes{ValidFrom: now, ValidTo: now.AddDate(0, 0, 10), Total: 100})
	negative := -1

	cases := []struct {
		name string
		res  *catalog.Resource
		spec Spec
		cap  *int
		kind error
	}{
		{"slot end before start", slot, SlotSpec{Start: now.Add(5 * time.Hour), End: now.Add(4 * time.Hour)}, nil, apperr.ErrInvalidWindow},
		{"slot in the past", slot, SlotSpec{Start: now.Add(-time.Hour)}, nil, apperr.ErrInvalidWindow},
		{"slot starting now", slot, SlotSpec{Start: now}, nil, apperr.ErrInvalidWindow},
		{"allotment reversed", pass, AllotmentSpec{ValidFrom: now.AddDate(0, 0, 5), ValidTo: now}, nil, apperr.ErrInvalidWindow},
		{"kind mismatch", pool, SlotSpec{Start: now.Add(time.Hour)}, nil, apperr.ErrValidation},
		{"negative capacity", pool, UnitPoolSpec{}, &negative, apperr.ErrValidation},
		{"missing spec", pool, nil, nil, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWindow(CreateParams{ID: "w", Resource: tc.res, Spec: tc.spec, Capacity: tc.cap, Now: now})
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestNewWindowOnArchivedResource(t *testing.T) {
	fsm := lifecycle.NewManager()
	res := resource(t, "res-bikes", 1, catalog.UnitPoolAttributes{TotalUnits: 6})
	require.NoError(t, res.SetStatus(lifecycle.StatusPublished, now, fsm))
	require.NoError(t, res.SetStatus(lifecycle.StatusArchived, now, fsm))

	_, err := NewWindow(CreateParams{ID: "w", Resource: res, Spec: UnitPoolSpec{}, Now: now})
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)
}

func TestSpecOverlaps(t *testing.T) {
	day := daterange.Day(now)
	week := daterange.DateRange{Start: day, End: day.AddDate(0, 0, 7)}

	pass := AllotmentSpec{ValidFrom: day.AddDate(0, 0, 6), ValidTo: day.AddDate(0, 0, 20)}
	assert.True(t, pass.Overlaps(week), "allotment touching the last day is included")
	assert.False(t, AllotmentSpec{ValidFrom: day.AddDate(0, 0, 7), ValidTo: day.AddDate(0, 0, 9)}.Overlaps(week))

	pool := UnitPoolSpec{AvailableFrom: day.AddDate(-1, 0, 0)}
	assert.True(t, pool.Overlaps(week), "pools are open ended")
	assert.False(t, UnitPoolSpec{AvailableFrom: day.AddDate(0, 0, 7)}.Overlaps(week))

	slot := SlotSpec{Start: day.AddDate(0, 0, 7), End: day.AddDate(0, 0, 7).Add(time.Hour)}
	assert.False(t, slot.Overlaps(week), "half-open end excludes a slot starting at the boundary")

	assert.True(t, pass.OccursOn(day.AddDate(0, 0, 20)))
	assert.False(t, pass.OccursOn(day.AddDate(0, 0, 21)))
	assert.Equal(t, 15, pass.DayCount())
}

func TestSortWindows(t *testing.T) {
	start := now.Add(24 * time.Hour)
	mk := func(id string, resSeq, seq int64, at time.Time) *Window {
		return &Window{ID: WindowID(id), ResourceSequence: resSeq, Sequence: seq, Spec: SlotSpec{Start: at, End: at.Add(time.Hour)}}
	}
	ws := []*Window{
		mk("late", 1, 1, start.Add(2*time.Hour)),
		mk("b-second", 2, 2, start),
		mk("b-first", 2, 1, start),
		mk("a", 1, 9, start),
	}
	SortWindows(ws)

	var ids []WindowID
	for _, w := range ws {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []WindowID{"a", "b-first", "b-second", "late"}, ids)
}

func TestCloseAndReconcile(t *testing.T) {
	res := resource(t, "res-bikes", 1, catalog.UnitPoolAttributes{TotalUnits: 6})
	w, err := NewWindow(CreateParams{ID: "w", Resource: res, Spec: UnitPoolSpec{}, Now: now})
	require.NoError(t, err)

	w.Flagged, w.FlagReason = true, "release failed"
	w.Reconciled(Counter{Total: 6, Consumed: 2}, now)
	assert.False(t, w.Flagged)
	assert.Equal(t, 4, w.Remaining())

	require.NoError(t, w.Close(now))
	assert.False(t, w.AcceptsBookings())
	assert.ErrorIs(t, w.Close(now), apperr.ErrAlreadyTerminal)
}
