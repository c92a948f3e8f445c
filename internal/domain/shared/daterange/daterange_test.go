package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewRejectsEmptyAndInverted(t *testing.T) {
	_, err := New(day(2026, 1, 2), day(2026, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(day(2026, 1, 1), day(2026, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	dr, err := New(day(2026, 1, 1), day(2026, 1, 3))
	require.NoError(t, err)
	assert.Len(t, dr.Days(), 2)
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	a := DateRange{Start: day(2026, 1, 1), End: day(2026, 1, 3)}
	b := DateRange{Start: day(2026, 1, 3), End: day(2026, 1, 5)}
	c := DateRange{Start: day(2026, 1, 2), End: day(2026, 1, 4)}

	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Adjacent(b))
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(b))
}

func TestContainsTime(t *testing.T) {
	dr := DayRange(day(2026, 3, 1), day(2026, 3, 1))
	assert.True(t, dr.ContainsTime(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.False(t, dr.ContainsTime(day(2026, 3, 2)))
}

func TestNaiveKeepsWallClock(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2026, 5, 10, 9, 30, 0, 0, loc)
	out := Naive(in)
	assert.Equal(t, 9, out.Hour())
	assert.Equal(t, time.UTC, out.Location())
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, day(2026, 5, 11), Today(now, loc))
	assert.Equal(t, "2026-05-10", DayKey(Today(now, time.UTC)))
}
