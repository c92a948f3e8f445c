package daterange

import (
	"time"

	"activityhub/internal/domain/shared/apperr"
)

// ErrInvalidRange is an InvalidWindow error.
var ErrInvalidRange = apperr.InvalidWindow("daterange", "end must be after start")

// DateRange represents a half-open interval [Start, End).
//
// All values are naive local wall-clock times carried in time.UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: Naive(start), End: Naive(end)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (dr DateRange) Validate() error {
	if dr.End.IsZero() || dr.Start.IsZero() {
		return ErrInvalidRange
	}
	if !dr.End.After(dr.Start) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.Start.Before(other.End) && other.Start.Before(dr.End)
}

func (dr DateRange) Contains(other DateRange) bool {
	return !other.Start.Before(dr.Start) && !other.End.After(dr.End)
}

func (dr DateRange) ContainsTime(t time.Time) bool {
	t = Naive(t)
	return !t.Before(dr.Start) && t.Before(dr.End)
}

func (dr DateRange) Adjacent(other DateRange) bool {
	return dr.End.Equal(other.Start) || dr.Start.Equal(other.End)
}

// Days returns the start of every calendar day touched by the range.
func (dr DateRange) Days() []time.Time {
	if !dr.End.After(dr.Start) {
		return nil
	}
	var days []time.Time
	for d := Day(dr.Start); d.Before(dr.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Naive drops the location of t while keeping its wall clock.
func Naive(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Day truncates t to the start of its naive local day.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the naive start of the current day as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return Day(now)
}

// DayRange returns the half-open range covering the inclusive days [from, to].
func DayRange(from, to time.Time) DateRange {
	return DateRange{Start: Day(from), End: Day(to).AddDate(0, 0, 1)}
}

// DayKey formats the naive date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
