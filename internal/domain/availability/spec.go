package availability

import (
	"math"
	"time"

	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

// Spec is the time shape of a window: SlotSpec, UnitPoolSpec or AllotmentSpec.
type Spec interface {
	Kind() catalog.Kind
	// StartsAt is the sort key used by queries and calendars.
	StartsAt() time.Time
	// EndsAt is zero for open-ended pools.
	EndsAt() time.Time
	Overlaps(r daterange.DateRange) bool
	// OccursOn reports whether the window is shown on the given naive day.
	OccursOn(day time.Time) bool

	normalize(attrs catalog.Attributes, now time.Time) (Spec, error)
	validate(now time.Time) error
}

// SlotSpec is a single departure: [Start, End).
type SlotSpec struct {
	Start time.Time
	End   time.Time
}

func (SlotSpec) Kind() catalog.Kind    { return catalog.KindSlot }
func (s SlotSpec) StartsAt() time.Time { return s.Start }
func (s SlotSpec) EndsAt() time.Time   { return s.End }
func (s SlotSpec) Range() daterange.DateRange {
	return daterange.DateRange{Start: s.Start, End: s.End}
}

func (s SlotSpec) Overlaps(r daterange.DateRange) bool {
	return s.Range().Overlaps(r)
}

func (s SlotSpec) OccursOn(day time.Time) bool {
	return daterange.Day(s.Start).Equal(daterange.Day(day))
}

func (s SlotSpec) normalize(attrs catalog.Attributes, _ time.Time) (Spec, error) {
	s.Start = daterange.Naive(s.Start)
	s.End = daterange.Naive(s.End)
	if s.End.IsZero() && !s.Start.IsZero() {
		if a, ok := attrs.(catalog.SlotAttributes); ok {
			s.End = s.Start.Add(a.Duration())
		}
	}
	return s, nil
}

func (s SlotSpec) validate(now time.Time) error {
	const op = "availability.slot"
	if s.Start.IsZero() {
		return apperr.Validation(op, "slot start is required")
	}
	if !s.Start.Before(s.End) {
		return apperr.InvalidWindow(op, "slot start %s must be before end %s", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	if !s.Start.After(now) {
		return apperr.InvalidWindow(op, "slot start %s is not in the future", s.Start.Format(time.RFC3339))
	}
	return nil
}

// UnitPoolSpec is a standing pool with no fixed end.
type UnitPoolSpec struct {
	AvailableFrom time.Time
}

var openEnded = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func (UnitPoolSpec) Kind() catalog.Kind    { return catalog.KindUnitPool }
func (s UnitPoolSpec) StartsAt() time.Time { return s.AvailableFrom }
func (s UnitPoolSpec) EndsAt() time.Time   { return time.Time{} }

func (s UnitPoolSpec) Overlaps(r daterange.DateRange) bool {
	return daterange.DateRange{Start: s.AvailableFrom, End: openEnded}.Overlaps(r)
}

func (s UnitPoolSpec) OccursOn(day time.Time) bool {
	return !daterange.Day(day).Before(daterange.Day(s.AvailableFrom))
}

func (s UnitPoolSpec) normalize(_ catalog.Attributes, now time.Time) (Spec, error) {
	if s.AvailableFrom.IsZero() {
		s.AvailableFrom = daterange.Day(now)
	}
	s.AvailableFrom = daterange.Naive(s.AvailableFrom)
	return s, nil
}

func (s UnitPoolSpec) validate(time.Time) error { return nil }

// AllotmentSpec is valid on every day of [ValidFrom, ValidTo], both inclusive.
type AllotmentSpec struct {
	ValidFrom time.Time
	ValidTo   time.Time
}

func (AllotmentSpec) Kind() catalog.Kind    { return catalog.KindAllotment }
func (s AllotmentSpec) StartsAt() time.Time { return s.ValidFrom }
func (s AllotmentSpec) EndsAt() time.Time   { return s.Range().End }
func (s AllotmentSpec) Range() daterange.DateRange {
	return daterange.DayRange(s.ValidFrom, s.ValidTo)
}

func (s AllotmentSpec) Overlaps(r daterange.DateRange) bool {
	return s.Range().Overlaps(r)
}

func (s AllotmentSpec) OccursOn(day time.Time) bool {
	return s.Range().ContainsTime(daterange.Day(day))
}

func (s AllotmentSpec) normalize(attrs catalog.Attributes, _ time.Time) (Spec, error) {
	if a, ok := attrs.(catalog.AllotmentAttributes); ok {
		if s.ValidFrom.IsZero() {
			s.ValidFrom = a.ValidFrom
		}
		if s.ValidTo.IsZero() {
			s.ValidTo = a.ValidTo
		}
	}
	s.ValidFrom = daterange.Day(s.ValidFrom)
	s.ValidTo = daterange.Day(s.ValidTo)
	return s, nil
}

func (s AllotmentSpec) validate(time.Time) error {
	const op = "availability.allotment"
	if s.ValidFrom.IsZero() || s.ValidTo.IsZero() {
		return apperr.Validation(op, "validity interval is required")
	}
	if s.ValidFrom.After(s.ValidTo) {
		return apperr.InvalidWindow(op, "validFrom %s is after validTo %s", daterange.DayKey(s.ValidFrom), daterange.DayKey(s.ValidTo))
	}
	return nil
}

// DayCount is the number of valid days of an allotment.
func (s AllotmentSpec) DayCount() int {
	return int(math.Round(s.Range().End.Sub(s.Range().Start).Hours() / 24))
}
