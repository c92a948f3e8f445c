// Package calendar turns availability windows into day-bucketed views.
//
// Everything here is pure date arithmetic over naive local times; callers
// supply "today" so views are reproducible.
package calendar

import (
	"strings"
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return GranularityWeek, nil
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	default:
		return "", apperr.Validation("calendar", "unknown granularity %q", raw)
	}
}

type View string

const (
	ViewPublic View = "public"
	ViewAdmin  View = "admin"
)

func ParseView(raw string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(raw))); v {
	case "":
		return ViewPublic, nil
	case ViewPublic, ViewAdmin:
		return v, nil
	default:
		return "", apperr.Validation("calendar", "unknown view %q", raw)
	}
}

type Direction string

const (
	DirectionNone     Direction = ""
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case DirectionNone, DirectionNext, DirectionPrevious:
		return d, nil
	default:
		return "", apperr.Validation("calendar", "unknown direction %q", raw)
	}
}

// Range is an inclusive run of days. End is the last instant of the last day.
type Range struct {
	Anchor      time.Time
	Granularity Granularity
	Start       time.Time
	End         time.Time
	Days        []time.Time
}

// GetRange returns the day, Monday-to-Sunday week, or calendar month containing anchor.
func GetRange(anchor time.Time, g Granularity) (Range, error) {
	day := daterange.Day(daterange.Naive(anchor))
	var first, last time.Time
	switch g {
	case GranularityDay:
		first, last = day, day
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7
		first = day.AddDate(0, 0, -offset)
		last = first.AddDate(0, 0, 6)
	case GranularityMonth:
		first = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		last = first.AddDate(0, 1, -1)
	default:
		return Range{}, apperr.Validation("calendar.get_range", "unknown granularity %q", g)
	}
	r := Range{
		Anchor:      day,
		Granularity: g,
		Start:       first,
		End:         last.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		r.Days = append(r.Days, d)
	}
	return r, nil
}

// Half returns the range as a half-open interval for window queries.
func (r Range) Half() daterange.DateRange {
	return daterange.DateRange{Start: r.Start, End: r.End.Add(time.Nanosecond)}
}

func (r Range) Keys() []string {
	keys := make([]string, len(r.Days))
	for i, d := range r.Days {
		keys[i] = daterange.DayKey(d)
	}
	return keys
}

func shift(anchor time.Time, g Granularity, n int) time.Time {
	switch g {
	case GranularityDay:
		return anchor.AddDate(0, 0, n)
	case GranularityWeek:
		return anchor.AddDate(0, 0, 7*n)
	default:
		// Normalize to the first of the month so Jan 31 + 1 month is February.
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, n, 0)
	}
}

// Navigate moves the anchor one granularity unit. In the public view moving
// to a period that ends before the current period starts is refused and the
// original anchor is returned with moved=false.
func Navigate(anchor time.Time, g Granularity, dir Direction, view View, today time.Time) (next time.Time, moved bool, err error) {
	anchor = daterange.Day(daterange.Naive(anchor))
	if _, err := GetRange(anchor, g); err != nil {
		return anchor, false, err
	}
	switch dir {
	case DirectionNone:
		return anchor, false, nil
	case DirectionNext:
		return shift(anchor, g, 1), true, nil
	case DirectionPrevious:
		candidate := shift(anchor, g, -1)
		if view != ViewPublic {
			return candidate, true, nil
		}
		current, _ := GetRange(today, g)
		prev, _ := GetRange(candidate, g)
		if prev.End.Before(current.Start) {
			return anchor, false, nil
		}
		return candidate, true, nil
	default:
		return anchor, false, apperr.Validation("calendar.navigate", "unknown direction %q", dir)
	}
}

// BucketEvents groups windows under every day of r, including empty days.
// Within a day windows are ordered by start, then resource and window creation order.
func BucketEvents(windows []*availability.Window, r Range) map[string][]*availability.Window {
	sorted := make([]*availability.Window, len(windows))
	copy(sorted, windows)
	availability.SortWindows(sorted)

	buckets := make(map[string][]*availability.Window, len(r.Days))
	for _, day := range r.Days {
		key := daterange.DayKey(day)
		buckets[key] = []*availability.Window{}
		for _, w := range sorted {
			if w.Spec.OccursOn(day) {
				buckets[key] = append(buckets[key], w)
			}
		}
	}
	return buckets
}

// Entry is one window as shown on one day.
type Entry struct {
	Window         *availability.Window
	ResourceStatus string
	SoldOut        bool
	// Remaining is nil when the badge is hidden.
	Remaining *int
}

type Day struct {
	Key     string
	Entries []Entry
}

type Calendar struct {
	Range Range
	View  View
	Days  []Day
}

// Build buckets windows and applies the view policy. The public view drops
// unpublished resources, non-bookable windows, and days before today; sold-out
// windows stay visible without a remaining badge.
func Build(windows []*availability.Window, resources map[catalog.ResourceID]*catalog.Resource, r Range, view View, today time.Time) Calendar {
	today = daterange.Day(today)
	visible := make([]*availability.Window, 0, len(windows))
	for _, w := range windows {
		if view == ViewPublic {
			res, ok := resources[w.ResourceID]
			if !ok || !res.IsPublished() || !w.AcceptsBookings() {
				continue
			}
		}
		visible = append(visible, w)
	}
	buckets := BucketEvents(visible, r)

	cal := Calendar{Range: r, View: view, Days: make([]Day, 0, len(r.Days))}
	for _, day := range r.Days {
		key := daterange.DayKey(day)
		out := Day{Key: key, Entries: []Entry{}}
		if view == ViewPublic && day.Before(today) {
			cal.Days = append(cal.Days, out)
			continue
		}
		for _, w := range buckets[key] {
			entry := Entry{Window: w, SoldOut: w.SoldOut()}
			if res, ok := resources[w.ResourceID]; ok {
				entry.ResourceStatus = string(res.Status)
			}
			if !entry.SoldOut || view == ViewAdmin {
				remaining := w.Remaining()
				entry.Remaining = &remaining
			}
			out.Entries = append(out.Entries, entry)
		}
		cal.Days = append(cal.Days, out)
	}
	return cal
}
