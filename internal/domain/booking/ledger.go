package booking

import (
	"sort"
	"time"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/daterange"
)

// ConsumedByWindow sums quantities of bookings that consume capacity,
// completed seats and tickets included. It is the ledger-side truth the window
// counters are reconciled against.
func ConsumedByWindow(bookings []*Booking) map[availability.WindowID]int {
	out := make(map[availability.WindowID]int)
	for _, b := range bookings {
		if b.ConsumesCapacity() {
			out[b.WindowID] += b.Quantity
		}
	}
	return out
}

// RecordedTokens returns the reservation token ids the bookings carry,
// whatever their status.
func RecordedTokens(bookings []*Booking) map[string]bool {
	out := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		if b.TokenID != "" {
			out[b.TokenID] = true
		}
	}
	return out
}

type DayStat struct {
	Day      string
	Consumed int
	Bookings int
}

// DailyStats aggregates consumed quantity per service day inside r. Cancelled
// bookings are ignored; completed ones count as sold.
func DailyStats(bookings []*Booking, r daterange.DateRange) []DayStat {
	byDay := make(map[string]*DayStat)
	for _, day := range r.Days() {
		key := daterange.DayKey(day)
		byDay[key] = &DayStat{Day: key}
	}
	for _, b := range bookings {
		if b.Status == lifecycle.StatusCancelled {
			continue
		}
		stat, ok := byDay[daterange.DayKey(b.ServiceDay)]
		if !ok {
			continue
		}
		stat.Consumed += b.Quantity
		stat.Bookings++
	}
	out := make([]DayStat, 0, len(byDay))
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// DueForCompletion returns confirmed slot bookings whose departure ended before now.
func DueForCompletion(bookings []*Booking, windows map[availability.WindowID]*availability.Window, now time.Time) []*Booking {
	var out []*Booking
	for _, b := range bookings {
		if b.Status != lifecycle.StatusConfirmed || b.Kind != catalog.KindSlot {
			continue
		}
		w, ok := windows[b.WindowID]
		if !ok {
			continue
		}
		if end := w.Spec.EndsAt(); end.IsZero() || end.After(now) {
			continue
		}
		out = append(out, b)
	}
	return out
}
