package dto

import (
	"activityhub/internal/domain/calendar"
)

type CalendarEntry struct {
	WindowID       string `json:"window_id"`
	ResourceID     string `json:"resource_id"`
	Kind           string `json:"kind"`
	Start          string `json:"start"`
	End            string `json:"end,omitempty"`
	ResourceStatus string `json:"resource_status,omitempty"`
	SoldOut        bool   `json:"sold_out"`
	Remaining      *int   `json:"remaining,omitempty"`
}

type CalendarDay struct {
	Date    string          `json:"date"`
	Entries []CalendarEntry `json:"entries"`
}

type Calendar struct {
	Anchor      string        `json:"anchor"`
	Granularity string        `json:"granularity"`
	View        string        `json:"view"`
	Start       string        `json:"start"`
	End         string        `json:"end"`
	Moved       bool          `json:"moved"`
	Days        []CalendarDay `json:"days"`
}

func MapCalendar(cal calendar.Calendar, moved bool) Calendar {
	out := Calendar{
		Anchor:      FormatDay(cal.Range.Anchor),
		Granularity: string(cal.Range.Granularity),
		View:        string(cal.View),
		Start:       FormatLocal(cal.Range.Start),
		End:         cal.Range.End.Format("2006-01-02T15:04:05.999999999"),
		Moved:       moved,
		Days:        make([]CalendarDay, 0, len(cal.Days)),
	}
	for _, d := range cal.Days {
		day := CalendarDay{Date: d.Key, Entries: make([]CalendarEntry, 0, len(d.Entries))}
		for _, e := range d.Entries {
			w := e.Window
			entry := CalendarEntry{
				WindowID:       string(w.ID),
				ResourceID:     string(w.ResourceID),
				Kind:           string(w.Kind()),
				Start:          FormatLocal(w.Spec.StartsAt()),
				End:            FormatLocal(w.Spec.EndsAt()),
				ResourceStatus: e.ResourceStatus,
				SoldOut:        e.SoldOut,
				Remaining:      e.Remaining,
			}
			day.Entries = append(day.Entries, entry)
		}
		out.Days = append(out.Days, day)
	}
	return out
}
