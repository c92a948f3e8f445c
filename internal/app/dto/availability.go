package dto

import (
	"activityhub/internal/app/capacity"
	"activityhub/internal/domain/availability"
)

type Window struct {
	ID            string `json:"id"`
	ResourceID    string `json:"resource_id"`
	Kind          string `json:"kind"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
	AvailableFrom string `json:"available_from,omitempty"`
	ValidFrom     string `json:"valid_from,omitempty"`
	ValidTo       string `json:"valid_to,omitempty"`
	Total         int    `json:"total"`
	Consumed      int    `json:"consumed"`
	Remaining     int    `json:"remaining"`
	Bookable      bool   `json:"bookable"`
	Closed        bool   `json:"closed"`
	Flagged       bool   `json:"flagged,omitempty"`
	FlagReason    string `json:"flag_reason,omitempty"`
	Sequence      int64  `json:"sequence"`
	Version       int64  `json:"version"`
}

func MapWindow(w *availability.Window) Window {
	if w == nil {
		return Window{}
	}
	out := Window{
		ID:         string(w.ID),
		ResourceID: string(w.ResourceID),
		Kind:       string(w.Kind()),
		Total:      w.Counter.Total,
		Consumed:   w.Counter.Consumed,
		Remaining:  w.Remaining(),
		Bookable:   w.Bookable,
		Closed:     w.Closed,
		Flagged:    w.Flagged,
		FlagReason: w.FlagReason,
		Sequence:   w.Sequence,
		Version:    w.Version,
	}
	switch s := w.Spec.(type) {
	case availability.SlotSpec:
		out.Start, out.End = FormatLocal(s.Start), FormatLocal(s.End)
	case availability.UnitPoolSpec:
		out.AvailableFrom = FormatLocal(s.AvailableFrom)
	case availability.AllotmentSpec:
		out.ValidFrom, out.ValidTo = FormatDay(s.ValidFrom), FormatDay(s.ValidTo)
	}
	return out
}

func MapWindows(ws []*availability.Window) []Window {
	out := make([]Window, 0, len(ws))
	for _, w := range ws {
		out = append(out, MapWindow(w))
	}
	return out
}

type Reservation struct {
	Token     string `json:"token"`
	WindowID  string `json:"window_id"`
	Quantity  int    `json:"quantity"`
	State     string `json:"state"`
	Remaining int    `json:"remaining"`
	ExpiresAt string `json:"expires_at"`
}

func MapReservation(t capacity.Token) Reservation {
	return Reservation{
		Token:     t.ID,
		WindowID:  string(t.WindowID),
		Quantity:  t.Quantity,
		State:     string(t.State),
		Remaining: t.Remaining,
		ExpiresAt: t.ExpiresAt.Format(LocalLayout + "Z07:00"),
	}
}

type WindowDrift struct {
	WindowID string `json:"window_id"`
	Counter  int    `json:"counter"`
	Ledger   int    `json:"ledger"`
	Held     int    `json:"held"`
}

type ReconciliationReport struct {
	Checked int           `json:"checked"`
	Drifted []WindowDrift `json:"drifted"`
}
