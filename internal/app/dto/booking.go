package dto

import (
	"activityhub/internal/domain/booking"
)

type Booking struct {
	ID           string  `json:"id"`
	WindowID     string  `json:"window_id"`
	ResourceID   string  `json:"resource_id"`
	Kind         string  `json:"kind"`
	Quantity     int     `json:"quantity"`
	Status       string  `json:"status"`
	CustomerRef  string  `json:"customer_ref,omitempty"`
	StaffRef     string  `json:"staff_ref,omitempty"`
	CancelReason string  `json:"cancel_reason,omitempty"`
	ServiceDay   string  `json:"service_day"`
	Ticket       *Ticket `json:"ticket,omitempty"`
	Version      int64   `json:"version"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func MapBooking(b *booking.Booking, t *booking.Ticket) Booking {
	if b == nil {
		return Booking{}
	}
	out := Booking{
		ID:           string(b.ID),
		WindowID:     string(b.WindowID),
		ResourceID:   string(b.ResourceID),
		Kind:         string(b.Kind),
		Quantity:     b.Quantity,
		Status:       string(b.Status),
		CustomerRef:  b.CustomerRef,
		StaffRef:     b.StaffRef,
		CancelReason: b.CancelReason,
		ServiceDay:   FormatDay(b.ServiceDay),
		Version:      b.Version,
		CreatedAt:    FormatLocal(b.CreatedAt),
		UpdatedAt:    FormatLocal(b.UpdatedAt),
	}
	if t != nil {
		mapped := MapTicket(t)
		out.Ticket = &mapped
	}
	return out
}

type Ticket struct {
	ID        string `json:"id"`
	BookingID string `json:"booking_id"`
	WindowID  string `json:"window_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	IssuedAt  string `json:"issued_at"`
}

func MapTicket(t *booking.Ticket) Ticket {
	if t == nil {
		return Ticket{}
	}
	return Ticket{
		ID:        string(t.ID),
		BookingID: string(t.BookingID),
		WindowID:  string(t.WindowID),
		Quantity:  t.Quantity,
		Status:    string(t.Status),
		Reason:    t.Reason,
		IssuedAt:  FormatLocal(t.IssuedAt),
	}
}

type DayStat struct {
	Day      string `json:"day"`
	Consumed int    `json:"consumed"`
	Bookings int    `json:"bookings"`
}

type ResourceStats struct {
	ResourceID string    `json:"resource_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Total      int       `json:"total"`
	Days       []DayStat `json:"days"`
}

func MapStats(resourceID string, from, to string, stats []booking.DayStat) ResourceStats {
	out := ResourceStats{ResourceID: resourceID, From: from, To: to, Days: make([]DayStat, 0, len(stats))}
	for _, s := range stats {
		out.Total += s.Consumed
		out.Days = append(out.Days, DayStat{Day: s.Day, Consumed: s.Consumed, Bookings: s.Bookings})
	}
	return out
}

// HistoryEntry is one status change of a booking as recorded by the projection.
type HistoryEntry struct {
	BookingID  string `json:"booking_id"`
	EventID    string `json:"event_id"`
	Event      string `json:"event"`
	Status     string `json:"status"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
