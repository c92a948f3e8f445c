package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

type BookingRepository struct {
	versioned
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{versioned{col: db.Collection(colBookings), what: "booking"}}
}

func (r *BookingRepository) ByID(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	var doc bookingDocument
	if err := r.findOne(ctx, bson.M{"_id": string(id)}, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save refuses to overwrite a booking that is already terminal.
func (r *BookingRepository) Save(ctx context.Context, b *booking.Booking) error {
	next, err := r.save(ctx, string(b.ID), b.Version, func(next int64) any {
		doc := newBookingDocument(b)
		doc.Version = next
		return doc
	}, nil, func(raw bson.Raw) error {
		status, _ := raw.Lookup("status").StringValueOK()
		current := &booking.Booking{ID: b.ID, Status: lifecycle.Status(status)}
		if current.IsTerminal() {
			return apperr.AlreadyTerminal("mongo.bookings", "booking %s is %s", b.ID, status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.Version = next
	return nil
}

func (r *BookingRepository) list(ctx context.Context, filter bson.M) ([]*booking.Booking, error) {
	var out []*booking.Booking
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	err := r.find(ctx, filter, sort, func(cur *mongo.Cursor) error {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		out = append(out, doc.toAggregate())
		return nil
	})
	return out, err
}

func (r *BookingRepository) ListByWindow(ctx context.Context, windowID availability.WindowID) ([]*booking.Booking, error) {
	return r.list(ctx, bson.M{"window_id": string(windowID)})
}

func (r *BookingRepository) ListByResource(ctx context.Context, resourceID catalog.ResourceID) ([]*booking.Booking, error) {
	return r.list(ctx, bson.M{"resource_id": string(resourceID)})
}

func (r *BookingRepository) ListByStatus(ctx context.Context, status lifecycle.Status) ([]*booking.Booking, error) {
	return r.list(ctx, bson.M{"status": string(status)})
}

type bookingDocument struct {
	ID           string `bson:"_id"`
	WindowID     string `bson:"window_id"`
	ResourceID   string `bson:"resource_id"`
	Kind         string `bson:"kind"`
	Quantity     int    `bson:"quantity"`
	Status       string `bson:"status"`
	CustomerRef  string `bson:"customer_ref,omitempty"`
	StaffRef     string `bson:"staff_ref,omitempty"`
	TokenID      string `bson:"token_id,omitempty"`
	CancelReason string `bson:"cancel_reason,omitempty"`
	ServiceDay   int64  `bson:"service_day"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
	Version      int64  `bson:"version"`
}

func newBookingDocument(b *booking.Booking) bookingDocument {
	return bookingDocument{
		ID:           string(b.ID),
		WindowID:     string(b.WindowID),
		ResourceID:   string(b.ResourceID),
		Kind:         string(b.Kind),
		Quantity:     b.Quantity,
		Status:       string(b.Status),
		CustomerRef:  b.CustomerRef,
		StaffRef:     b.StaffRef,
		TokenID:      b.TokenID,
		CancelReason: b.CancelReason,
		ServiceDay:   millis(b.ServiceDay),
		CreatedAt:    millis(b.CreatedAt),
		UpdatedAt:    millis(b.UpdatedAt),
		Version:      b.Version,
	}
}

func (d bookingDocument) toAggregate() *booking.Booking {
	return &booking.Booking{
		ID:           booking.BookingID(d.ID),
		WindowID:     availability.WindowID(d.WindowID),
		ResourceID:   catalog.ResourceID(d.ResourceID),
		Kind:         catalog.Kind(d.Kind),
		Quantity:     d.Quantity,
		Status:       lifecycle.Status(d.Status),
		CustomerRef:  d.CustomerRef,
		StaffRef:     d.StaffRef,
		TokenID:      d.TokenID,
		CancelReason: d.CancelReason,
		ServiceDay:   timestampToTime(d.ServiceDay),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

type TicketRepository struct {
	versioned
}

func NewTicketRepository(db *mongo.Database) *TicketRepository {
	return &TicketRepository{versioned{col: db.Collection(colTickets), what: "ticket"}}
}

func (r *TicketRepository) ByID(ctx context.Context, id booking.TicketID) (*booking.Ticket, error) {
	var doc ticketDocument
	if err := r.findOne(ctx, bson.M{"_id": string(id)}, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

// ByBooking returns the most recently issued ticket of a booking.
func (r *TicketRepository) ByBooking(ctx context.Context, bookingID booking.BookingID) (*booking.Ticket, error) {
	var doc ticketDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: -1}})
	if err := r.findOne(ctx, bson.M{"booking_id": string(bookingID)}, &doc, opts); err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *TicketRepository) Save(ctx context.Context, t *booking.Ticket) error {
	next, err := r.save(ctx, string(t.ID), t.Version, func(next int64) any {
		doc := newTicketDocument(t)
		doc.Version = next
		return doc
	}, nil, nil)
	if err != nil {
		return err
	}
	t.Version = next
	return nil
}

type ticketDocument struct {
	ID        string `bson:"_id"`
	BookingID string `bson:"booking_id"`
	WindowID  string `bson:"window_id"`
	Quantity  int    `bson:"quantity"`
	Status    string `bson:"status"`
	Reason    string `bson:"reason,omitempty"`
	IssuedAt  int64  `bson:"issued_at"`
	UpdatedAt int64  `bson:"updated_at"`
	Version   int64  `bson:"version"`
}

func newTicketDocument(t *booking.Ticket) ticketDocument {
	return ticketDocument{
		ID:        string(t.ID),
		BookingID: string(t.BookingID),
		WindowID:  string(t.WindowID),
		Quantity:  t.Quantity,
		Status:    string(t.Status),
		Reason:    t.Reason,
		IssuedAt:  millis(t.IssuedAt),
		UpdatedAt: millis(t.UpdatedAt),
		Version:   t.Version,
	}
}

func (d ticketDocument) toAggregate() *booking.Ticket {
	return &booking.Ticket{
		ID:        booking.TicketID(d.ID),
		BookingID: booking.BookingID(d.BookingID),
		WindowID:  availability.WindowID(d.WindowID),
		Quantity:  d.Quantity,
		Status:    lifecycle.Status(d.Status),
		Reason:    d.Reason,
		IssuedAt:  timestampToTime(d.IssuedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
		Version:   d.Version,
	}
}
