package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
)

type WindowRepository struct {
	versioned
	seq sequences
}

func NewWindowRepository(db *mongo.Database) *WindowRepository {
	return &WindowRepository{versioned: versioned{col: db.Collection(colWindows), what: "window"}, seq: newSequences(db)}
}

func (r *WindowRepository) ByID(ctx context.Context, id availability.WindowID) (*availability.Window, error) {
	var doc windowDocument
	if err := r.findOne(ctx, bson.M{"_id": string(id)}, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate()
}

// Save writes window metadata. The counter and reconciliation flag are set
// on insert only; afterwards CounterStore owns them.
func (r *WindowRepository) Save(ctx context.Context, w *availability.Window) error {
	meta, err := newWindowMeta(w)
	if err != nil {
		return err
	}
	onInsert := bson.M{
		"total":       w.Counter.Total,
		"consumed":    w.Counter.Consumed,
		"flagged":     w.Flagged,
		"flag_reason": w.FlagReason,
	}
	next, err := r.save(ctx, meta.ID, w.Version, func(next int64) any {
		meta.Version = next
		return meta
	}, onInsert, nil)
	if err != nil {
		return err
	}
	w.Version = next
	return nil
}

func (r *WindowRepository) list(ctx context.Context, filter bson.M, keep func(*availability.Window) bool) ([]*availability.Window, error) {
	var out []*availability.Window
	err := r.find(ctx, filter, bson.D{{Key: "start_at", Value: 1}}, func(cur *mongo.Cursor) error {
		var doc windowDocument
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		w, err := doc.toAggregate()
		if err != nil {
			return err
		}
		if keep == nil || keep(w) {
			out = append(out, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	availability.SortWindows(out)
	return out, nil
}

func (r *WindowRepository) ListByResource(ctx context.Context, resourceID catalog.ResourceID) ([]*availability.Window, error) {
	return r.list(ctx, bson.M{"resource_id": string(resourceID)}, nil)
}

func (r *WindowRepository) Query(ctx context.Context, resourceIDs []catalog.ResourceID, dr daterange.DateRange) ([]*availability.Window, error) {
	ids := make([]string, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		ids = append(ids, string(id))
	}
	return r.list(ctx, bson.M{"resource_id": bson.M{"$in": ids}}, func(w *availability.Window) bool {
		return w.Spec.Overlaps(dr)
	})
}

func (r *WindowRepository) ListFlagged(ctx context.Context) ([]*availability.Window, error) {
	return r.list(ctx, bson.M{"flagged": true}, nil)
}

func (r *WindowRepository) ListActive(ctx context.Context) ([]*availability.Window, error) {
	return r.list(ctx, bson.M{"closed": false}, nil)
}

func (r *WindowRepository) NextSequence(ctx context.Context) (int64, error) {
	return r.seq.next(ctx, "window")
}

type windowMeta struct {
	ID               string       `bson:"_id"`
	ResourceID       string       `bson:"resource_id"`
	ResourceSequence int64        `bson:"resource_sequence"`
	Sequence         int64        `bson:"sequence"`
	Kind             string       `bson:"kind"`
	Spec             specDocument `bson:"spec"`
	StartAt          int64        `bson:"start_at"`
	Bookable         bool         `bson:"bookable"`
	Closed           bool         `bson:"closed"`
	Version          int64        `bson:"version"`
	CreatedAt        int64        `bson:"created_at"`
	UpdatedAt        int64        `bson:"updated_at"`
}

type windowDocument struct {
	windowMeta `bson:",inline"`
	Total      int    `bson:"total"`
	Consumed   int    `bson:"consumed"`
	Flagged    bool   `bson:"flagged"`
	FlagReason string `bson:"flag_reason"`
}

type specDocument struct {
	Start         int64 `bson:"start,omitempty"`
	End           int64 `bson:"end,omitempty"`
	AvailableFrom int64 `bson:"available_from,omitempty"`
	ValidFrom     int64 `bson:"valid_from,omitempty"`
	ValidTo       int64 `bson:"valid_to,omitempty"`
}

func newWindowMeta(w *availability.Window) (windowMeta, error) {
	meta := windowMeta{
		ID:               string(w.ID),
		ResourceID:       string(w.ResourceID),
		ResourceSequence: w.ResourceSequence,
		Sequence:         w.Sequence,
		StartAt:          millis(w.Spec.StartsAt()),
		Bookable:         w.Bookable,
		Closed:           w.Closed,
		Version:          w.Version,
		CreatedAt:        millis(w.CreatedAt),
		UpdatedAt:        millis(w.UpdatedAt),
	}
	switch s := w.Spec.(type) {
	case availability.SlotSpec:
		meta.Spec = specDocument{Start: millis(s.Start), End: millis(s.End)}
	case availability.UnitPoolSpec:
		meta.Spec = specDocument{AvailableFrom: millis(s.AvailableFrom)}
	case availability.AllotmentSpec:
		meta.Spec = specDocument{ValidFrom: millis(s.ValidFrom), ValidTo: millis(s.ValidTo)}
	default:
		return windowMeta{}, fmt.Errorf("mongo: window %s has unsupported spec %T", w.ID, w.Spec)
	}
	meta.Kind = string(w.Spec.Kind())
	return meta, nil
}

func (d windowDocument) toAggregate() (*availability.Window, error) {
	w := &availability.Window{
		ID:               availability.WindowID(d.ID),
		ResourceID:       catalog.ResourceID(d.ResourceID),
		ResourceSequence: d.ResourceSequence,
		Sequence:         d.Sequence,
		Counter:          availability.Counter{Total: d.Total, Consumed: d.Consumed},
		Bookable:         d.Bookable,
		Closed:           d.Closed,
		Flagged:          d.Flagged,
		FlagReason:       d.FlagReason,
		Version:          d.Version,
		CreatedAt:        timestampToTime(d.CreatedAt),
		UpdatedAt:        timestampToTime(d.UpdatedAt),
	}
	s := d.Spec
	switch catalog.Kind(d.Kind) {
	case catalog.KindSlot:
		w.Spec = availability.SlotSpec{Start: timestampToTime(s.Start), End: timestampToTime(s.End)}
	case catalog.KindUnitPool:
		w.Spec = availability.UnitPoolSpec{AvailableFrom: timestampToTime(s.AvailableFrom)}
	case catalog.KindAllotment:
		w.Spec = availability.AllotmentSpec{ValidFrom: timestampToTime(s.ValidFrom), ValidTo: timestampToTime(s.ValidTo)}
	default:
		return nil, fmt.Errorf("mongo: window %s has unknown kind %q", d.ID, d.Kind)
	}
	return w, nil
}

// CounterStore applies capacity mutations as single-document atomic updates
// on the committed window, never inside a transaction.
type CounterStore struct {
	col *mongo.Collection
}

func NewCounterStore(db *mongo.Database) *CounterStore {
	return &CounterStore{col: db.Collection(colWindows)}
}

type counterDocument struct {
	Total    int  `bson:"total"`
	Consumed int  `bson:"consumed"`
	Bookable bool `bson:"bookable"`
	Closed   bool `bson:"closed"`
}

func (d counterDocument) counter() availability.Counter {
	return availability.Counter{Total: d.Total, Consumed: d.Consumed}
}

var afterUpdate = options.FindOneAndUpdate().SetReturnDocument(options.After)

// TryConsume increments consumption only when the window accepts bookings
// and consumed + quantity stays within total.
func (c *CounterStore) TryConsume(ctx context.Context, id availability.WindowID, quantity int) (availability.Counter, error) {
	const op = "mongo.counters.consume"
	if quantity <= 0 {
		return availability.Counter{}, apperr.Validation(op, "quantity must be >= 1, got %d", quantity)
	}
	ctx = withoutSession(ctx)
	filter := bson.M{
		"_id":      string(id),
		"bookable": true,
		"closed":   false,
		"$expr":    bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$consumed", quantity}}, "$total"}},
	}
	var doc counterDocument
	err := c.col.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"consumed": quantity}}, afterUpdate).Decode(&doc)
	if err == nil {
		return doc.counter(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return availability.Counter{}, mapErr(op, "window", err)
	}
	// The guarded update matched nothing; read the window to report why.
	if err := c.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return availability.Counter{}, apperr.NotFound(op, "window %s not found", id)
		}
		return availability.Counter{}, mapErr(op, "window", err)
	}
	if !doc.Bookable || doc.Closed {
		return doc.counter(), apperr.AlreadyTerminal(op, "window %s does not accept bookings", id)
	}
	return doc.counter(), apperr.CapacityExceeded(op, "requested %d, remaining %d", quantity, doc.counter().Remaining())
}

// Restore gives back quantity units, floored at zero consumption.
func (c *CounterStore) Restore(ctx context.Context, id availability.WindowID, quantity int) (availability.Counter, error) {
	const op = "mongo.counters.restore"
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"consumed": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$consumed", quantity}}}},
	}}}}
	var doc counterDocument
	err := c.col.FindOneAndUpdate(withoutSession(ctx), bson.M{"_id": string(id)}, update, afterUpdate).Decode(&doc)
	if err != nil {
		return availability.Counter{}, mapErr(op, "window", err)
	}
	return doc.counter(), nil
}

func (c *CounterStore) SetConsumed(ctx context.Context, id availability.WindowID, consumed int) (availability.Counter, error) {
	const op = "mongo.counters.set"
	if consumed < 0 {
		return availability.Counter{}, apperr.Validation(op, "consumed must be >= 0")
	}
	update := bson.M{"$set": bson.M{"consumed": consumed, "flagged": false, "flag_reason": ""}}
	var doc counterDocument
	err := c.col.FindOneAndUpdate(withoutSession(ctx), bson.M{"_id": string(id)}, update, afterUpdate).Decode(&doc)
	if err != nil {
		return availability.Counter{}, mapErr(op, "window", err)
	}
	return doc.counter(), nil
}

func (c *CounterStore) Flag(ctx context.Context, id availability.WindowID, reason string, at time.Time) error {
	update := bson.M{"$set": bson.M{"flagged": true, "flag_reason": reason, "updated_at": millis(at.UTC())}}
	res, err := c.col.UpdateByID(withoutSession(ctx), string(id), update)
	if err != nil {
		return mapErr("mongo.counters.flag", "window", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("mongo.counters.flag", "window %s not found", id)
	}
	return nil
}

func (c *CounterStore) SetClosed(ctx context.Context, id availability.WindowID, closed bool) error {
	res, err := c.col.UpdateByID(withoutSession(ctx), string(id), bson.M{"$set": bson.M{"closed": closed}})
	if err != nil {
		return mapErr("mongo.counters.close", "window", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("mongo.counters.close", "window %s not found", id)
	}
	return nil
}

var _ availability.CounterStore = (*CounterStore)(nil)
