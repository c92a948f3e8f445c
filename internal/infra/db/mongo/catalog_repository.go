package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
)

type VendorRepository struct {
	versioned
}

func NewVendorRepository(db *mongo.Database) *VendorRepository {
	return &VendorRepository{versioned{col: db.Collection(colVendors), what: "vendor"}}
}

func (r *VendorRepository) ByID(ctx context.Context, id catalog.VendorID) (*catalog.Vendor, error) {
	var doc vendorDocument
	if err := r.findOne(ctx, bson.M{"_id": string(id)}, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *VendorRepository) Save(ctx context.Context, v *catalog.Vendor) error {
	next, err := r.save(ctx, string(v.ID), v.Version, func(next int64) any {
		doc := newVendorDocument(v)
		doc.Version = next
		return doc
	}, nil, nil)
	if err != nil {
		return err
	}
	v.Version = next
	return nil
}

type vendorDocument struct {
	ID           string `bson:"_id"`
	Name         string `bson:"name"`
	OwnerID      string `bson:"owner_id"`
	Approval     string `bson:"approval"`
	ActionNeeded string `bson:"action_needed,omitempty"`
	Version      int64  `bson:"version"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
}

func newVendorDocument(v *catalog.Vendor) vendorDocument {
	return vendorDocument{
		ID:           string(v.ID),
		Name:         v.Name,
		OwnerID:      v.OwnerID,
		Approval:     string(v.Approval),
		ActionNeeded: v.ActionNeeded,
		Version:      v.Version,
		CreatedAt:    millis(v.CreatedAt),
		UpdatedAt:    millis(v.UpdatedAt),
	}
}

func (d vendorDocument) toAggregate() *catalog.Vendor {
	return &catalog.Vendor{
		ID:           catalog.VendorID(d.ID),
		Name:         d.Name,
		OwnerID:      d.OwnerID,
		Approval:     lifecycle.Status(d.Approval),
		ActionNeeded: d.ActionNeeded,
		Version:      d.Version,
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
	}
}

type ResourceRepository struct {
	versioned
	seq sequences
}

func NewResourceRepository(db *mongo.Database) *ResourceRepository {
	return &ResourceRepository{versioned: versioned{col: db.Collection(colResources), what: "resource"}, seq: newSequences(db)}
}

func (r *ResourceRepository) ByID(ctx context.Context, id catalog.ResourceID) (*catalog.Resource, error) {
	var doc resourceDocument
	if err := r.findOne(ctx, bson.M{"_id": string(id)}, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate()
}

func (r *ResourceRepository) Save(ctx context.Context, res *catalog.Resource) error {
	doc, err := newResourceDocument(res)
	if err != nil {
		return err
	}
	next, err := r.save(ctx, doc.ID, res.Version, func(next int64) any {
		doc.Version = next
		return doc
	}, nil, nil)
	if err != nil {
		return err
	}
	res.Version = next
	return nil
}

func (r *ResourceRepository) ListByVendor(ctx context.Context, vendorID catalog.VendorID) ([]*catalog.Resource, error) {
	var out []*catalog.Resource
	err := r.find(ctx, bson.M{"vendor_id": string(vendorID)}, bson.D{{Key: "sequence", Value: 1}}, func(cur *mongo.Cursor) error {
		var doc resourceDocument
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		res, err := doc.toAggregate()
		if err != nil {
			return err
		}
		out = append(out, res)
		return nil
	})
	return out, err
}

func (r *ResourceRepository) NextSequence(ctx context.Context) (int64, error) {
	return r.seq.next(ctx, "resource")
}

type resourceDocument struct {
	ID             string             `bson:"_id"`
	VendorID       string             `bson:"vendor_id"`
	Title          string             `bson:"title"`
	Kind           string             `bson:"kind"`
	Attributes     attributesDocument `bson:"attributes"`
	BasePriceCents int64              `bson:"base_price_cents"`
	Status         string             `bson:"status"`
	Approval       string             `bson:"approval"`
	ActionNeeded   string             `bson:"action_needed,omitempty"`
	Sequence       int64              `bson:"sequence"`
	Version        int64              `bson:"version"`
	CreatedAt      int64              `bson:"created_at"`
	UpdatedAt      int64              `bson:"updated_at"`
}

// attributesDocument flattens the kind-specific attributes; kind on the
// parent document selects which fields are meaningful.
type attributesDocument struct {
	DurationMinutes int   `bson:"duration_minutes,omitempty"`
	MaxParticipants int   `bson:"max_participants,omitempty"`
	TotalUnits      int   `bson:"total_units,omitempty"`
	ValidFrom       int64 `bson:"valid_from,omitempty"`
	ValidTo         int64 `bson:"valid_to,omitempty"`
	Total           int   `bson:"total,omitempty"`
}

func newResourceDocument(r *catalog.Resource) (resourceDocument, error) {
	doc := resourceDocument{
		ID:             string(r.ID),
		VendorID:       string(r.VendorID),
		Title:          r.Title,
		BasePriceCents: r.BasePriceCents,
		Status:         string(r.Status),
		Approval:       string(r.Approval),
		ActionNeeded:   r.ActionNeeded,
		Sequence:       r.Sequence,
		Version:        r.Version,
		CreatedAt:      millis(r.CreatedAt),
		UpdatedAt:      millis(r.UpdatedAt),
	}
	switch a := r.Attributes.(type) {
	case catalog.SlotAttributes:
		doc.Attributes = attributesDocument{DurationMinutes: a.DurationMinutes, MaxParticipants: a.MaxParticipants}
	case catalog.UnitPoolAttributes:
		doc.Attributes = attributesDocument{TotalUnits: a.TotalUnits}
	case catalog.AllotmentAttributes:
		doc.Attributes = attributesDocument{ValidFrom: millis(a.ValidFrom), ValidTo: millis(a.ValidTo), Total: a.Total}
	default:
		return resourceDocument{}, fmt.Errorf("mongo: resource %s has unsupported attributes %T", r.ID, r.Attributes)
	}
	doc.Kind = string(r.Attributes.Kind())
	return doc, nil
}

func (d resourceDocument) toAggregate() (*catalog.Resource, error) {
	res := &catalog.Resource{
		ID:             catalog.ResourceID(d.ID),
		VendorID:       catalog.VendorID(d.VendorID),
		Title:          d.Title,
		BasePriceCents: d.BasePriceCents,
		Status:         lifecycle.Status(d.Status),
		Approval:       lifecycle.Status(d.Approval),
		ActionNeeded:   d.ActionNeeded,
		Sequence:       d.Sequence,
		Version:        d.Version,
		CreatedAt:      timestampToTime(d.CreatedAt),
		UpdatedAt:      timestampToTime(d.UpdatedAt),
	}
	a := d.Attributes
	switch catalog.Kind(d.Kind) {
	case catalog.KindSlot:
		res.Attributes = catalog.SlotAttributes{DurationMinutes: a.DurationMinutes, MaxParticipants: a.MaxParticipants}
	case catalog.KindUnitPool:
		res.Attributes = catalog.UnitPoolAttributes{TotalUnits: a.TotalUnits}
	case catalog.KindAllotment:
		res.Attributes = catalog.AllotmentAttributes{ValidFrom: timestampToTime(a.ValidFrom), ValidTo: timestampToTime(a.ValidTo), Total: a.Total}
	default:
		return nil, fmt.Errorf("mongo: resource %s has unknown kind %q", d.ID, d.Kind)
	}
	return res, nil
}
