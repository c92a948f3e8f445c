package catalog

import (
	"context"
	"strings"
	"time"

	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/daterange"
	"activityhub/internal/domain/shared/events"
)

type ResourceID string

type Kind string

const (
	KindSlot      Kind = "SLOT"
	KindUnitPool  Kind = "UNIT_POOL"
	KindAllotment Kind = "ALLOTMENT"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case KindSlot, KindUnitPool, KindAllotment:
		return k, nil
	default:
		return "", apperr.Validation("catalog", "unknown resource kind %q", raw)
	}
}

// Attributes is the kind-specific part of a resource. Exactly one of
// SlotAttributes, UnitPoolAttributes or AllotmentAttributes.
type Attributes interface {
	Kind() Kind
	validate() error
}

// SlotAttributes describe tours and lessons: fixed-length departures with a participant cap.
type SlotAttributes struct {
	DurationMinutes int
	MaxParticipants int
}

func (SlotAttributes) Kind() Kind { return KindSlot }

func (a SlotAttributes) validate() error {
	if a.DurationMinutes <= 0 {
		return apperr.Validation("catalog", "slot resources require a positive duration")
	}
	if a.MaxParticipants < 0 {
		return apperr.Validation("catalog", "max participants must be >= 0")
	}
	return nil
}

func (a SlotAttributes) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// UnitPoolAttributes describe rentals: a standing pool of interchangeable units.
type UnitPoolAttributes struct {
	TotalUnits int
}

func (UnitPoolAttributes) Kind() Kind { return KindUnitPool }

func (a UnitPoolAttributes) validate() error {
	if a.TotalUnits < 0 {
		return apperr.Validation("catalog", "total units must be >= 0")
	}
	return nil
}

// AllotmentAttributes describe ticket passes sold against a validity interval.
type AllotmentAttributes struct {
	ValidFrom time.Time
	ValidTo   time.Time
	Total     int
}

func (AllotmentAttributes) Kind() Kind { return KindAllotment }

func (a AllotmentAttributes) validate() error {
	if a.ValidFrom.IsZero() || a.ValidTo.IsZero() {
		return apperr.Validation("catalog", "allotment resources require a validity interval")
	}
	if daterange.Day(a.ValidTo).Before(daterange.Day(a.ValidFrom)) {
		return apperr.Validation("catalog", "validity interval ends before it starts")
	}
	if a.Total < 0 {
		return apperr.Validation("catalog", "allotment total must be >= 0")
	}
	return nil
}

type Resource struct {
	ID             ResourceID
	VendorID       VendorID
	Title          string
	Attributes     Attributes
	BasePriceCents int64
	Status         lifecycle.Status
	Approval       lifecycle.Status
	ActionNeeded   string
	Sequence       int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ResourceID) (*Resource, error)
	Save(ctx context.Context, resource *Resource) error
	ListByVendor(ctx context.Context, vendorID VendorID) ([]*Resource, error)
	NextSequence(ctx context.Context) (int64, error)
}

type CreateParams struct {
	ID             ResourceID
	VendorID       VendorID
	Title          string
	Attributes     Attributes
	BasePriceCents int64
	Sequence       int64
	Now            time.Time
}

func NewResource(params CreateParams) (*Resource, error) {
	const op = "catalog.create_resource"
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, apperr.Validation(op, "id is required")
	}
	if strings.TrimSpace(string(params.VendorID)) == "" {
		return nil, apperr.Validation(op, "vendor id is required")
	}
	if params.Attributes == nil {
		return nil, apperr.Validation(op, "kind attributes are required")
	}
	if err := params.Attributes.validate(); err != nil {
		return nil, err
	}
	if params.BasePriceCents < 0 {
		return nil, apperr.Validation(op, "base price must be >= 0")
	}
	attrs := params.Attributes
	if a, ok := attrs.(AllotmentAttributes); ok {
		a.ValidFrom, a.ValidTo = daterange.Day(a.ValidFrom), daterange.Day(a.ValidTo)
		attrs = a
	}
	now := params.Now.UTC()
	r := &Resource{
		ID:             params.ID,
		VendorID:       params.VendorID,
		Title:          strings.TrimSpace(params.Title),
		Attributes:     attrs,
		BasePriceCents: params.BasePriceCents,
		Status:         lifecycle.StatusDraft,
		Approval:       lifecycle.StatusDraft,
		Sequence:       params.Sequence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.Record(ResourceCreated{ResourceID: r.ID, VendorID: r.VendorID, Kind: r.Kind(), At: now})
	return r, nil
}

func (r *Resource) Kind() Kind {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes.Kind()
}

func (r *Resource) IsPublished() bool { return r.Status == lifecycle.StatusPublished }

func (r *Resource) IsArchived() bool { return r.Status == lifecycle.StatusArchived }

// SetStatus moves the publish status through the publishable machine.
func (r *Resource) SetStatus(to lifecycle.Status, now time.Time, fsm *lifecycle.Manager) error {
	if fsm.IsTerminal(lifecycle.EntityPublishable, r.Status) {
		return apperr.TerminalTransition("catalog.set_status", "resource %s is %s", r.ID, r.Status)
	}
	if err := fsm.Transition(string(r.ID), lifecycle.EntityPublishable, r.Status, to, lifecycle.Payload{}); err != nil {
		return err
	}
	from := r.Status
	r.Status = to
	r.UpdatedAt = now.UTC()
	r.Record(ResourceStatusChanged{ResourceID: r.ID, VendorID: r.VendorID, From: from, To: to, At: r.UpdatedAt})
	return nil
}

// Review moves the approval status; ACTION_NEEDED keeps the note for the vendor.
func (r *Resource) Review(to lifecycle.Status, note string, now time.Time, fsm *lifecycle.Manager) error {
	if fsm.IsTerminal(lifecycle.EntityApproval, r.Approval) {
		return apperr.AlreadyTerminal("catalog.review", "resource %s approval is %s", r.ID, r.Approval)
	}
	payload := lifecycle.Payload{ActionNeeded: note, Reason: note}
	if err := fsm.Transition(string(r.ID), lifecycle.EntityApproval, r.Approval, to, payload); err != nil {
		return err
	}
	from := r.Approval
	r.Approval = to
	r.ActionNeeded = ""
	if to == lifecycle.StatusActionNeeded {
		r.ActionNeeded = strings.TrimSpace(note)
	}
	r.UpdatedAt = now.UTC()
	r.Record(ApprovalChanged{Subject: "resource", SubjectID: string(r.ID), From: from, To: to, Note: r.ActionNeeded, At: r.UpdatedAt})
	return nil
}

// Clone returns a copy without pending events.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	cp := *r
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
