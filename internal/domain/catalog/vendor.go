package catalog

import (
	"context"
	"strings"
	"time"

	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
	"activityhub/internal/domain/shared/events"
)

type VendorID string

// Vendor owns resources. A vendor has exactly one owner; approval acts on that owner.
type Vendor struct {
	ID           VendorID
	Name         string
	OwnerID      string
	Approval     lifecycle.Status
	ActionNeeded string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

type VendorRepository interface {
	ByID(ctx context.Context, id VendorID) (*Vendor, error)
	Save(ctx context.Context, vendor *Vendor) error
}

func NewVendor(id VendorID, name, ownerID string, submit bool, now time.Time) (*Vendor, error) {
	const op = "catalog.register_vendor"
	if strings.TrimSpace(string(id)) == "" {
		return nil, apperr.Validation(op, "id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.Validation(op, "owner id is required")
	}
	status := lifecycle.StatusDraft
	if submit {
		status = lifecycle.StatusSubmitted
	}
	return &Vendor{
		ID:        id,
		Name:      strings.TrimSpace(name),
		OwnerID:   strings.TrimSpace(ownerID),
		Approval:  status,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

func (v *Vendor) Review(to lifecycle.Status, note string, now time.Time, fsm *lifecycle.Manager) error {
	if fsm.IsTerminal(lifecycle.EntityApproval, v.Approval) {
		return apperr.AlreadyTerminal("catalog.review_vendor", "vendor %s approval is %s", v.ID, v.Approval)
	}
	if err := fsm.Transition(string(v.ID), lifecycle.EntityApproval, v.Approval, to, lifecycle.Payload{ActionNeeded: note, Reason: note}); err != nil {
		return err
	}
	from := v.Approval
	v.Approval = to
	v.ActionNeeded = ""
	if to == lifecycle.StatusActionNeeded {
		v.ActionNeeded = strings.TrimSpace(note)
	}
	v.UpdatedAt = now.UTC()
	v.Record(ApprovalChanged{Subject: "vendor", SubjectID: string(v.ID), From: from, To: to, Note: v.ActionNeeded, At: v.UpdatedAt})
	return nil
}

func (v *Vendor) Clone() *Vendor {
	if v == nil {
		return nil
	}
	cp := *v
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
