package dto

import (
	"activityhub/internal/domain/catalog"
)

type Vendor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OwnerID      string `json:"owner_id"`
	Approval     string `json:"approval"`
	ActionNeeded string `json:"action_needed,omitempty"`
	Version      int64  `json:"version"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func MapVendor(v *catalog.Vendor) Vendor {
	if v == nil {
		return Vendor{}
	}
	return Vendor{
		ID:           string(v.ID),
		Name:         v.Name,
		OwnerID:      v.OwnerID,
		Approval:     string(v.Approval),
		ActionNeeded: v.ActionNeeded,
		Version:      v.Version,
		CreatedAt:    FormatLocal(v.CreatedAt),
		UpdatedAt:    FormatLocal(v.UpdatedAt),
	}
}

// ResourceAttributes carries the kind-specific fields; only those of Kind are set.
type ResourceAttributes struct {
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
	TotalUnits      int    `json:"total_units,omitempty"`
	ValidFrom       string `json:"valid_from,omitempty"`
	ValidTo         string `json:"valid_to,omitempty"`
	Total           int    `json:"total,omitempty"`
}

type Resource struct {
	ID             string             `json:"id"`
	VendorID       string             `json:"vendor_id"`
	Title          string             `json:"title"`
	Kind           string             `json:"kind"`
	Attributes     ResourceAttributes `json:"attributes"`
	BasePriceCents int64              `json:"base_price_cents"`
	Status         string             `json:"status"`
	Approval       string             `json:"approval"`
	ActionNeeded   string             `json:"action_needed,omitempty"`
	Sequence       int64              `json:"sequence"`
	Version        int64              `json:"version"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

func MapResource(r *catalog.Resource) Resource {
	if r == nil {
		return Resource{}
	}
	out := Resource{
		ID:             string(r.ID),
		VendorID:       string(r.VendorID),
		Title:          r.Title,
		Kind:           string(r.Kind()),
		BasePriceCents: r.BasePriceCents,
		Status:         string(r.Status),
		Approval:       string(r.Approval),
		ActionNeeded:   r.ActionNeeded,
		Sequence:       r.Sequence,
		Version:        r.Version,
		CreatedAt:      FormatLocal(r.CreatedAt),
		UpdatedAt:      FormatLocal(r.UpdatedAt),
	}
	switch a := r.Attributes.(type) {
	case catalog.SlotAttributes:
		out.Attributes = ResourceAttributes{DurationMinutes: a.DurationMinutes, MaxParticipants: a.MaxParticipants}
	case catalog.UnitPoolAttributes:
		out.Attributes = ResourceAttributes{TotalUnits: a.TotalUnits}
	case catalog.AllotmentAttributes:
		out.Attributes = ResourceAttributes{ValidFrom: FormatDay(a.ValidFrom), ValidTo: FormatDay(a.ValidTo), Total: a.Total}
	}
	return out
}

func MapResources(rs []*catalog.Resource) []Resource {
	out := make([]Resource, 0, len(rs))
	for _, r := range rs {
		out = append(out, MapResource(r))
	}
	return out
}
