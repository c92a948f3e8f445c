package catalog

import (
	"time"

	"activityhub/internal/domain/lifecycle"
)

type ResourceCreated struct {
	ResourceID ResourceID
	VendorID   VendorID
	Kind       Kind
	At         time.Time
}

func (e ResourceCreated) EventName() string     { return "resource.created" }
func (e ResourceCreated) AggregateID() string   { return string(e.ResourceID) }
func (e ResourceCreated) OccurredAt() time.Time { return e.At }

type ResourceStatusChanged struct {
	ResourceID ResourceID
	VendorID   VendorID
	From       lifecycle.Status
	To         lifecycle.Status
	At         time.Time
}

func (e ResourceStatusChanged) EventName() string     { return "resource.status_changed" }
func (e ResourceStatusChanged) AggregateID() string   { return string(e.ResourceID) }
func (e ResourceStatusChanged) OccurredAt() time.Time { return e.At }

type ApprovalChanged struct {
	Subject   string
	SubjectID string
	From      lifecycle.Status
	To        lifecycle.Status
	Note      string
	At        time.Time
}

func (e ApprovalChanged) EventName() string     { return e.Subject + ".approval_changed" }
func (e ApprovalChanged) AggregateID() string   { return e.SubjectID }
func (e ApprovalChanged) OccurredAt() time.Time { return e.At }
