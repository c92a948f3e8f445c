// Package lifecycle holds the status machines of every entity the engine
// mutates. Transitions are checked centrally against explicit tables; a pair
// missing from a table is rejected, never coerced.
package lifecycle

import (
	"sort"
	"strings"

	"activityhub/internal/domain/shared/apperr"
)

type EntityType string

const (
	EntityApproval    EntityType = "approval"
	EntityPublishable EntityType = "publishable"
	EntityBooking     EntityType = "booking"
	EntityTicket      EntityType = "ticket"
)

type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusActionNeeded    Status = "ACTION_NEEDED"
	StatusRejected        Status = "REJECTED"
	StatusArchived        Status = "ARCHIVED"

	StatusPublished Status = "PUBLISHED"

	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"

	StatusActive   Status = "ACTIVE"
	StatusRedeemed Status = "REDEEMED"
	StatusRevoked  Status = "REVOKED"
)

// Payload carries side data some transitions require.
type Payload struct {
	ActionNeeded string
	Reason       string
}

type requirement func(p Payload) error

type table map[Status][]Status

// Manager owns the transition tables per entity type.
type Manager struct {
	tables       map[EntityType]table
	requirements map[EntityType]map[Status]requirement
}

// NewManager builds a manager loaded with the engine's transition tables.
func NewManager() *Manager {
	return &Manager{
		tables: map[EntityType]table{
			EntityApproval: {
				StatusDraft:           {StatusPendingApproval},
				StatusSubmitted:       {StatusPendingApproval},
				StatusPendingApproval: {StatusApproved, StatusActionNeeded, StatusRejected},
				StatusActionNeeded:    {StatusPendingApproval},
				StatusApproved:        {StatusArchived},
				StatusRejected:        nil,
				StatusArchived:        nil,
			},
			EntityPublishable: {
				StatusDraft:     {StatusPublished},
				StatusPublished: {StatusDraft, StatusArchived},
				StatusArchived:  nil,
			},
			EntityBooking: {
				StatusPending:   {StatusConfirmed, StatusCancelled},
				StatusConfirmed: {StatusCompleted, StatusCancelled},
				StatusCompleted: nil,
				StatusCancelled: nil,
			},
			EntityTicket: {
				StatusActive:    {StatusRedeemed, StatusCancelled, StatusRevoked},
				StatusRedeemed:  nil,
				StatusCancelled: nil,
				StatusRevoked:   nil,
			},
		},
		requirements: map[EntityType]map[Status]requirement{
			EntityApproval: {
				StatusActionNeeded: func(p Payload) error {
					if strings.TrimSpace(p.ActionNeeded) == "" {
						return apperr.Validation("lifecycle", "ACTION_NEEDED requires an actionNeeded note")
					}
					return nil
				},
			},
		},
	}
}

var defaultManager = NewManager()

// Default returns the shared manager instance.
func Default() *Manager { return defaultManager }

// Transition validates moving entityID of the given type from one status to another.
func (m *Manager) Transition(entityID string, entity EntityType, from, to Status, payload Payload) error {
	const op = "lifecycle.transition"
	t, ok := m.tables[entity]
	if !ok {
		return apperr.Validation(op, "unknown entity type %q", entity)
	}
	if _, known := t[from]; !known {
		return apperr.InvalidTransition(op, "%s %s: unknown status %s", entity, entityID, from)
	}
	if !m.CanTransition(entity, from, to) {
		return apperr.InvalidTransition(op, "%s %s: %s -> %s is not permitted", entity, entityID, from, to)
	}
	if req, ok := m.requirements[entity][to]; ok {
		if err := req(payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) CanTransition(entity EntityType, from, to Status) bool {
	for _, allowed := range m.tables[entity][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Allowed lists the statuses reachable from "from" in one step.
func (m *Manager) Allowed(entity EntityType, from Status) []Status {
	return append([]Status(nil), m.tables[entity][from]...)
}

// IsTerminal reports whether status is known and has no outgoing transitions.
func (m *Manager) IsTerminal(entity EntityType, status Status) bool {
	next, ok := m.tables[entity][status]
	return ok && len(next) == 0
}

// Known reports whether status belongs to the entity's machine.
func (m *Manager) Known(entity EntityType, status Status) bool {
	_, ok := m.tables[entity][status]
	return ok
}

// Statuses returns every status of the entity's machine in a stable order.
func (m *Manager) Statuses(entity EntityType) []Status {
	out := make([]Status, 0, len(m.tables[entity]))
	for s := range m.tables[entity] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EntityTypes lists the configured machines.
func (m *Manager) EntityTypes() []EntityType {
	out := make([]EntityType, 0, len(m.tables))
	for e := range m.tables {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
