package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/domain/shared/apperr"
)

type pair struct{ from, to Status }

var expected = map[EntityType]map[pair]bool{
	EntityApproval: {
		{StatusDraft, StatusPendingApproval}:        true,
		{StatusSubmitted, StatusPendingApproval}:    true,
		{StatusPendingApproval, StatusApproved}:     true,
		{StatusPendingApproval, StatusActionNeeded}: true,
		{StatusPendingApproval, StatusRejected}:     true,
		{StatusActionNeeded, StatusPendingApproval}: true,
		{StatusApproved, StatusArchived}:            true,
	},
	EntityPublishable: {
		{StatusDraft, StatusPublished}:    true,
		{StatusPublished, StatusDraft}:    true,
		{StatusPublished, StatusArchived}: true,
	},
	EntityBooking: {
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
	},
	EntityTicket: {
		{StatusActive, StatusRedeemed}:  true,
		{StatusActive, StatusCancelled}: true,
		{StatusActive, StatusRevoked}:   true,
	},
}

func TestTransitionTablesAreComplete(t *testing.T) {
	m := NewManager()
	payload := Payload{ActionNeeded: "upload a safety certificate"}

	for _, entity := range m.EntityTypes() {
		statuses := m.Statuses(entity)
		require.NotEmpty(t, statuses, entity)
		for _, from := range statuses {
			for _, to := range statuses {
				err := m.Transition("e-1", entity, from, to, payload)
				if expected[entity][pair{from, to}] {
					assert.NoError(t, err, "%s %s -> %s", entity, from, to)
					continue
				}
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s %s -> %s", entity, from, to)
			}
		}
	}
}

func TestEveryExpectedPairIsConfigured(t *testing.T) {
	m := NewManager()
	for entity, pairs := range expected {
		for p := range pairs {
			assert.True(t, m.CanTransition(entity, p.from, p.to), "%s %s -> %s", entity, p.from, p.to)
		}
	}
}

func TestActionNeededRequiresNote(t *testing.T) {
	m := NewManager()
	err := m.Transition("v-1", EntityApproval, StatusPendingApproval, StatusActionNeeded, Payload{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = m.Transition("v-1", EntityApproval, StatusPendingApproval, StatusActionNeeded, Payload{ActionNeeded: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDraftCannotArchiveDirectly(t *testing.T) {
	err := Default().Transition("r-1", EntityPublishable, StatusDraft, StatusArchived, Payload{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestTerminalStatuses(t *testing.T) {
	m := NewManager()
	assert.True(t, m.IsTerminal(EntityBooking, StatusCompleted))
	assert.True(t, m.IsTerminal(EntityBooking, StatusCancelled))
	assert.False(t, m.IsTerminal(EntityBooking, StatusConfirmed))
	assert.True(t, m.IsTerminal(EntityPublishable, StatusArchived))
	assert.False(t, m.IsTerminal(EntityApproval, StatusApproved))
	assert.False(t, m.IsTerminal(EntityTicket, Status("UNKNOWN")))
}

func TestUnknownEntityAndStatus(t *testing.T) {
	m := NewManager()
	assert.ErrorIs(t, m.Transition("x", EntityType("order"), StatusDraft, StatusPublished, Payload{}), apperr.ErrValidation)
	assert.ErrorIs(t, m.Transition("x", EntityBooking, Status("HELD"), StatusConfirmed, Payload{}), apperr.ErrInvalidTransition)
}
