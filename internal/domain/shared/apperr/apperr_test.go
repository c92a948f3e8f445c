package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create booking: %w", CapacityExceeded("capacity.reserve", "window w-1 has 0 remaining"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, ErrCapacityExceeded, KindOf(err))
	assert.Contains(t, err.Error(), "window w-1 has 0 remaining")
}

func TestTerminalErrorsMatchBothKinds(t *testing.T) {
	a := AlreadyTerminal("booking.cancel", "booking b-1 is CANCELLED")
	assert.ErrorIs(t, a, ErrAlreadyTerminal)
	assert.ErrorIs(t, a, ErrInvalidTransition)
	assert.Equal(t, ErrAlreadyTerminal, KindOf(a))

	b := TerminalTransition("catalog.set_status", "resource r-1 is ARCHIVED")
	assert.ErrorIs(t, b, ErrAlreadyTerminal)
	assert.Equal(t, ErrInvalidTransition, KindOf(b))
}

func TestReconciliationKeepsCause(t *testing.T) {
	cause := errors.New("mongo: write failed")
	err := Reconciliation("capacity.abort", cause, "window %s flagged", "w-9")
	assert.ErrorIs(t, err, ErrReconciliationRequired)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("boom")))
	assert.Equal(t, ErrNotFound, KindOf(fmt.Errorf("x: %w", ErrNotFound)))
}

func TestKindByName(t *testing.T) {
	assert.Equal(t, ErrCapacityExceeded, KindByName("capacity exceeded"))
	assert.Nil(t, KindByName("something else"))
}
