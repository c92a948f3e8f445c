package support

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
)

// brokenCounters fails every write, so a release cannot be flagged either.
type brokenCounters struct{}

func (brokenCounters) TryConsume(context.Context, availability.WindowID, int) (availability.Counter, error) {
	return availability.Counter{}, errors.New("store unavailable")
}

func (brokenCounters) Restore(context.Context, availability.WindowID, int) (availability.Counter, error) {
	return availability.Counter{}, errors.New("store unavailable")
}

func (brokenCounters) SetConsumed(context.Context, availability.WindowID, int) (availability.Counter, error) {
	return availability.Counter{}, errors.New("store unavailable")
}

func (brokenCounters) Flag(context.Context, availability.WindowID, string, time.Time) error {
	return errors.New("flag write failed")
}

func (brokenCounters) SetClosed(context.Context, availability.WindowID, bool) error {
	return errors.New("store unavailable")
}

type hookUnit struct {
	uow.UnitOfWork
	uow.Hooks
}

func (u *hookUnit) AfterCommit(fn func(context.Context))   { u.Hooks.AfterCommit(fn) }
func (u *hookUnit) AfterRollback(fn func(context.Context)) { u.Hooks.AfterRollback(fn) }

func TestReleaseAfterCommitLogsUnflaggedDrift(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	coord := capacity.NewCoordinator(brokenCounters{}, capacity.NewLocalLocker(time.Second), capacity.Config{Logger: logger})
	unit := &hookUnit{}
	b := &domainbooking.Booking{ID: "bk-1", WindowID: "w-1", Quantity: 2}

	ReleaseAfterCommit(unit, coord, b, "cancellation")
	assert.Empty(t, buf.String())

	unit.RunCommit(context.Background())
	out := buf.String()
	require.Contains(t, out, "window drift left unflagged")
	assert.Contains(t, out, "booking_id=bk-1")
	assert.Contains(t, out, "flag write failed")
}
