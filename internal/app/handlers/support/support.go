package support

import (
	"context"
	"time"

	"activityhub/internal/app/outbox"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/lifecycle"
)

// Unit returns the unit of work opened by the transaction middleware.
func Unit(ctx context.Context) (uow.UnitOfWork, error) {
	return uow.Current(ctx)
}

// Now reads the clock. The clock is expected to report time in the calendar
// location so naive wall-clock comparisons hold.
func Now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

func Encoder(enc outbox.EventEncoder) outbox.EventEncoder {
	if enc != nil {
		return enc
	}
	return outbox.JSONEventEncoder{}
}

func Lifecycle(m *lifecycle.Manager) *lifecycle.Manager {
	if m != nil {
		return m
	}
	return lifecycle.Default()
}
