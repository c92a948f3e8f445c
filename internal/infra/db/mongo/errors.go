package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"

	"activityhub/internal/domain/shared/apperr"
)

// mapErr translates driver failures into engine error kinds.
func mapErr(op, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(op, "%s not found", what)
	}
	if mongo.IsDuplicateKeyError(err) {
		return &apperr.Error{Kind: apperr.ErrConflict, Op: op, Msg: what + " was modified concurrently", Err: err}
	}
	var labeled mongo.ServerError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(driver.TransientTransactionError) {
		return &apperr.Error{Kind: apperr.ErrConflict, Op: op, Msg: what + " write conflict", Err: err}
	}
	return err
}

// sessionless hides the context values, the transaction session included,
// while keeping cancellation and deadline. Counter and sequence updates run
// outside the caller's transaction.
type sessionless struct{ context.Context }

func (sessionless) Value(any) any { return nil }

func withoutSession(ctx context.Context) context.Context {
	return sessionless{ctx}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
