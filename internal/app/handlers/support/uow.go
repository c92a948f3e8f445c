package support

import (
	"context"

	"activityhub/internal/app/uow"
)

// BeginReadOnlyUnit reuses the unit already in ctx or opens a read-only one.
// cleanup is nil when the unit was inherited.
func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, err := uow.Current(ctx); err == nil {
		return unit, ctx, nil, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	return unit, execCtx, func() { _ = unit.Rollback(execCtx) }, nil
}
