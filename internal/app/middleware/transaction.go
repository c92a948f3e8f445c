package middleware

import (
	"context"
	"log/slog"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction gives every command its own unit of work. The unit commits
// when the handler returns without error and is rolled back otherwise,
// including after a failed commit or a panic. Rollback ignores the caller's
// cancellation so compensations registered on the unit still run.
func Transaction(factory uow.UoWFactory, logger *slog.Logger, optsFor TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			var opts uow.TxOptions
			if optsFor != nil {
				opts = optsFor(cmd)
			}
			unit, execCtx, err := uow.Begin(ctx, factory, opts)
			if err != nil {
				return nil, err
			}
			committed := false
			defer func() {
				if committed {
					return
				}
				if rbErr := unit.Rollback(context.WithoutCancel(execCtx)); rbErr != nil {
					logger.Warn("rollback failed", "command", cmd.Key(), "error", rbErr)
				}
			}()

			res, err := next.Dispatch(execCtx, cmd)
			if err != nil {
				return nil, err
			}
			if err := unit.Commit(execCtx); err != nil {
				return nil, err
			}
			committed = true
			return res, nil
		})
	}
}
