package middleware

import (
	"context"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/outbox"
)

// ScopedOutbox is implemented by outboxes that buffer records per command
// instead of writing them inside the transaction.
type ScopedOutbox interface {
	outbox.Outbox
	Scope(ctx context.Context) context.Context
	Discard(ctx context.Context)
}

// OutboxFlush flushes recorded events after the command succeeded. Scoped
// outboxes drop the command's records when it fails.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	scoped, _ := box.(ScopedOutbox)
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if scoped != nil {
				ctx = scoped.Scope(ctx)
			}
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				if scoped != nil {
					scoped.Discard(ctx)
				}
				return nil, err
			}
			if err := box.Flush(ctx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
