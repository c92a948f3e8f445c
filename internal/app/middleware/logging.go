package middleware

import (
	"context"
	"log/slog"
	"time"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/queries"
	"activityhub/internal/domain/shared/apperr"
)

// Logging records one line per command with its outcome and duration.
// Expected domain failures log at warn, anything else at error.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			started := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			logOutcome(ctx, logger, "command", cmd.Key(), started, err)
			return res, err
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			started := time.Now()
			res, err := next.Ask(ctx, q)
			if err != nil {
				logOutcome(ctx, logger, "query", q.Key(), started, err)
			}
			return res, err
		})
	}
}

func logOutcome(ctx context.Context, logger *slog.Logger, kind, key string, started time.Time, err error) {
	attrs := []slog.Attr{
		slog.String(kind, key),
		slog.Duration("duration", time.Since(started)),
	}
	if err == nil {
		logger.LogAttrs(ctx, slog.LevelDebug, kind+" handled", attrs...)
		return
	}
	attrs = append(attrs, slog.Any("err", err))
	level := slog.LevelError
	if k := apperr.KindOf(err); k != nil && k != apperr.ErrReconciliationRequired {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("kind", k.Error()))
	}
	logger.LogAttrs(ctx, level, kind+" failed", attrs...)
}
