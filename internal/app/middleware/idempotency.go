package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"activityhub/internal/app/commands"
	"activityhub/internal/domain/shared/apperr"
)

// IdempotentCommand is implemented by commands that accept an Idempotency-Key.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	// ResultPrototype returns a pointer to the handler's result type.
	ResultPrototype() any
}

type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	ErrorKind  string
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONResultCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

// KeyLocker serialises work on a key. capacity.Locker satisfies it.
type KeyLocker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type IdempotencyConfig struct {
	Store IdempotencyStore
	Codec ResultCodec
	// Locker makes a retry that races the first attempt wait for its stored
	// outcome. Without it concurrent duplicates may both execute. It is held
	// for the whole command, so it must not share keys or leases with the
	// capacity locker.
	Locker KeyLocker
	Clock  func() time.Time
}

var errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

// Idempotency replays the stored outcome of a command seen with the same key.
// Keys are scoped by command key. Failures are replayed with their apperr
// kind; reservation timeouts and unkinded errors are not stored so the
// caller can retry them.
func Idempotency(cfg IdempotencyConfig) CommandMiddleware {
	if cfg.Store == nil {
		panic("middleware: idempotency store required")
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONResultCodec{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			key := cmd.Key() + ":" + idCmd.IdempotencyKey()
			if cfg.Locker != nil {
				release, err := cfg.Locker.Acquire(ctx, key)
				if err != nil {
					return nil, err
				}
				defer release()
			}

			rec, found, err := cfg.Store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found {
				return cfg.replay(rec, idCmd)
			}
			result, err := next.Dispatch(ctx, cmd)
			if saveErr := cfg.record(ctx, key, result, err); saveErr != nil {
				if err != nil {
					return nil, errors.Join(err, saveErr)
				}
				return nil, saveErr
			}
			return result, err
		})
	}
}

func (cfg IdempotencyConfig) replay(rec IdempotencyRecord, cmd IdempotentCommand) (any, error) {
	if rec.Error != "" {
		if kind := apperr.KindByName(rec.ErrorKind); kind != nil {
			return nil, &apperr.Error{Kind: kind, Op: "idempotency.replay", Msg: rec.Error}
		}
		return nil, errors.New(rec.Error)
	}
	if len(rec.Payload) == 0 {
		return nil, nil
	}
	proto := cmd.ResultPrototype()
	if proto == nil {
		return nil, errMissingPrototype
	}
	if err := cfg.Codec.Decode(rec.Payload, proto); err != nil {
		return nil, err
	}
	return proto, nil
}

func (cfg IdempotencyConfig) record(ctx context.Context, key string, result any, cmdErr error) error {
	rec := IdempotencyRecord{Key: key, OccurredAt: cfg.Clock().UTC()}
	if cmdErr != nil {
		kind := apperr.KindOf(cmdErr)
		if kind == nil || transient(cmdErr) {
			return nil
		}
		rec.Error = cmdErr.Error()
		rec.ErrorKind = kind.Error()
		return cfg.Store.Save(ctx, rec)
	}
	if result != nil {
		payload, err := cfg.Codec.Encode(result)
		if err != nil {
			return err
		}
		rec.Payload = payload
	}
	return cfg.Store.Save(ctx, rec)
}

// transient failures depend on state that can change before a retry.
func transient(err error) bool {
	return errors.Is(err, apperr.ErrReservationTimeout) ||
		errors.Is(err, apperr.ErrConflict) ||
		errors.Is(err, apperr.ErrReconciliationRequired)
}
