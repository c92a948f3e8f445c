package middleware

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/shared/apperr"
)

type echoResult struct {
	N int `json:"n"`
}

type echoCommand struct {
	Name    string
	IdemKey string
}

func (c echoCommand) Key() string            { return "test." + c.Name }
func (c echoCommand) IdempotencyKey() string { return c.IdemKey }
func (c echoCommand) ResultPrototype() any   { return &echoResult{} }

// countingBus returns an incrementing result or the configured error.
type countingBus struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (b *countingBus) Dispatch(context.Context, commands.Command) (any, error) {
	n := b.calls.Add(1)
	time.Sleep(b.delay)
	if b.err != nil {
		return nil, b.err
	}
	return &echoResult{N: int(n)}, nil
}

type mapStore struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func newMapStore() *mapStore { return &mapStore{items: map[string]IdempotencyRecord{}} }

func (s *mapStore) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[key]
	return rec, ok, nil
}

func (s *mapStore) Save(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

type mutexLocker struct{ mu sync.Mutex }

func (l *mutexLocker) Acquire(context.Context, string) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

func TestChainCommandsRunsOutermostFirst(t *testing.T) {
	var order []string
	stage := func(name string) CommandMiddleware {
		return func(next commands.Bus) commands.Bus {
			return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
				order = append(order, name)
				return next.Dispatch(ctx, cmd)
			})
		}
	}
	bus := ChainCommands(&countingBus{}, stage("a"), nil, stage("b"))
	_, err := bus.Dispatch(context.Background(), echoCommand{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestIdempotencyReplaysPerCommand(t *testing.T) {
	base := &countingBus{}
	bus := ChainCommands(base, Idempotency(IdempotencyConfig{Store: newMapStore()}))
	ctx := context.Background()

	first, err := commands.Dispatch[echoCommand, *echoResult](ctx, bus, echoCommand{Name: "create", IdemKey: "k1"})
	require.NoError(t, err)
	again, err := commands.Dispatch[echoCommand, *echoResult](ctx, bus, echoCommand{Name: "create", IdemKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, first.N, again.N)

	other, err := commands.Dispatch[echoCommand, *echoResult](ctx, bus, echoCommand{Name: "cancel", IdemKey: "k1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.N, other.N)

	_, err = commands.Dispatch[echoCommand, *echoResult](ctx, bus, echoCommand{Name: "create"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), base.calls.Load())
}

func TestIdempotencyReplaysErrorKind(t *testing.T) {
	base := &countingBus{err: apperr.CapacityExceeded("reserve", "sold out")}
	bus := ChainCommands(base, Idempotency(IdempotencyConfig{Store: newMapStore()}))
	cmd := echoCommand{Name: "create", IdemKey: "k1"}

	_, err := bus.Dispatch(context.Background(), cmd)
	require.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	_, err = bus.Dispatch(context.Background(), cmd)
	require.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.Equal(t, int32(1), base.calls.Load())
}

func TestIdempotencySkipsRetryableFailures(t *testing.T) {
	for name, failure := range map[string]error{
		"timeout":        apperr.ReservationTimeout("reserve", "busy"),
		"unkinded":       errors.New("boom"),
		"conflict":       apperr.Conflict("booking.cancel", "concurrent update"),
		"reconciliation": apperr.Reconciliation("booking.create", errors.New("restore failed"), "counter flagged"),
	} {
		t.Run(name, func(t *testing.T) {
			store := newMapStore()
			base := &countingBus{err: failure}
			bus := ChainCommands(base, Idempotency(IdempotencyConfig{Store: store}))
			cmd := echoCommand{Name: "create", IdemKey: "k1"}

			_, _ = bus.Dispatch(context.Background(), cmd)
			_, _ = bus.Dispatch(context.Background(), cmd)
			assert.Equal(t, int32(2), base.calls.Load())
			assert.Empty(t, store.items)
		})
	}
}

func TestIdempotencyLockerSerialisesDuplicates(t *testing.T) {
	base := &countingBus{delay: 10 * time.Millisecond}
	bus := ChainCommands(base, Idempotency(IdempotencyConfig{Store: newMapStore(), Locker: &mutexLocker{}}))
	cmd := echoCommand{Name: "create", IdemKey: "k1"}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := commands.Dispatch[echoCommand, *echoResult](context.Background(), bus, cmd)
			if assert.NoError(t, err) {
				results[i] = res.N
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), base.calls.Load())
	for _, n := range results {
		assert.Equal(t, 1, n)
	}
}

// fakeUnit satisfies the repository accessors through the nil embedded
// interface; the transaction middleware never calls them.
type fakeUnit struct {
	uow.UnitOfWork
	uow.Hooks
	commitErr error
	commits   int
	rollbacks int
}

func (u *fakeUnit) AfterCommit(fn func(context.Context))   { u.Hooks.AfterCommit(fn) }
func (u *fakeUnit) AfterRollback(fn func(context.Context)) { u.Hooks.AfterRollback(fn) }

func (u *fakeUnit) Commit(ctx context.Context) error {
	u.commits++
	if u.commitErr != nil {
		return u.commitErr
	}
	u.RunCommit(ctx)
	return nil
}

func (u *fakeUnit) Rollback(ctx context.Context) error {
	u.rollbacks++
	u.RunRollback(ctx)
	return nil
}

type fakeFactory struct{ unit *fakeUnit }

func (f fakeFactory) Begin(context.Context, uow.TxOptions) (uow.UnitOfWork, error) {
	return f.unit, nil
}

func TestTransactionCommitsOrRollsBack(t *testing.T) {
	cases := []struct {
		name          string
		handlerErr    error
		commitErr     error
		wantCommits   int
		wantRollbacks int
		wantCompensed bool
	}{
		{name: "success", wantCommits: 1},
		{name: "handler failure", handlerErr: apperr.Validation("x", "bad"), wantRollbacks: 1, wantCompensed: true},
		{name: "commit failure", commitErr: apperr.Conflict("x", "stale"), wantCommits: 1, wantRollbacks: 1, wantCompensed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unit := &fakeUnit{commitErr: tc.commitErr}
			compensated := false
			handler := commandFunc(func(ctx context.Context, _ commands.Command) (any, error) {
				current, err := uow.Current(ctx)
				require.NoError(t, err)
				current.AfterRollback(func(context.Context) { compensated = true })
				return "ok", tc.handlerErr
			})
			bus := ChainCommands(handler, Transaction(fakeFactory{unit: unit}, nil, nil))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := bus.Dispatch(ctx, echoCommand{Name: "x"})
			if tc.handlerErr == nil && tc.commitErr == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
			assert.Equal(t, tc.wantCommits, unit.commits)
			assert.Equal(t, tc.wantRollbacks, unit.rollbacks)
			assert.Equal(t, tc.wantCompensed, compensated)
		})
	}
}

func TestCurrentWithoutUnit(t *testing.T) {
	_, err := uow.Current(context.Background())
	require.ErrorIs(t, err, uow.ErrNoUnit)
}
