package capacity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/shared/apperr"
)

// fakeCounters is a counter store with optional failure injection.
type fakeCounters struct {
	mu          sync.Mutex
	counters    map[availability.WindowID]availability.Counter
	flags       map[availability.WindowID]string
	closed      map[availability.WindowID]bool
	failRelease bool
	inFlight    int32
	overlap     atomic.Bool
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		counters: make(map[availability.WindowID]availability.Counter),
		flags:    make(map[availability.WindowID]string),
		closed:   make(map[availability.WindowID]bool),
	}
}

func (f *fakeCounters) set(id availability.WindowID, total, consumed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[id] = availability.Counter{Total: total, Consumed: consumed}
}

func (f *fakeCounters) get(id availability.WindowID) availability.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[id]
}

func (f *fakeCounters) TryConsume(_ context.Context, id availability.WindowID, q int) (availability.Counter, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap.Store(true)
	}
	defer atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[id]
	if !ok {
		return availability.Counter{}, apperr.NotFound("fake", "window %s", id)
	}
	if f.closed[id] {
		return c, apperr.AlreadyTerminal("fake", "window %s closed", id)
	}
	next, err := c.Consume(q)
	if err != nil {
		return c, err
	}
	f.counters[id] = next
	return next, nil
}

func (f *fakeCounters) Restore(_ context.Context, id availability.WindowID, q int) (availability.Counter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRelease {
		return availability.Counter{}, errors.New("store unavailable")
	}
	c := f.counters[id].Restore(q)
	f.counters[id] = c
	return c, nil
}

func (f *fakeCounters) SetConsumed(_ context.Context, id availability.WindowID, consumed int) (availability.Counter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.counters[id]
	c.Consumed = consumed
	f.counters[id] = c
	delete(f.flags, id)
	return c, nil
}

func (f *fakeCounters) Flag(_ context.Context, id availability.WindowID, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[id] = reason
	return nil
}

func (f *fakeCounters) SetClosed(_ context.Context, id availability.WindowID, closed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = closed
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCoordinator(t *testing.T, counters *fakeCounters) (*Coordinator, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewCoordinator(counters, NewLocalLocker(time.Second), Config{HoldTTL: 10 * time.Minute, Clock: clk.Now}), clk
}

func TestReserveScenarioA(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 6, 4)
	c, _ := newCoordinator(t, counters)

	_, err := c.Reserve(context.Background(), "w", 3)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.Equal(t, 4, counters.get("w").Consumed)

	token, err := c.Reserve(context.Background(), "w", 2)
	require.NoError(t, err)
	assert.Equal(t, TokenHeld, token.State)
	assert.Equal(t, 0, token.Remaining)
	assert.Equal(t, 6, counters.get("w").Consumed)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 6, 0)
	c, _ := newCoordinator(t, counters)
	for _, q := range []int{0, -2} {
		_, err := c.Reserve(context.Background(), "w", q)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	assert.Equal(t, 0, counters.get("w").Consumed)
}

func TestConcurrentReservesNeverOverbook(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 10, 0)
	c, _ := newCoordinator(t, counters)

	const attempts = 50
	var wg sync.WaitGroup
	var ok, exceeded atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Reserve(context.Background(), "w", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.ErrCapacityExceeded):
				exceeded.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, attempts-10, exceeded.Load())
	assert.Equal(t, 10, counters.get("w").Consumed)
	assert.False(t, counters.overlap.Load(), "counter updates for one window must not overlap")
}

func TestReleaseIsSymmetricAndFloored(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, _ := newCoordinator(t, counters)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Reserve(context.Background(), "w", 1)
			assert.NoError(t, err)
			_, err = c.Release(context.Background(), "w", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, counters.get("w").Consumed)

	counter, err := c.Release(context.Background(), "w", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, counter.Consumed)
}

func TestReserveTimesOutWhileLockHeld(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	locker := NewLocalLocker(20 * time.Millisecond)
	c := NewCoordinator(counters, locker, Config{})

	unlock, err := locker.Acquire(context.Background(), "w")
	require.NoError(t, err)
	defer unlock()

	_, err = c.Reserve(context.Background(), "w", 1)
	assert.ErrorIs(t, err, apperr.ErrReservationTimeout)
	assert.Equal(t, 0, counters.get("w").Consumed)

	_, err = c.Reserve(context.Background(), "other", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "other windows are not blocked")
}

func TestCommitIsIdempotentAndExpiresStaleHolds(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, clk := newCoordinator(t, counters)
	ctx := context.Background()

	token, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	first, err := c.Commit(ctx, token.ID)
	require.NoError(t, err)
	second, err := c.Commit(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, TokenCommitted, second.State)

	stale, err := c.Reserve(ctx, "w", 1)
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)
	_, err = c.Commit(ctx, stale.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 2, counters.get("w").Consumed)
}

func TestReleaseTokenOnlyForHeld(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()

	held, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	released, err := c.ReleaseToken(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenReleased, released.State)
	assert.Equal(t, 5, released.Remaining)

	_, err = c.ReleaseToken(ctx, held.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	committed, err := c.Reserve(ctx, "w", 1)
	require.NoError(t, err)
	_, err = c.Commit(ctx, committed.ID)
	require.NoError(t, err)
	_, err = c.ReleaseToken(ctx, committed.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 1, counters.get("w").Consumed)

	_, err = c.ReleaseToken(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAbortReleasesCapacity(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()
	cause := errors.New("ledger write failed")

	token, err := c.Reserve(ctx, "w", 3)
	require.NoError(t, err)
	err = c.Abort(ctx, token.ID, cause)
	assert.Same(t, cause, err)
	assert.Equal(t, 0, counters.get("w").Consumed)

	assert.Same(t, cause, c.Abort(ctx, token.ID, cause), "second abort is a no-op")
	assert.Equal(t, 0, counters.get("w").Consumed)
}

func TestAbortFailureFlagsWindow(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()
	cause := errors.New("ledger write failed")

	token, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	counters.failRelease = true
	err = c.Abort(ctx, token.ID, cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrReconciliationRequired)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, counters.flags["w"], "compensating release of 2 failed")
}

func TestSweepExpiredReleasesHolds(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 5, 0)
	c, clk := newCoordinator(t, counters)
	ctx := context.Background()

	expiring, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	kept, err := c.Reserve(ctx, "w", 1)
	require.NoError(t, err)
	_, err = c.Commit(ctx, kept.ID)
	require.NoError(t, err)
	recorded := map[string]bool{kept.ID: true}
	assert.Equal(t, 2, c.Outstanding("w", recorded))

	clk.Advance(10 * time.Minute)
	released, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, counters.get("w").Consumed)
	assert.Equal(t, 0, c.Outstanding("w", recorded))

	tok, err := c.Token(expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenExpired, tok.State)
}

func TestReconcileCountsHeldUnits(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 10, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()

	_, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	require.NoError(t, c.Flag(ctx, "w", "drift"))

	counter, err := c.Reconcile(ctx, "w", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, counter.Consumed)
	assert.NotContains(t, counters.flags, availability.WindowID("w"))

	_, err = c.Reconcile(ctx, "w", -1, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOutstandingCountsCommittedUntilRecorded(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 10, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()

	held, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	committed, err := c.Reserve(ctx, "w", 3)
	require.NoError(t, err)
	_, err = c.Commit(ctx, committed.ID)
	require.NoError(t, err)

	// The booking of the committed hold is not visible yet.
	assert.Equal(t, 5, c.Outstanding("w", nil))
	counter, err := c.Reconcile(ctx, "w", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, counter.Consumed)

	recorded := map[string]bool{committed.ID: true}
	assert.Equal(t, 2, c.Outstanding("w", recorded))
	counter, err = c.Reconcile(ctx, "w", 3, recorded)
	require.NoError(t, err)
	assert.Equal(t, 5, counter.Consumed)

	recorded[held.ID] = true
	assert.Equal(t, 2, c.Outstanding("w", recorded), "held units count until committed")
}

func TestSealFencesReservations(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 10, 0)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()

	held, err := c.Reserve(ctx, "w", 2)
	require.NoError(t, err)
	committed, err := c.Reserve(ctx, "w", 1)
	require.NoError(t, err)
	_, err = c.Commit(ctx, committed.ID)
	require.NoError(t, err)

	pending, err := c.Seal(ctx, "w", nil)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []string{pending[0].ID, pending[1].ID}
	assert.ElementsMatch(t, []string{held.ID, committed.ID}, ids)

	_, err = c.Reserve(ctx, "w", 1)
	require.ErrorIs(t, err, apperr.ErrAlreadyTerminal)
	assert.Equal(t, 3, counters.get("w").Consumed)

	pending, err = c.Seal(ctx, "w", map[string]bool{committed.ID: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, held.ID, pending[0].ID)

	require.NoError(t, c.Unseal(ctx, "w"))
	_, err = c.Reserve(ctx, "w", 1)
	require.NoError(t, err)
}

func TestReleaseOrFlag(t *testing.T) {
	counters := newFakeCounters()
	counters.set("w", 4, 4)
	c, _ := newCoordinator(t, counters)
	ctx := context.Background()

	require.NoError(t, c.ReleaseOrFlag(ctx, "w", 2, "cancellation"))
	assert.Equal(t, 2, counters.get("w").Consumed)

	counters.failRelease = true
	require.NoError(t, c.ReleaseOrFlag(ctx, "w", 2, "cancellation"))
	assert.Contains(t, counters.flags["w"], "after cancellation failed")
}
