package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/middleware"
	appoutbox "activityhub/internal/app/outbox"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func begin(t *testing.T, f Factory) uow.UnitOfWork {
	t.Helper()
	unit, err := f.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	return unit
}

// seedPool commits a UNIT_POOL resource with one window of the given size.
func seedPool(t *testing.T, f Factory, total int) *availability.Window {
	t.Helper()
	ctx := context.Background()
	unit := begin(t, f)
	res, err := catalog.NewResource(catalog.CreateParams{
		ID: "kayaks", VendorID: "v1", Attributes: catalog.UnitPoolAttributes{TotalUnits: total}, Sequence: 1, Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, unit.Resources().Save(ctx, res))
	w, err := availability.NewWindow(availability.CreateParams{
		ID: "w1", Resource: res, Spec: availability.UnitPoolSpec{AvailableFrom: now}, Sequence: 1, Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, unit.Windows().Save(ctx, w))
	require.NoError(t, unit.Commit(ctx))
	return w
}

func TestUnitStagesWritesUntilCommit(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	unit := begin(t, f)
	v, err := catalog.NewVendor("v1", "Lake Tours", "owner-1", false, now)
	require.NoError(t, err)
	require.NoError(t, unit.Vendors().Save(ctx, v))
	assert.Equal(t, int64(1), v.Version)

	seen, err := unit.Vendors().ByID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Lake Tours", seen.Name)

	other := begin(t, f)
	_, err = other.Vendors().ByID(ctx, "v1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, unit.Commit(ctx))
	_, err = other.Vendors().ByID(ctx, "v1")
	assert.NoError(t, err)
}

func TestRollbackDiscardsAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	unit := begin(t, f)
	v, err := catalog.NewVendor("v1", "Lake Tours", "owner-1", false, now)
	require.NoError(t, err)
	require.NoError(t, unit.Vendors().Save(ctx, v))
	var rolledBack, committed bool
	unit.AfterRollback(func(context.Context) { rolledBack = true })
	unit.AfterCommit(func(context.Context) { committed = true })
	require.NoError(t, unit.Rollback(ctx))
	assert.True(t, rolledBack)
	assert.False(t, committed)

	_, err = begin(t, f).Vendors().ByID(ctx, "v1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentUnitsConflictOnCommit(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	w := seedPool(t, f, 4)
	fsm := lifecycle.Default()

	seed := begin(t, f)
	b, err := booking.NewBooking(booking.CreateParams{ID: "b1", Window: w, Quantity: 1, Now: now})
	require.NoError(t, err)
	require.NoError(t, seed.Bookings().Save(ctx, b))
	require.NoError(t, seed.Commit(ctx))

	first, second := begin(t, f), begin(t, f)
	b1, err := first.Bookings().ByID(ctx, "b1")
	require.NoError(t, err)
	b2, err := second.Bookings().ByID(ctx, "b1")
	require.NoError(t, err)
	require.NoError(t, b1.Cancel("first", now, fsm))
	require.NoError(t, b2.Cancel("second", now, fsm))
	require.NoError(t, first.Bookings().Save(ctx, b1))
	require.NoError(t, second.Bookings().Save(ctx, b2))

	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), apperr.ErrConflict)
	require.NoError(t, second.Rollback(ctx))

	stored, err := begin(t, f).Bookings().ByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.CancelReason)
}

func TestTerminalBookingRefusesSave(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	w := seedPool(t, f, 4)
	unit := begin(t, f)
	b, err := booking.NewBooking(booking.CreateParams{ID: "b1", Window: w, Quantity: 1, Now: now})
	require.NoError(t, err)
	require.NoError(t, b.Cancel("", now, lifecycle.Default()))
	require.NoError(t, unit.Bookings().Save(ctx, b))

	b.Status = lifecycle.StatusConfirmed
	err = unit.Bookings().Save(ctx, b)
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)
}

func TestStaleVersionIsConflict(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	seedPool(t, f, 4)
	unit := begin(t, f)
	w, err := unit.Windows().ByID(ctx, "w1")
	require.NoError(t, err)
	w.Version--
	assert.ErrorIs(t, unit.Windows().Save(ctx, w), apperr.ErrConflict)
}

func TestWindowSaveKeepsCounter(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	seedPool(t, f, 6)
	counters := CounterStore{Store: f.Store}

	unit := begin(t, f)
	w, err := unit.Windows().ByID(ctx, "w1")
	require.NoError(t, err)
	_, err = counters.TryConsume(ctx, "w1", 4)
	require.NoError(t, err)
	w.DisableBooking("maintenance", now)
	require.NoError(t, unit.Windows().Save(ctx, w))
	require.NoError(t, unit.Commit(ctx))

	stored, err := begin(t, f).Windows().ByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Counter.Consumed)
	assert.False(t, stored.Bookable)

	_, err = counters.TryConsume(ctx, "w1", 1)
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)
}

func TestCounterStoreScenarioA(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	seedPool(t, f, 6)
	counters := CounterStore{Store: f.Store}
	_, err := counters.TryConsume(ctx, "w1", 4)
	require.NoError(t, err)

	c, err := counters.TryConsume(ctx, "w1", 3)
	assert.ErrorIs(t, err, apperr.ErrCapacityExceeded)
	assert.Equal(t, 4, c.Consumed)

	c, err = counters.TryConsume(ctx, "w1", 2)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Consumed)
	assert.Equal(t, 0, c.Remaining())

	c, err = counters.Restore(ctx, "w1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Consumed)
}

func TestFlagAndSetConsumed(t *testing.T) {
	ctx := context.Background()
	f := Factory{Store: NewStore()}
	seedPool(t, f, 6)
	counters := CounterStore{Store: f.Store}
	require.NoError(t, counters.Flag(ctx, "w1", "release failed", now))

	flagged, err := begin(t, f).Windows().ListFlagged(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "release failed", flagged[0].FlagReason)

	c, err := counters.SetConsumed(ctx, "w1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Consumed)
	flagged, err = begin(t, f).Windows().ListFlagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestOutboxDiscardsFailedScope(t *testing.T) {
	box := NewOutbox(nil)
	var delivered []string
	box.Subscribe(func(_ context.Context, rec appoutbox.EventRecord) error {
		delivered = append(delivered, rec.Name)
		return nil
	})

	failed := box.Scope(context.Background())
	require.NoError(t, box.Add(failed, appoutbox.EventRecord{ID: "1", Name: "booking.requested"}))
	box.Discard(failed)
	require.NoError(t, box.Flush(failed))

	ok := box.Scope(context.Background())
	require.NoError(t, box.Add(ok, appoutbox.EventRecord{ID: "2", Name: "booking.confirmed"}))
	require.NoError(t, box.Flush(ok))

	assert.Equal(t, []string{"booking.confirmed"}, delivered)
	assert.Len(t, box.Published(), 1)
}

func TestIdempotencyStoreExpiresOutcomes(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore()
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "create:k1", Payload: []byte(`{}`)}))
	rec, found, err := store.Get(ctx, "create:k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{}`), rec.Payload)

	store.TTL = time.Nanosecond
	time.Sleep(time.Millisecond)
	_, found, err = store.Get(ctx, "create:k1")
	require.NoError(t, err)
	assert.False(t, found)
}
