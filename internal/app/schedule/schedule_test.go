package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	"activityhub/internal/app/engine"
	availabilityapp "activityhub/internal/app/handlers/availability"
	bookingapp "activityhub/internal/app/handlers/booking"
	catalogapp "activityhub/internal/app/handlers/catalog"
	"activityhub/internal/app/queries"
	"activityhub/internal/infra/storage/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newEngine(t *testing.T, clk *clock) *engine.Engine {
	t.Helper()
	store := memory.NewStore()
	return engine.New(engine.Deps{
		UoWFactory: memory.Factory{Store: store},
		Counters:   memory.CounterStore{Store: store},
		Locker:     capacity.NewLocalLocker(time.Second),
		Outbox:     memory.NewOutbox(nil),
		Clock:      clk.Now,
		HoldTTL:    time.Minute,
	})
}

func mustDispatch[C commands.Command, R any](t *testing.T, e *engine.Engine, cmd C) R {
	t.Helper()
	res, err := commands.Dispatch[C, R](context.Background(), e.Commands, cmd)
	require.NoError(t, err)
	return res
}

func seedSlotBooking(t *testing.T, e *engine.Engine) {
	t.Helper()
	mustDispatch[catalogapp.RegisterVendorCommand, *dto.Vendor](t, e, catalogapp.RegisterVendorCommand{VendorID: "v1", Name: "Lake Tours", OwnerID: "owner-1"})
	mustDispatch[catalogapp.CreateResourceCommand, *dto.Resource](t, e, catalogapp.CreateResourceCommand{
		ResourceID: "sunset", VendorID: "v1", Title: "Sunset paddle", Kind: "SLOT", DurationMinutes: 90, MaxParticipants: 8,
	})
	mustDispatch[availabilityapp.CreateWindowCommand, *dto.Window](t, e, availabilityapp.CreateWindowCommand{
		WindowID: "w1", ResourceID: "sunset", Start: time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
	})
	mustDispatch[bookingapp.CreateBookingCommand, *dto.Booking](t, e, bookingapp.CreateBookingCommand{BookingID: "b1", WindowID: "w1", Quantity: 2})
}

func TestNewRegistersPositiveIntervalsOnly(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	e := newEngine(t, clk)
	s, err := New(e.Commands, e, Config{HoldSweepInterval: time.Second, AutoCompleteInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	assert.ElementsMatch(t, []string{JobHoldSweep, JobAutoComplete}, s.Jobs())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, Config{})
	assert.Error(t, err)
}

func TestAutoCompleteCompletesEndedDepartures(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	e := newEngine(t, clk)
	seedSlotBooking(t, e)
	s, err := New(e.Commands, e, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	require.NoError(t, s.AutoComplete(context.Background()))
	b, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](context.Background(), e.Queries, bookingapp.GetBookingQuery{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", b.Status)

	clk.Set(time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.AutoComplete(context.Background()))
	b, err = queries.Ask[bookingapp.GetBookingQuery, dto.Booking](context.Background(), e.Queries, bookingapp.GetBookingQuery{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", b.Status)
}

func TestReconcileAndSweepRunCleanly(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	e := newEngine(t, clk)
	seedSlotBooking(t, e)
	s, err := New(e.Commands, e, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	assert.NoError(t, s.Reconcile(context.Background()))
	assert.NoError(t, s.SweepHolds(context.Background()))
}
