// Package engine assembles the command and query buses with every handler
// and the middleware pipeline.
package engine

import (
	"context"
	"log/slog"
	"time"

	"activityhub/internal/app/capacity"
	"activityhub/internal/app/commands"
	availabilityapp "activityhub/internal/app/handlers/availability"
	bookingapp "activityhub/internal/app/handlers/booking"
	catalogapp "activityhub/internal/app/handlers/catalog"
	"activityhub/internal/app/history"
	"activityhub/internal/app/middleware"
	"activityhub/internal/app/outbox"
	"activityhub/internal/app/queries"
	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/lifecycle"
)

type Deps struct {
	UoWFactory uow.UoWFactory
	Counters   availability.CounterStore
	Locker     capacity.Locker
	// IdempotencyLocker serialises duplicate keyed commands. Defaults to a
	// process-local locker separate from Locker.
	IdempotencyLocker capacity.Locker
	Outbox            outbox.Outbox
	Idempotency       middleware.IdempotencyStore
	History           history.Store
	Observer          capacity.Observer
	Logger            *slog.Logger
	// Clock reports time in Location.
	Clock    func() time.Time
	Location *time.Location
	HoldTTL  time.Duration
}

type Engine struct {
	Commands    commands.Bus
	Queries     queries.Bus
	Coordinator *capacity.Coordinator
}

func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.IdempotencyLocker == nil {
		d.IdempotencyLocker = capacity.NewLocalLocker(0)
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Clock == nil {
		loc := d.Location
		d.Clock = func() time.Time { return time.Now().In(loc) }
	}
	coord := capacity.NewCoordinator(d.Counters, d.Locker, capacity.Config{
		HoldTTL:  d.HoldTTL,
		Logger:   d.Logger,
		Observer: d.Observer,
		Clock:    d.Clock,
	})
	fsm := lifecycle.Default()
	enc := outbox.JSONEventEncoder{}
	box := d.Outbox

	cmdBus := commands.NewInMemoryBus()
	commands.RegisterHandler(cmdBus, catalogapp.RegisterVendorCommand{}.Key(), &catalogapp.RegisterVendorHandler{Outbox: box, Encoder: enc, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, catalogapp.ReviewVendorCommand{}.Key(), &catalogapp.ReviewVendorHandler{Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})
	commands.RegisterHandler(cmdBus, catalogapp.CreateResourceCommand{}.Key(), &catalogapp.CreateResourceHandler{Outbox: box, Encoder: enc, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, catalogapp.SetResourceStatusCommand{}.Key(), &catalogapp.SetResourceStatusHandler{Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, catalogapp.ReviewResourceCommand{}.Key(), &catalogapp.ReviewResourceHandler{Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})

	commands.RegisterHandler(cmdBus, availabilityapp.CreateWindowCommand{}.Key(), &availabilityapp.CreateWindowHandler{Outbox: box, Encoder: enc, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, availabilityapp.CloseWindowCommand{}.Key(), &availabilityapp.CloseWindowHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, availabilityapp.ReconcileWindowCommand{}.Key(), &availabilityapp.ReconcileWindowHandler{Coordinator: coord, Outbox: box, Encoder: enc, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, availabilityapp.ReconciliationReportCommand{}.Key(), &availabilityapp.ReconciliationReportHandler{Coordinator: coord, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, availabilityapp.ReserveCommand{}.Key(), &availabilityapp.ReserveHandler{Coordinator: coord})
	commands.RegisterHandler(cmdBus, availabilityapp.ReleaseReservationCommand{}.Key(), &availabilityapp.ReleaseReservationHandler{Coordinator: coord})

	create := &bookingapp.CreateBookingHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock, Logger: d.Logger}
	commands.RegisterHandler(cmdBus, bookingapp.CreateBookingCommand{}.Key(), create)
	commands.RegisterHandler(cmdBus, bookingapp.CommitReservationCommand{}.Key(), &bookingapp.CommitReservationHandler{Create: create})
	commands.RegisterHandler(cmdBus, bookingapp.ConfirmBookingCommand{}.Key(), &bookingapp.ConfirmBookingHandler{Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})
	commands.RegisterHandler(cmdBus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock, Logger: d.Logger})
	commands.RegisterHandler(cmdBus, bookingapp.CompleteBookingCommand{}.Key(), &bookingapp.CompleteBookingHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})
	commands.RegisterHandler(cmdBus, bookingapp.RedeemTicketCommand{}.Key(), &bookingapp.RedeemTicketHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})
	commands.RegisterHandler(cmdBus, bookingapp.RevokeTicketCommand{}.Key(), &bookingapp.RevokeTicketHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock})
	commands.RegisterHandler(cmdBus, bookingapp.AutoCompleteCommand{}.Key(), &bookingapp.AutoCompleteHandler{Coordinator: coord, Outbox: box, Encoder: enc, Lifecycle: fsm, Clock: d.Clock, Logger: d.Logger})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, catalogapp.GetVendorQuery{}.Key(), &catalogapp.GetVendorHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, catalogapp.GetResourceQuery{}.Key(), &catalogapp.GetResourceHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, catalogapp.ListResourcesQuery{}.Key(), &catalogapp.ListResourcesHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, catalogapp.ResourceStatsQuery{}.Key(), &catalogapp.ResourceStatsHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, availabilityapp.GetWindowQuery{}.Key(), &availabilityapp.GetWindowHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, availabilityapp.QueryWindowsQuery{}.Key(), &availabilityapp.QueryWindowsHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, availabilityapp.ListFlaggedQuery{}.Key(), &availabilityapp.ListFlaggedHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, availabilityapp.GetCalendarQuery{}.Key(), &availabilityapp.GetCalendarHandler{UoWFactory: d.UoWFactory, Clock: d.Clock, Location: d.Location})
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{UoWFactory: d.UoWFactory})
	queries.RegisterHandler(queryBus, bookingapp.ListBookingsQuery{}.Key(), &bookingapp.ListBookingsHandler{UoWFactory: d.UoWFactory})
	if d.History != nil {
		queries.RegisterHandler(queryBus, bookingapp.BookingHistoryQuery{}.Key(), &bookingapp.BookingHistoryHandler{UoWFactory: d.UoWFactory, History: d.History})
	}

	validator := middleware.NewStructValidator()
	var idempotency middleware.CommandMiddleware
	if d.Idempotency != nil {
		idempotency = middleware.Idempotency(middleware.IdempotencyConfig{Store: d.Idempotency, Locker: d.IdempotencyLocker, Clock: d.Clock})
	}
	var flush middleware.CommandMiddleware
	if box != nil {
		flush = middleware.OutboxFlush(box)
	}
	return &Engine{
		Commands: middleware.ChainCommands(
			cmdBus,
			middleware.Logging(d.Logger),
			middleware.Validation(validator),
			idempotency,
			flush,
			middleware.Transaction(d.UoWFactory, d.Logger, nil),
		),
		Queries: middleware.ChainQueries(
			queryBus,
			middleware.QueryLogging(d.Logger),
			middleware.QueryValidation(validator),
		),
		Coordinator: coord,
	}
}

// SweepHolds releases expired reservation holds.
func (e *Engine) SweepHolds(ctx context.Context) (int, error) {
	return e.Coordinator.SweepExpired(ctx)
}
