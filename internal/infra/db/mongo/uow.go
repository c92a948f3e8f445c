package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"activityhub/internal/app/uow"
	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/booking"
	"activityhub/internal/domain/catalog"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database
}

var (
	ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")
	errUnitFinished            = errors.New("mongo: unit of work already finished")
)

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	unit := &Unit{
		session:   session,
		readOnly:  opts.ReadOnly,
		vendors:   NewVendorRepository(f.DB),
		resources: NewResourceRepository(f.DB),
		windows:   NewWindowRepository(f.DB),
		bookings:  NewBookingRepository(f.DB),
		tickets:   NewTicketRepository(f.DB),
	}
	for _, v := range []*versioned{&unit.vendors.versioned, &unit.resources.versioned, &unit.windows.versioned, &unit.bookings.versioned, &unit.tickets.versioned} {
		v.readOnly = opts.ReadOnly
	}
	return unit, nil
}

type Unit struct {
	uow.Hooks

	session  mongo.Session
	readOnly bool
	finished bool

	vendors   *VendorRepository
	resources *ResourceRepository
	windows   *WindowRepository
	bookings  *BookingRepository
	tickets   *TicketRepository
}

func (u *Unit) Vendors() catalog.VendorRepository { return u.vendors }
func (u *Unit) Resources() catalog.Repository     { return u.resources }
func (u *Unit) Windows() availability.Repository  { return u.windows }
func (u *Unit) Bookings() booking.Repository      { return u.bookings }
func (u *Unit) Tickets() booking.TicketRepository { return u.tickets }

// Commit commits the transaction; write conflicts surface as Conflict so the
// caller can retry the command.
func (u *Unit) Commit(ctx context.Context) error {
	if u.finished {
		return errUnitFinished
	}
	u.finished = true
	defer u.session.EndSession(ctx)
	if u.readOnly {
		if err := u.session.AbortTransaction(ctx); err != nil {
			return err
		}
		u.RunCommit(ctx)
		return nil
	}
	if err := u.session.CommitTransaction(ctx); err != nil {
		u.RunRollback(ctx)
		return mapErr("mongo.commit", "transaction", err)
	}
	u.RunCommit(ctx)
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.finished {
		return nil
	}
	u.finished = true
	defer u.session.EndSession(ctx)
	err := u.session.AbortTransaction(ctx)
	u.RunRollback(ctx)
	return err
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
