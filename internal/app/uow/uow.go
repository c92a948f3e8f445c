package uow

import (
	"context"

	domainavailability "activityhub/internal/domain/availability"
	domainbooking "activityhub/internal/domain/booking"
	domaincatalog "activityhub/internal/domain/catalog"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
// Window capacity counters are not part of it; they are mutated through the
// capacity coordinator only.
type UnitOfWork interface {
	Vendors() domaincatalog.VendorRepository
	Resources() domaincatalog.Repository
	Windows() domainavailability.Repository
	Bookings() domainbooking.Repository
	Tickets() domainbooking.TicketRepository

	// AfterCommit runs fn once the unit committed successfully.
	AfterCommit(fn func(ctx context.Context))
	// AfterRollback runs fn when the unit is rolled back.
	AfterRollback(fn func(ctx context.Context))

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
