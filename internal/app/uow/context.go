package uow

import (
	"context"
	"errors"
)

var (
	ErrNoUnit    = errors.New("uow: no unit of work in context")
	ErrNoFactory = errors.New("uow: factory not configured")
)

type unitKey struct{}

// sessionBinder is implemented by units whose repositories read a
// driver session from the context.
type sessionBinder interface {
	InjectContext(ctx context.Context) context.Context
}

// Begin opens a unit and returns a context that carries it, bound to the
// unit's session when it has one.
func Begin(ctx context.Context, factory UoWFactory, opts TxOptions) (UnitOfWork, context.Context, error) {
	if factory == nil {
		return nil, ctx, ErrNoFactory
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, ctx, err
	}
	if b, ok := unit.(sessionBinder); ok {
		ctx = b.InjectContext(ctx)
	}
	return unit, context.WithValue(ctx, unitKey{}, unit), nil
}

// Current returns the unit opened by an enclosing Begin.
func Current(ctx context.Context) (UnitOfWork, error) {
	if unit, ok := ctx.Value(unitKey{}).(UnitOfWork); ok {
		return unit, nil
	}
	return nil, ErrNoUnit
}
