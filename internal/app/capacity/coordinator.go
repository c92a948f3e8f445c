// Package capacity mediates every mutation of window capacity counters.
//
// Reserve takes the per-window lock, performs one conditional counter update
// and releases the lock; nothing else happens while the lock is held. The
// resulting Token is a hold the caller either commits after writing the
// ledger or aborts.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"activityhub/internal/domain/availability"
	"activityhub/internal/domain/shared/apperr"
)

type TokenState string

const (
	TokenHeld      TokenState = "HELD"
	TokenCommitted TokenState = "COMMITTED"
	TokenReleased  TokenState = "RELEASED"
	TokenExpired   TokenState = "EXPIRED"
	TokenAborted   TokenState = "ABORTED"
)

type Token struct {
	ID        string                `json:"id"`
	WindowID  availability.WindowID `json:"window_id"`
	Quantity  int                   `json:"quantity"`
	State     TokenState            `json:"state"`
	IssuedAt  time.Time             `json:"issued_at"`
	ExpiresAt time.Time             `json:"expires_at"`
	// Remaining is the window capacity observed right after the mutation.
	Remaining int `json:"remaining"`
}

type Config struct {
	HoldTTL time.Duration
	Logger  *slog.Logger
	// Observer defaults to a no-op.
	Observer Observer
	Clock    func() time.Time
}

type Coordinator struct {
	counters availability.CounterStore
	locker   Locker
	holdTTL  time.Duration
	logger   *slog.Logger
	observer Observer
	clock    func() time.Time

	mu    sync.Mutex
	holds map[string]*Token
}

func NewCoordinator(counters availability.CounterStore, locker Locker, cfg Config) *Coordinator {
	if counters == nil {
		panic("capacity: counter store required")
	}
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	c := &Coordinator{
		counters: counters,
		locker:   locker,
		holdTTL:  cfg.HoldTTL,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		clock:    cfg.Clock,
		holds:    make(map[string]*Token),
	}
	if c.holdTTL <= 0 {
		c.holdTTL = 10 * time.Minute
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// Reserve consumes quantity units of the window or fails with
// CapacityExceeded leaving the counter untouched.
func (c *Coordinator) Reserve(ctx context.Context, windowID availability.WindowID, quantity int) (Token, error) {
	if quantity <= 0 {
		c.observer.ReserveAttempt(OutcomeInvalid, 0)
		return Token{}, apperr.Validation("capacity.reserve", "quantity must be >= 1, got %d", quantity)
	}
	var token Token
	_, wait, err := c.mutate(ctx, windowID, func(ctx context.Context) (availability.Counter, error) {
		counter, err := c.counters.TryConsume(ctx, windowID, quantity)
		if err != nil {
			return counter, err
		}
		// Registered under the window lock so Seal and Reconcile never see
		// consumed units without their hold.
		token = c.hold(windowID, quantity, counter)
		return counter, nil
	})
	if err != nil {
		c.observer.ReserveAttempt(outcomeOf(err), wait)
		return Token{}, err
	}
	c.observer.ReserveAttempt(OutcomeReserved, wait)
	return token, nil
}

func (c *Coordinator) hold(windowID availability.WindowID, quantity int, counter availability.Counter) Token {
	now := c.clock().UTC()
	token := &Token{
		ID:        uuid.NewString(),
		WindowID:  windowID,
		Quantity:  quantity,
		State:     TokenHeld,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.holdTTL),
		Remaining: counter.Remaining(),
	}
	c.mu.Lock()
	c.holds[token.ID] = token
	c.mu.Unlock()
	return *token
}

// Release gives back quantity units. The counter never drops below zero.
func (c *Coordinator) Release(ctx context.Context, windowID availability.WindowID, quantity int) (availability.Counter, error) {
	if quantity <= 0 {
		return availability.Counter{}, apperr.Validation("capacity.release", "quantity must be >= 1, got %d", quantity)
	}
	counter, _, err := c.mutate(ctx, windowID, func(ctx context.Context) (availability.Counter, error) {
		return c.counters.Restore(ctx, windowID, quantity)
	})
	if err != nil {
		return availability.Counter{}, err
	}
	c.observer.Released(quantity)
	return counter, nil
}

func (c *Coordinator) mutate(ctx context.Context, windowID availability.WindowID, apply func(context.Context) (availability.Counter, error)) (availability.Counter, time.Duration, error) {
	started := time.Now()
	unlock, err := c.locker.Acquire(ctx, string(windowID))
	wait := time.Since(started)
	if err != nil {
		return availability.Counter{}, wait, err
	}
	defer unlock()
	counter, err := apply(ctx)
	return counter, wait, err
}

// Token returns a copy of a known hold.
func (c *Coordinator) Token(tokenID string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.holds[tokenID]
	if !ok {
		return Token{}, apperr.NotFound("capacity.token", "reservation %s not found", tokenID)
	}
	return *t, nil
}

// Commit marks a hold durable. Committing twice is a no-op.
func (c *Coordinator) Commit(ctx context.Context, tokenID string) (Token, error) {
	const op = "capacity.commit"
	c.mu.Lock()
	t, ok := c.holds[tokenID]
	if !ok {
		c.mu.Unlock()
		return Token{}, apperr.NotFound(op, "reservation %s not found", tokenID)
	}
	switch t.State {
	case TokenCommitted:
		out := *t
		c.mu.Unlock()
		return out, nil
	case TokenHeld:
		if !c.clock().Before(t.ExpiresAt) {
			c.mu.Unlock()
			c.expire(ctx, tokenID)
			return Token{}, apperr.Conflict(op, "reservation %s expired", tokenID)
		}
		t.State = TokenCommitted
		out := *t
		c.mu.Unlock()
		return out, nil
	default:
		state := t.State
		c.mu.Unlock()
		return Token{}, apperr.Conflict(op, "reservation %s is %s", tokenID, state)
	}
}

// ReleaseToken returns an uncommitted hold to the window. Committed holds
// belong to a booking and are released by cancelling it.
func (c *Coordinator) ReleaseToken(ctx context.Context, tokenID string) (Token, error) {
	t, ok := c.take(tokenID, TokenReleased, TokenHeld)
	if !ok {
		return Token{}, c.unavailable("capacity.release_token", tokenID)
	}
	counter, err := c.Release(ctx, t.WindowID, t.Quantity)
	if err != nil {
		c.restoreState(tokenID, t.State)
		return Token{}, err
	}
	t.State = TokenReleased
	t.Remaining = counter.Remaining()
	return t, nil
}

// Abort compensates a reservation whose ledger write failed. When the release
// itself fails the window is flagged for manual reconciliation and the
// returned error matches both ReconciliationRequired and the original cause.
func (c *Coordinator) Abort(ctx context.Context, tokenID string, cause error) error {
	const op = "capacity.abort"
	t, ok := c.take(tokenID, TokenAborted, TokenHeld, TokenCommitted)
	if !ok {
		return cause
	}
	_, err := c.Release(ctx, t.WindowID, t.Quantity)
	if err == nil {
		return cause
	}
	reason := fmt.Sprintf("compensating release of %d failed: %v", t.Quantity, err)
	c.logger.ErrorContext(ctx, "capacity compensation failed",
		slog.String("window_id", string(t.WindowID)),
		slog.String("token", tokenID),
		slog.Int("quantity", t.Quantity),
		slog.Any("err", err))
	if flagErr := c.flag(ctx, t.WindowID, reason); flagErr != nil {
		err = errors.Join(err, flagErr)
	}
	joined := err
	if cause != nil {
		joined = errors.Join(cause, err)
	}
	return apperr.Reconciliation(op, joined, "window %s needs manual reconciliation", t.WindowID)
}

// ReleaseOrFlag releases units of a booking that left the ledger. A failed
// release flags the window so the drift is reconciled later.
func (c *Coordinator) ReleaseOrFlag(ctx context.Context, windowID availability.WindowID, quantity int, why string) error {
	_, err := c.Release(ctx, windowID, quantity)
	if err == nil {
		return nil
	}
	c.logger.ErrorContext(ctx, "capacity release failed",
		slog.String("window_id", string(windowID)),
		slog.Int("quantity", quantity),
		slog.String("why", why),
		slog.Any("err", err))
	return c.flag(ctx, windowID, fmt.Sprintf("release of %d after %s failed: %v", quantity, why, err))
}

func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Flag marks the window for manual reconciliation.
func (c *Coordinator) Flag(ctx context.Context, windowID availability.WindowID, reason string) error {
	return c.flag(ctx, windowID, reason)
}

func (c *Coordinator) flag(ctx context.Context, windowID availability.WindowID, reason string) error {
	if err := c.counters.Flag(context.WithoutCancel(ctx), windowID, reason, c.clock().UTC()); err != nil {
		return err
	}
	c.observer.WindowFlagged()
	return nil
}

// Outstanding sums the units of holds on the window that the ledger does not
// account for: uncommitted holds and committed ones whose booking is missing
// from recorded, the token ids of the bookings the caller read. A committed
// hold stays outstanding until its booking is visible, so a reader racing
// the booking's commit still counts it.
func (c *Coordinator) Outstanding(windowID availability.WindowID, recorded map[string]bool) int {
	total := 0
	for _, t := range c.outstanding(windowID, recorded) {
		total += t.Quantity
	}
	return total
}

func (c *Coordinator) outstanding(windowID availability.WindowID, recorded map[string]bool) []Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Token
	for _, t := range c.holds {
		if t.WindowID != windowID {
			continue
		}
		if t.State == TokenHeld || (t.State == TokenCommitted && !recorded[t.ID]) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reconcile overwrites the window counter with the ledger consumption plus
// the outstanding holds, under the window lock. The stored flag is cleared.
func (c *Coordinator) Reconcile(ctx context.Context, windowID availability.WindowID, ledger int, recorded map[string]bool) (availability.Counter, error) {
	if ledger < 0 {
		return availability.Counter{}, apperr.Validation("capacity.reconcile", "ledger consumption must be >= 0, got %d", ledger)
	}
	counter, _, err := c.mutate(ctx, windowID, func(ctx context.Context) (availability.Counter, error) {
		return c.counters.SetConsumed(ctx, windowID, ledger+c.Outstanding(windowID, recorded))
	})
	return counter, err
}

// Seal closes the window to new reservations and returns the holds that
// consumed units before it and are not in recorded. Callers undo it with
// Unseal when the close does not go through.
func (c *Coordinator) Seal(ctx context.Context, windowID availability.WindowID, recorded map[string]bool) ([]Token, error) {
	unlock, err := c.locker.Acquire(ctx, string(windowID))
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := c.counters.SetClosed(ctx, windowID, true); err != nil {
		return nil, err
	}
	return c.outstanding(windowID, recorded), nil
}

func (c *Coordinator) Unseal(ctx context.Context, windowID availability.WindowID) error {
	unlock, err := c.locker.Acquire(ctx, string(windowID))
	if err != nil {
		return err
	}
	defer unlock()
	return c.counters.SetClosed(ctx, windowID, false)
}

// SweepExpired releases holds that outlived the TTL and forgets finished ones.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	now := c.clock()
	c.mu.Lock()
	var expired []string
	for id, t := range c.holds {
		switch {
		case t.State == TokenHeld && !now.Before(t.ExpiresAt):
			expired = append(expired, id)
		case t.State != TokenHeld && now.Sub(t.ExpiresAt) > c.holdTTL:
			delete(c.holds, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(expired)

	var errs []error
	released := 0
	for _, id := range expired {
		if err := c.expire(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		released++
	}
	return released, errors.Join(errs...)
}

func (c *Coordinator) expire(ctx context.Context, tokenID string) error {
	t, ok := c.take(tokenID, TokenExpired, TokenHeld)
	if !ok {
		return nil
	}
	if _, err := c.Release(ctx, t.WindowID, t.Quantity); err != nil {
		c.restoreState(tokenID, TokenHeld)
		return err
	}
	c.observer.HoldExpired(t.Quantity)
	c.logger.InfoContext(ctx, "reservation hold expired",
		slog.String("token", tokenID),
		slog.String("window_id", string(t.WindowID)),
		slog.Int("quantity", t.Quantity))
	return nil
}

// take switches a token in one of the from states to the target state and
// returns its previous snapshot.
func (c *Coordinator) take(tokenID string, to TokenState, from ...TokenState) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.holds[tokenID]
	if !ok {
		return Token{}, false
	}
	for _, s := range from {
		if t.State == s {
			prev := *t
			t.State = to
			return prev, true
		}
	}
	return Token{}, false
}

func (c *Coordinator) restoreState(tokenID string, state TokenState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.holds[tokenID]; ok {
		t.State = state
	}
}

func (c *Coordinator) unavailable(op, tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.holds[tokenID]
	if !ok {
		return apperr.NotFound(op, "reservation %s not found", tokenID)
	}
	return apperr.Conflict(op, "reservation %s is %s", tokenID, t.State)
}

func outcomeOf(err error) Outcome {
	switch {
	case errors.Is(err, apperr.ErrCapacityExceeded):
		return OutcomeExhausted
	case errors.Is(err, apperr.ErrReservationTimeout):
		return OutcomeTimeout
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrNotFound):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
