package capacity

import (
	"context"
	"sync"
	"time"

	"activityhub/internal/domain/shared/apperr"
)

// Locker serializes capacity mutations per key. Acquire must give up with a
// ReservationTimeout error once the wait exceeds the locker's bound.
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is a per-key semaphore for single-replica deployments.
type LocalLocker struct {
	Timeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{Timeout: timeout, slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)
	timer := time.NewTimer(l.timeout())
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(key)
			})
		}, nil
	case <-timer.C:
		l.unref(key)
		return nil, apperr.ReservationTimeout("capacity.lock", "window %s is busy, retry later", key)
	case <-ctx.Done():
		l.unref(key)
		return nil, apperr.ReservationTimeout("capacity.lock", "window %s: %v", key, ctx.Err())
	}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*slot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) timeout() time.Duration {
	if l.Timeout <= 0 {
		return 2 * time.Second
	}
	return l.Timeout
}

var _ Locker = (*LocalLocker)(nil)
