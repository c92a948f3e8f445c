package uow

import (
	"context"
	"sync"
)

// Hooks collects post-commit and post-rollback callbacks. Units embed it and
// call RunCommit or RunRollback exactly once.
type Hooks struct {
	mu         sync.Mutex
	onCommit   []func(context.Context)
	onRollback []func(context.Context)
	done       bool
}

func (h *Hooks) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommit = append(h.onCommit, fn)
}

func (h *Hooks) AfterRollback(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRollback = append(h.onRollback, fn)
}

// RunCommit invokes commit callbacks in registration order. Callbacks get a
// context detached from cancellation so a client disconnect cannot skip them.
func (h *Hooks) RunCommit(ctx context.Context) {
	h.run(ctx, true)
}

func (h *Hooks) RunRollback(ctx context.Context) {
	h.run(ctx, false)
}

func (h *Hooks) run(ctx context.Context, committed bool) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	fns := h.onRollback
	if committed {
		fns = h.onCommit
	}
	h.onCommit, h.onRollback = nil, nil
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, fn := range fns {
		fn(ctx)
	}
}
