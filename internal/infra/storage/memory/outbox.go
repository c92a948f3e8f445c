package memory

import (
	"context"
	"log/slog"
	"sync"

	"activityhub/internal/app/middleware"
	appoutbox "activityhub/internal/app/outbox"
)

// Subscriber receives flushed records in order.
type Subscriber func(ctx context.Context, rec appoutbox.EventRecord) error

// Outbox buffers records per command and hands them to subscribers on
// flush. Records of a failed command are discarded.
type Outbox struct {
	Logger *slog.Logger

	mu          sync.Mutex
	subscribers []Subscriber
	published   []appoutbox.EventRecord
	unscoped    []appoutbox.EventRecord
}

type scopeKey struct{}

type buffer struct {
	mu      sync.Mutex
	records []appoutbox.EventRecord
}

func NewOutbox(logger *slog.Logger) *Outbox {
	return &Outbox{Logger: logger}
}

func (o *Outbox) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, fn)
}

func (o *Outbox) Scope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &buffer{})
}

func (o *Outbox) Add(ctx context.Context, rec appoutbox.EventRecord) error {
	if buf, ok := ctx.Value(scopeKey{}).(*buffer); ok {
		buf.mu.Lock()
		buf.records = append(buf.records, rec)
		buf.mu.Unlock()
		return nil
	}
	o.mu.Lock()
	o.unscoped = append(o.unscoped, rec)
	o.mu.Unlock()
	return nil
}

func (o *Outbox) Discard(ctx context.Context) {
	if buf, ok := ctx.Value(scopeKey{}).(*buffer); ok {
		buf.mu.Lock()
		buf.records = nil
		buf.mu.Unlock()
	}
}

// Flush delivers the command's records. Subscriber failures are logged and do
// not fail the command, which has already committed.
func (o *Outbox) Flush(ctx context.Context) error {
	var records []appoutbox.EventRecord
	if buf, ok := ctx.Value(scopeKey{}).(*buffer); ok {
		buf.mu.Lock()
		records, buf.records = buf.records, nil
		buf.mu.Unlock()
	} else {
		o.mu.Lock()
		records, o.unscoped = o.unscoped, nil
		o.mu.Unlock()
	}
	if len(records) == 0 {
		return nil
	}
	o.mu.Lock()
	o.published = append(o.published, records...)
	subscribers := append([]Subscriber(nil), o.subscribers...)
	o.mu.Unlock()
	for _, rec := range records {
		for _, sub := range subscribers {
			if err := sub(ctx, rec); err != nil && o.Logger != nil {
				o.Logger.WarnContext(ctx, "outbox subscriber failed",
					slog.String("event", rec.Name),
					slog.String("event_id", rec.ID),
					slog.Any("err", err))
			}
		}
	}
	return nil
}

// Published returns every flushed record.
func (o *Outbox) Published() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.published...)
}

var _ middleware.ScopedOutbox = (*Outbox)(nil)
