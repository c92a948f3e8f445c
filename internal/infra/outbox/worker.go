package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Queue is the claimable side of the outbox.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

// Worker relays committed outbox records to a Publisher, retrying failed
// deliveries along Backoff.
type Worker struct {
	Queue     Queue
	Publisher Publisher
	Interval  time.Duration
	ID        string
	Backoff   []time.Duration
	// BatchSize bounds how many records one tick relays.
	BatchSize int
	Logger    *slog.Logger

	now func() time.Time
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Publisher == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger().WarnContext(ctx, "outbox relay failed", slog.Any("err", err))
			}
		}
	}
}

// Drain relays due records until the queue is empty or the batch is spent.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	sent := 0
	for i := 0; i < w.batchSize(); i++ {
		processed, ok, err := w.processOnce(ctx)
		if err != nil {
			return sent, err
		}
		if !processed {
			break
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (w *Worker) processOnce(ctx context.Context) (processed, sent bool, err error) {
	doc, err := w.Queue.Claim(ctx, w.ID)
	if err != nil || doc == nil {
		return false, false, err
	}
	if err := w.Publisher.Publish(ctx, doc.Record()); err != nil {
		w.logger().WarnContext(ctx, "outbox publish failed",
			slog.String("event", doc.Name),
			slog.String("event_id", doc.ID),
			slog.Int("attempts", doc.Attempts+1),
			slog.Any("err", err))
		return true, false, w.Queue.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), err.Error())
	}
	return true, true, w.Queue.MarkSent(ctx, doc.ID)
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 100
	}
	return w.BatchSize
}

func (w *Worker) nextRetry(attempts int) time.Time {
	now := time.Now()
	if w.now != nil {
		now = w.now()
	}
	if attempts < len(w.Backoff) {
		return now.Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return now.Add(w.Backoff[len(w.Backoff)-1])
	}
	return now.Add(5 * time.Second)
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}
