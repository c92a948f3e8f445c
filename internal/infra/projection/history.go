// Package projection consumes broker events into read models.
package projection

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"

	appoutbox "activityhub/internal/app/outbox"
	"activityhub/internal/infra/outbox"
)

// Inbox deduplicates deliveries per consumer.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Projector interface {
	Project(ctx context.Context, rec appoutbox.EventRecord) error
}

// HistoryTopics lists the topics carrying booking and ticket events.
func HistoryTopics(prefix string) []string {
	return []string{
		outbox.TopicFor(prefix, "booking"),
		outbox.TopicFor(prefix, "ticket"),
	}
}

// HistoryHandler feeds CloudEvents from Kafka into the booking history.
type HistoryHandler struct {
	Projector Projector
	Inbox     Inbox
	Logger    *slog.Logger
}

func (h *HistoryHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	rec, err := outbox.Decode(msg.Value)
	if err != nil {
		// Poison message: skip it rather than block the partition.
		h.logger().WarnContext(ctx, "dropping undecodable event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.Any("err", err))
		return nil
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	if err := h.Projector.Project(ctx, rec); err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, rec.ID); ferr != nil {
				h.logger().ErrorContext(ctx, "inbox forget failed", slog.String("event_id", rec.ID), slog.Any("err", ferr))
			}
		}
		return err
	}
	return nil
}

func (h *HistoryHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
