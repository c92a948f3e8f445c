package outbox

import (
	"context"

	appoutbox "activityhub/internal/app/outbox"
)

// Producer sends one message to a broker topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Publisher delivers one outbox record.
type Publisher interface {
	Publish(ctx context.Context, rec appoutbox.EventRecord) error
}

// PublisherFunc adapts an in-process handler, such as the history projector
// when no broker is configured.
type PublisherFunc func(ctx context.Context, rec appoutbox.EventRecord) error

func (f PublisherFunc) Publish(ctx context.Context, rec appoutbox.EventRecord) error {
	return f(ctx, rec)
}

// BrokerPublisher encodes records as CloudEvents and sends them keyed by
// aggregate id, which keeps an aggregate's events ordered on one partition.
type BrokerPublisher struct {
	Producer    Producer
	TopicPrefix string
	Source      string
}

func (p BrokerPublisher) Publish(ctx context.Context, rec appoutbox.EventRecord) error {
	payload, headers, err := Encode(rec, p.Source)
	if err != nil {
		return err
	}
	return p.Producer.Publish(ctx, TopicFor(p.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
}
