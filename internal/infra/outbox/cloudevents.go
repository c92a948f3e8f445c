package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	appoutbox "activityhub/internal/app/outbox"
)

const (
	cloudEventsContentType = "application/cloudevents+json"
	typeSuffix             = ".v1"
	defaultSource          = "app://activityhub"
)

var ErrMalformedEnvelope = errors.New("outbox: malformed cloudevents envelope")

type envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// TopicFor maps an event name such as booking.confirmed to
// <prefix>booking.events.v1.
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events" + typeSuffix
}

// Encode wraps rec in a structured CloudEvents envelope. The event id is the
// record id so consumers can deduplicate redeliveries.
func Encode(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	if source == "" {
		source = defaultSource
	}
	data := json.RawMessage(rec.Payload)
	if !json.Valid(data) {
		return nil, nil, ErrMalformedEnvelope
	}
	evt := envelope{
		SpecVersion:     "1.0",
		ID:              rec.ID,
		Type:            rec.Name + typeSuffix,
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt.UTC(),
		DataContentType: "application/json",
		TraceParent:     rec.Headers["traceparent"],
		Data:            data,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{"content-type": cloudEventsContentType}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// Decode turns a CloudEvents envelope back into the outbox record it carried.
func Decode(payload []byte) (appoutbox.EventRecord, error) {
	var evt envelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		return appoutbox.EventRecord{}, errors.Join(ErrMalformedEnvelope, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return appoutbox.EventRecord{}, ErrMalformedEnvelope
	}
	rec := appoutbox.EventRecord{
		ID:         evt.ID,
		Name:       strings.TrimSuffix(evt.Type, typeSuffix),
		Payload:    []byte(evt.Data),
		OccurredAt: evt.Time,
		Aggregate:  evt.Subject,
		Headers:    map[string]string{},
	}
	if evt.TraceParent != "" {
		rec.Headers["traceparent"] = evt.TraceParent
	}
	return rec, nil
}
