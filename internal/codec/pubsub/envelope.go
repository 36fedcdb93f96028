// Package pubsub converts events to and from Google Pub/Sub messages.
//
// Outbound events are encoded into an Envelope and handed to a Publisher.
// Inbound events arrive as push-subscription request bodies, which are
// validated against a JSON Schema before any field is read.
package pubsub

import (
	"fmt"

	cetypes "github.com/cloudevents/sdk-go/v2/types"

	"github.com/fraser-isbester/cebridge/pkg/types"
)

// TransportName identifies this codec in the transport registry.
const TransportName = "google-pubsub"

// Envelope is the wire form of an event on Pub/Sub.
type Envelope struct {
	Data        []byte            `json:"data,omitempty"`
	MessageID   string            `json:"messageId"`
	PublishTime *PublishTime      `json:"publishTime,omitempty"`
	Attributes  map[string]string `json:"attributes"`
}

// PublishTime is a whole-second Unix timestamp.
type PublishTime struct {
	Seconds int64 `json:"seconds"`
}

// EncodeEnvelope converts an event into a Pub/Sub envelope. Event
// attributes other than id and time travel as message attributes, alongside
// every extension. Unset attributes, specversion included, are omitted.
func EncodeEnvelope(event types.Event) (Envelope, error) {
	if err := event.Validate(); err != nil {
		return Envelope{}, err
	}

	data, err := event.DataBytes()
	if err != nil {
		return Envelope{}, err
	}

	publishTime, err := convertEventTime(event)
	if err != nil {
		return Envelope{}, err
	}

	attributes, err := messageAttributes(event)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Data:        data,
		MessageID:   event.ID,
		PublishTime: publishTime,
		Attributes:  attributes,
	}, nil
}

func convertEventTime(event types.Event) (*PublishTime, error) {
	t, ok, err := event.ParsedTime()
	if err != nil || !ok {
		return nil, err
	}
	// Unix floors towards negative infinity, so pre-epoch times round down.
	return &PublishTime{Seconds: t.Unix()}, nil
}

func messageAttributes(event types.Event) (map[string]string, error) {
	attributes := make(map[string]string, 6+len(event.Extensions))
	setIfPresent := func(name, value string) {
		if value != "" {
			attributes[name] = value
		}
	}
	setIfPresent("specversion", event.SpecVersion)
	setIfPresent("type", event.Type)
	setIfPresent("source", event.Source)
	setIfPresent("subject", event.Subject)
	setIfPresent("datacontenttype", event.DataContentType)
	setIfPresent("dataschema", event.DataSchema)

	for _, name := range event.ExtensionNames() {
		value := event.Extensions[name]
		if value == nil {
			continue
		}
		s, err := cetypes.Format(value)
		if err != nil {
			return nil, fmt.Errorf("extension %q cannot be encoded as a message attribute: %w", name, err)
		}
		attributes[name] = s
	}
	return attributes, nil
}
