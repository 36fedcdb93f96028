package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/fraser-isbester/cebridge/pkg/types"
)

// Publisher delivers an envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, envelope Envelope) error
}

// PublishError reports a failed publish call.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish message to Google PubSub topic %q: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewEmitter returns an emit function publishing to topic through pub. Each
// call makes exactly one publish attempt.
func NewEmitter(pub Publisher, topic string) (types.EmitFunc, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return func(ctx context.Context, event types.Event) error {
		envelope, err := EncodeEnvelope(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %q: %w", event.ID, err)
		}
		if err := pub.Publish(ctx, topic, envelope); err != nil {
			return &PublishError{Topic: topic, Err: err}
		}
		return nil
	}, nil
}
