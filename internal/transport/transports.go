package transport

import (
	"context"

	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/fraser-isbester/cebridge/internal/codec/cebinary"
	"github.com/fraser-isbester/cebridge/internal/codec/pubsub"
	"github.com/fraser-isbester/cebridge/pkg/types"
)

// Options configures the built-in transports.
type Options struct {
	// PubSub configures the Google Pub/Sub client shared by every
	// google-pubsub emitter resolved from the registry.
	PubSub pubsub.GoogleConfig
	// HTTP options are applied to every ce-http-binary emitter.
	HTTP []cehttp.Option
}

// NewDefaultRegistry registers the ce-http-binary and google-pubsub
// transports. The returned publisher is the one google-pubsub emitters use;
// its client is only created when the first event is published, and the
// caller should Close it on shutdown.
func NewDefaultRegistry(opts Options) (*Registry, *pubsub.GooglePublisher) {
	publisher := pubsub.NewGooglePublisher(opts.PubSub)

	r := NewRegistry()
	r.RegisterEmitter(cebinary.TransportName, func(_ context.Context, sinkURL string) (types.EmitFunc, error) {
		return cebinary.NewEmitter(sinkURL, opts.HTTP...)
	})
	r.RegisterReceiver(cebinary.TransportName, func(context.Context) (types.ReceiveFunc, error) {
		return cebinary.Receive, nil
	})
	r.RegisterEmitter(pubsub.TransportName, func(_ context.Context, topic string) (types.EmitFunc, error) {
		return pubsub.NewEmitter(publisher, topic)
	})
	r.RegisterReceiver(pubsub.TransportName, func(context.Context) (types.ReceiveFunc, error) {
		return pubsub.Receive, nil
	})
	return r, publisher
}
