// Package cebinary converts events to and from the CloudEvents HTTP binary
// content mode, where attributes travel as ce- headers and the body carries
// the raw data.
package cebinary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/binding"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/fraser-isbester/cebridge/pkg/types"
)

// TransportName identifies this codec in the transport registry.
const TransportName = "ce-http-binary"

// NewEmitter returns an emit function bound to sinkURL. Nothing is sent
// until the function is called.
func NewEmitter(sinkURL string, opts ...cehttp.Option) (types.EmitFunc, error) {
	if err := validateSink(sinkURL); err != nil {
		return nil, err
	}

	protocol, err := cloudevents.NewHTTP(append([]cehttp.Option{cloudevents.WithTarget(sinkURL)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http protocol: %w", err)
	}
	client, err := cloudevents.NewClient(protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}

	return func(ctx context.Context, event types.Event) error {
		ce, err := event.ToCloudEvent()
		if err != nil {
			return err
		}
		result := client.Send(cloudevents.WithEncodingBinary(ctx), ce)
		if !cloudevents.IsACK(result) {
			return fmt.Errorf("failed to send event %q to %s: %w", event.ID, sinkURL, result)
		}
		return nil
	}, nil
}

// Receive builds an event from binary-mode headers and body. Header
// correctness is left to the CloudEvents HTTP binding.
func Receive(ctx context.Context, header http.Header, body []byte) (types.Event, error) {
	msg := cehttp.NewMessage(header, io.NopCloser(bytes.NewReader(body)))
	defer msg.Finish(nil)

	ce, err := binding.ToEvent(ctx, msg)
	if err != nil {
		return types.Event{}, fmt.Errorf("failed to convert binary message: %w", err)
	}
	return types.FromCloudEvent(*ce), nil
}

func validateSink(sinkURL string) error {
	u, err := url.Parse(sinkURL)
	if err != nil {
		return fmt.Errorf("invalid sink URL %q: %w", sinkURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid sink URL %q: must be an absolute http(s) URL", sinkURL)
	}
	return nil
}
