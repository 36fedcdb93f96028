package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cetypes "github.com/cloudevents/sdk-go/v2/types"
	json "github.com/goccy/go-json"
)

// DefaultSpecVersion is assumed when an event or wire message does not carry
// one.
const DefaultSpecVersion = cloudevents.VersionV1

// Event represents our standardized event format
type Event struct {
	// CloudEvents required attributes
	ID          string
	Source      string
	Type        string
	SpecVersion string

	// Optional attributes; the empty string means unset.
	Subject         string
	Time            string
	DataContentType string
	DataSchema      string

	// Data is nil, a byte slice, a string or any JSON-marshalable value.
	Data any

	Extensions map[string]any
}

// EmitFunc sends an event out over a wire transport.
type EmitFunc func(ctx context.Context, event Event) error

// ReceiveFunc parses an event from raw wire input.
type ReceiveFunc func(ctx context.Context, header http.Header, body []byte) (Event, error)

var reservedAttributes = map[string]struct{}{
	"id":              {},
	"source":          {},
	"type":            {},
	"specversion":     {},
	"subject":         {},
	"time":            {},
	"datacontenttype": {},
	"dataschema":      {},
	"data":            {},
	"data_base64":     {},
}

// IsReserved reports whether name is a CloudEvents context or data attribute
// and therefore can never be used as an extension.
func IsReserved(name string) bool {
	_, ok := reservedAttributes[name]
	return ok
}

// SetExtension returns a copy of the event with the extension set.
func (e Event) SetExtension(name string, value any) (Event, error) {
	if IsReserved(name) {
		return e, fmt.Errorf("extension name %q is a reserved attribute", name)
	}
	ext := make(map[string]any, len(e.Extensions)+1)
	for k, v := range e.Extensions {
		ext[k] = v
	}
	ext[name] = value
	e.Extensions = ext
	return e, nil
}

// ExtensionNames returns the extension names in sorted order.
func (e Event) ExtensionNames() []string {
	names := make([]string, 0, len(e.Extensions))
	for name := range e.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that id, source and type are present and that no extension
// shadows a reserved attribute. An empty SpecVersion is allowed; encoders
// either omit it or fall back to DefaultSpecVersion.
func (e Event) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if e.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if e.Type == "" {
		errs = append(errs, errors.New("type is required"))
	}
	for _, name := range e.ExtensionNames() {
		if IsReserved(name) {
			errs = append(errs, fmt.Errorf("extension %q shadows a reserved attribute", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid event: %w", errors.Join(errs...))
	}
	return nil
}

// ParsedTime parses the event time. ok is false when the time is unset.
func (e Event) ParsedTime() (t time.Time, ok bool, err error) {
	if e.Time == "" {
		return time.Time{}, false, nil
	}
	ts, err := cetypes.ParseTimestamp(e.Time)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse event time %q: %w", e.Time, err)
	}
	return ts.Time, true, nil
}

// DataBytes returns the wire form of the event data. Byte slices and strings
// are passed through, anything else is serialized as JSON. A nil result means
// the event carries no data.
func (e Event) DataBytes() ([]byte, error) {
	switch data := e.Data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return data, nil
	case string:
		return []byte(data), nil
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		return b, nil
	}
}
