package pubsub

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/fraser-isbester/cebridge/internal/schema"
	"github.com/fraser-isbester/cebridge/pkg/types"
)

var (
	ErrMalformedPayload = errors.New("Request body is not valid JSON")
	ErrInvalidMessage   = errors.New("Request body is not a valid transport message")
)

// MalformedPayloadError is returned when a request body cannot be parsed.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string        { return ErrMalformedPayload.Error() }
func (e *MalformedPayloadError) Unwrap() error        { return e.Err }
func (e *MalformedPayloadError) Is(target error) bool { return target == ErrMalformedPayload }

// InvalidMessageError is returned when a request body parses but is not a
// push message.
type InvalidMessageError struct {
	Err error
}

func (e *InvalidMessageError) Error() string        { return ErrInvalidMessage.Error() }
func (e *InvalidMessageError) Unwrap() error        { return e.Err }
func (e *InvalidMessageError) Is(target error) bool { return target == ErrInvalidMessage }

// pushSchema describes a push subscription request body. Pub/Sub attributes
// are always strings.
var pushSchema = schema.MustCompile(`{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {
			"type": "object",
			"required": ["attributes", "messageId", "publishTime"],
			"properties": {
				"data": {"type": "string"},
				"messageId": {"type": "string"},
				"publishTime": {"type": "string"},
				"attributes": {
					"type": "object",
					"required": ["source", "type"],
					"properties": {
						"source": {"type": "string"},
						"type": {"type": "string"}
					},
					"additionalProperties": {"type": "string"}
				}
			}
		}
	}
}`)

// Receive converts a push subscription request body into an event. Headers
// are not consulted. Fields are read from the same decoded value the schema
// checked, so key matching is exact.
func Receive(_ context.Context, _ http.Header, body []byte) (types.Event, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.Event{}, &MalformedPayloadError{Err: err}
	}
	if err := pushSchema.Validate(raw); err != nil {
		return types.Event{}, &InvalidMessageError{Err: err}
	}

	msg, _ := raw.(map[string]any)["message"].(map[string]any)
	return convertMessage(msg)
}

func convertMessage(msg map[string]any) (types.Event, error) {
	attrs := stringMap(msg["attributes"])
	event := types.Event{
		ID:              stringField(msg, "messageId"),
		Time:            stringField(msg, "publishTime"),
		Source:          attrs["source"],
		Type:            attrs["type"],
		SpecVersion:     attrs["specversion"],
		Subject:         attrs["subject"],
		DataContentType: attrs["datacontenttype"],
		DataSchema:      attrs["dataschema"],
	}
	if event.SpecVersion == "" {
		event.SpecVersion = types.DefaultSpecVersion
	}

	if encoded, ok := msg["data"].(string); ok {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return types.Event{}, &InvalidMessageError{Err: err}
		}
		event.Data = data
	}

	for name, value := range attrs {
		// data and data_base64 are never extensions, so attributes with
		// those names are dropped along with the context attributes.
		if types.IsReserved(name) {
			continue
		}
		if event.Extensions == nil {
			event.Extensions = make(map[string]any)
		}
		event.Extensions[name] = value
	}
	return event, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// stringMap narrows a validated attributes object. Non-string values cannot
// occur after schema validation and are skipped.
func stringMap(v any) map[string]string {
	m, _ := v.(map[string]any)
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
