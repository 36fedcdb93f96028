package pubsub

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/cebridge/internal/schema"
)

const testPublishTime = "2024-01-01T00:00:00Z"

func pushBody(mutate func(msg map[string]any, attrs map[string]any)) []byte {
	attrs := map[string]any{
		"type":   testEvent.Type,
		"source": testEvent.Source,
	}
	msg := map[string]any{
		"data":        base64.StdEncoding.EncodeToString([]byte("data")),
		"messageId":   testEvent.ID,
		"publishTime": testPublishTime,
		"attributes":  attrs,
	}
	if mutate != nil {
		mutate(msg, attrs)
	}
	b, err := json.Marshal(map[string]any{
		"message":      msg,
		"subscription": "projects/myproject/subscriptions/mysubscription",
	})
	if err != nil {
		panic(err)
	}
	return b
}

func TestReceiveRejectsMalformedJSON(t *testing.T) {
	_, err := Receive(context.Background(), nil, []byte("malformed"))
	require.Error(t, err)
	assert.EqualError(t, err, "Request body is not valid JSON")
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	var malformed *MalformedPayloadError
	assert.ErrorAs(t, err, &malformed)

	_, err = Receive(context.Background(), nil, []byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestReceiveRejectsInvalidMessages(t *testing.T) {
	cases := map[string][]byte{
		"message missing":     []byte(`{"subscription":"s"}`),
		"message null":        []byte(`{"message":null}`),
		"not an object":       []byte(`"not json"`),
		"messageId missing":   pushBody(func(msg, _ map[string]any) { delete(msg, "messageId") }),
		"publishTime missing": pushBody(func(msg, _ map[string]any) { delete(msg, "publishTime") }),
		"attributes missing":  pushBody(func(msg, _ map[string]any) { delete(msg, "attributes") }),
		"source missing":      pushBody(func(_, attrs map[string]any) { delete(attrs, "source") }),
		"type missing":        pushBody(func(_, attrs map[string]any) { delete(attrs, "type") }),
		"non-string attr":     pushBody(func(_, attrs map[string]any) { attrs["count"] = 1 }),
		"data not base64":     pushBody(func(msg, _ map[string]any) { msg["data"] = "%%%" }),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Receive(context.Background(), nil, body)
			require.Error(t, err)
			assert.EqualError(t, err, "Request body is not a valid transport message")
			assert.True(t, errors.Is(err, ErrInvalidMessage))
			assert.False(t, errors.Is(err, ErrMalformedPayload))
		})
	}
}

func TestReceivePushMessage(t *testing.T) {
	body := []byte(`{"message":{"data":"aGk=","messageId":"m1","publishTime":"2024-01-01T00:00:00Z","attributes":{"source":"s","type":"t"}}}`)

	event, err := Receive(context.Background(), nil, body)
	require.NoError(t, err)
	assert.Equal(t, "m1", event.ID)
	assert.Equal(t, []byte("hi"), event.Data)
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, "s", event.Source)
	assert.Equal(t, "t", event.Type)
}

func TestInvalidMessageCarriesSchemaIssues(t *testing.T) {
	_, err := Receive(context.Background(), nil, pushBody(func(_, attrs map[string]any) { delete(attrs, "source") }))

	var validation *schema.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.NotEmpty(t, validation.Issues)
}

func TestReceiveMatchesKeysExactly(t *testing.T) {
	t.Run("differently cased data is ignored", func(t *testing.T) {
		body := []byte(`{"message":{"DATA":"aGk=","messageId":"m1","publishTime":"p","attributes":{"source":"s","type":"t"}}}`)

		event, err := Receive(context.Background(), nil, body)
		require.NoError(t, err)
		assert.Nil(t, event.Data)
		assert.Equal(t, "m1", event.ID)
	})

	t.Run("differently cased keys do not override validated ones", func(t *testing.T) {
		body := []byte(`{"message":{"messageId":"m1","MessageID":"other","publishTime":"p",` +
			`"attributes":{"source":"s","type":"t"},"ATTRIBUTES":{"source":"x","type":"y"}}}`)

		event, err := Receive(context.Background(), nil, body)
		require.NoError(t, err)
		assert.Equal(t, "m1", event.ID)
		assert.Equal(t, "s", event.Source)
		assert.Equal(t, "t", event.Type)
	})

	t.Run("differently cased required keys do not satisfy the schema", func(t *testing.T) {
		body := []byte(`{"message":{"MessageId":"m1","publishTime":"p","attributes":{"source":"s","type":"t"}}}`)

		_, err := Receive(context.Background(), nil, body)
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestReceiveFields(t *testing.T) {
	t.Run("id and time are taken from the message", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(nil))
		require.NoError(t, err)
		assert.Equal(t, testEvent.ID, event.ID)
		assert.Equal(t, testPublishTime, event.Time)
	})

	t.Run("data is left unset when absent", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(func(msg, _ map[string]any) { delete(msg, "data") }))
		require.NoError(t, err)
		assert.Nil(t, event.Data)
	})

	t.Run("spec version is taken from attributes", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(func(_, attrs map[string]any) { attrs["specversion"] = "0.3" }))
		require.NoError(t, err)
		assert.Equal(t, "0.3", event.SpecVersion)
	})

	t.Run("optional attributes are copied when present", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(func(_, attrs map[string]any) {
			attrs["subject"] = "my-subject"
			attrs["datacontenttype"] = "application/json"
			attrs["dataschema"] = "https://example.com/schema"
		}))
		require.NoError(t, err)
		assert.Equal(t, "my-subject", event.Subject)
		assert.Equal(t, "application/json", event.DataContentType)
		assert.Equal(t, "https://example.com/schema", event.DataSchema)
	})

	t.Run("optional attributes are unset when absent", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(nil))
		require.NoError(t, err)
		assert.Empty(t, event.Subject)
		assert.Empty(t, event.DataContentType)
		assert.Empty(t, event.DataSchema)
		assert.Nil(t, event.Extensions)
	})

	t.Run("other attributes become extensions", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(func(_, attrs map[string]any) { attrs["extension"] = "value" }))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"extension": "value"}, event.Extensions)
	})

	t.Run("data attributes are not extensions", func(t *testing.T) {
		event, err := Receive(context.Background(), nil, pushBody(func(_, attrs map[string]any) {
			attrs["data"] = "x"
			attrs["data_base64"] = "eA=="
		}))
		require.NoError(t, err)
		assert.Nil(t, event.Extensions)
		assert.Equal(t, []byte("data"), event.Data)
	})
}

func TestExtensionRoundTrip(t *testing.T) {
	event, err := testEvent.SetExtension("foo", "bar")
	require.NoError(t, err)
	event.Time = testPublishTime

	env, err := EncodeEnvelope(event)
	require.NoError(t, err)

	// A push request carries the publish time as text.
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":        env.Data,
			"messageId":   env.MessageID,
			"publishTime": testPublishTime,
			"attributes":  env.Attributes,
		},
	})
	require.NoError(t, err)

	decoded, err := Receive(context.Background(), nil, body)
	require.NoError(t, err)
	assert.Equal(t, "bar", decoded.Extensions["foo"])
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, []byte("data"), decoded.Data)
	assert.Equal(t, event.DataContentType, decoded.DataContentType)
}
