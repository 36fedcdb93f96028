package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() Event {
	return Event{
		ID:              "the id",
		Source:          "https://example.com",
		Type:            "com.example",
		SpecVersion:     "1.0",
		DataContentType: "application/vnd.example",
		Data:            []byte("data"),
	}
}

func TestEventValidate(t *testing.T) {
	require.NoError(t, testEvent().Validate())

	for _, tc := range []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"missing source", func(e *Event) { e.Source = "" }},
		{"missing type", func(e *Event) { e.Type = "" }},
		{"reserved extension", func(e *Event) { e.Extensions = map[string]any{"subject": "x"} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := testEvent()
			tc.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestSetExtension(t *testing.T) {
	original := testEvent()

	updated, err := original.SetExtension("foo", "bar")
	require.NoError(t, err)
	assert.Equal(t, "bar", updated.Extensions["foo"])
	assert.Nil(t, original.Extensions, "original event must not be mutated")

	_, err = original.SetExtension("data_base64", "x")
	assert.ErrorContains(t, err, "reserved")
}

func TestDataBytes(t *testing.T) {
	e := testEvent()

	b, err := e.DataBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), b)

	e.Data = "text"
	b, err = e.DataBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("text"), b)

	e.Data = map[string]string{"foo": "bar"}
	b, err = e.DataBytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"foo":"bar"}`, string(b))

	e.Data = nil
	b, err = e.DataBytes()
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestParsedTime(t *testing.T) {
	e := testEvent()

	_, ok, err := e.ParsedTime()
	require.NoError(t, err)
	assert.False(t, ok)

	e.Time = "2024-01-01T00:00:00.5Z"
	parsed, ok, err := e.ParsedTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC).Equal(parsed))

	e.Time = "yesterday"
	_, _, err = e.ParsedTime()
	assert.Error(t, err)
}

func TestCloudEventConversion(t *testing.T) {
	e := testEvent()
	e.Subject = "subject"
	e.Time = "2024-01-01T00:00:00Z"
	e.DataSchema = "https://example.com/schema"
	e, err := e.SetExtension("foo", "bar")
	require.NoError(t, err)

	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "the id", ce.ID())
	assert.Equal(t, "subject", ce.Subject())
	assert.Equal(t, []byte("data"), ce.Data())
	assert.Equal(t, "bar", ce.Extensions()["foo"])

	back := FromCloudEvent(ce)
	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.Source, back.Source)
	assert.Equal(t, e.Type, back.Type)
	assert.Equal(t, e.SpecVersion, back.SpecVersion)
	assert.Equal(t, e.Subject, back.Subject)
	assert.Equal(t, e.Time, back.Time)
	assert.Equal(t, e.DataContentType, back.DataContentType)
	assert.Equal(t, e.DataSchema, back.DataSchema)
	assert.Equal(t, []byte("data"), back.Data)
	assert.Equal(t, "bar", back.Extensions["foo"])
}

func TestEventValidateAllowsMissingSpecVersion(t *testing.T) {
	e := testEvent()
	e.SpecVersion = ""
	assert.NoError(t, e.Validate())
}

func TestToCloudEventDefaultsSpecVersion(t *testing.T) {
	e := testEvent()
	e.SpecVersion = ""

	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, DefaultSpecVersion, ce.SpecVersion())
}

func TestToCloudEventRejectsInvalidEvent(t *testing.T) {
	e := testEvent()
	e.Source = ""

	_, err := e.ToCloudEvent()
	assert.Error(t, err)
}
