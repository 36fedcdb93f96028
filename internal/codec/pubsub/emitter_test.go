package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	topic    string
	envelope Envelope
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, envelope Envelope) error {
	f.calls = append(f.calls, publishCall{topic: topic, envelope: envelope})
	return f.err
}

const testTopic = "the-topic"

func TestNewEmitterValidatesArguments(t *testing.T) {
	_, err := NewEmitter(nil, testTopic)
	assert.Error(t, err)

	_, err = NewEmitter(&fakePublisher{}, "")
	assert.Error(t, err)
}

func TestEmitPublishesEnvelopeToTopic(t *testing.T) {
	pub := &fakePublisher{}
	emit, err := NewEmitter(pub, testTopic)
	require.NoError(t, err)

	require.NoError(t, emit(context.Background(), testEvent))

	require.Len(t, pub.calls, 1)
	assert.Equal(t, testTopic, pub.calls[0].topic)

	expected, err := EncodeEnvelope(testEvent)
	require.NoError(t, err)
	assert.Equal(t, expected, pub.calls[0].envelope)
}

func TestEmitWrapsPublishErrors(t *testing.T) {
	cause := errors.New("publish error")
	pub := &fakePublisher{err: cause}
	emit, err := NewEmitter(pub, testTopic)
	require.NoError(t, err)

	err = emit(context.Background(), testEvent)
	require.Error(t, err)

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, testTopic, publishErr.Topic)
	assert.Same(t, cause, publishErr.Err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `"the-topic"`)
	assert.Len(t, pub.calls, 1, "publish must be attempted exactly once")
}

func TestEmitDoesNotPublishUnencodableEvents(t *testing.T) {
	pub := &fakePublisher{}
	emit, err := NewEmitter(pub, testTopic)
	require.NoError(t, err)

	event := testEvent
	event.Time = "not a time"

	assert.Error(t, emit(context.Background(), event))
	assert.Empty(t, pub.calls)
}
