package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type GoogleConfig struct {
	// Empty ProjectID lets the client detect the project from the environment.
	ProjectID     string
	BatchSize     int
	BatchBytes    int
	BatchTimeout  time.Duration
	ClientOptions []option.ClientOption
}

func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		BatchSize:    100,
		BatchBytes:   1000000, // 1MB
		BatchTimeout: 100 * time.Millisecond,
	}
}

// GooglePublisher publishes envelopes with the Google Cloud Pub/Sub client.
// The client is created on the first Publish call and shared by every topic.
type GooglePublisher struct {
	config GoogleConfig

	mu     sync.Mutex
	client *pubsub.Client
	topics map[string]*pubsub.Topic
}

func NewGooglePublisher(config GoogleConfig) *GooglePublisher {
	return &GooglePublisher{
		config: config,
		topics: make(map[string]*pubsub.Topic),
	}
}

// Started reports whether the underlying client has been created.
func (p *GooglePublisher) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

func (p *GooglePublisher) topic(name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		projectID := p.config.ProjectID
		if projectID == "" {
			projectID = pubsub.DetectProjectID
		}
		// The client outlives the request that triggered its creation.
		client, err := pubsub.NewClient(context.Background(), projectID, p.config.ClientOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		p.client = client
	}

	if t, ok := p.topics[name]; ok {
		return t, nil
	}

	t := p.client.Topic(name)
	settings := pubsub.DefaultPublishSettings
	if p.config.BatchSize > 0 {
		settings.CountThreshold = p.config.BatchSize
	}
	if p.config.BatchBytes > 0 {
		settings.ByteThreshold = p.config.BatchBytes
	}
	if p.config.BatchTimeout > 0 {
		settings.DelayThreshold = p.config.BatchTimeout
	}
	t.PublishSettings = settings
	p.topics[name] = t
	return t, nil
}

// Publish sends the envelope and waits for the server to acknowledge it.
// Message ID and publish time are assigned by the server.
func (p *GooglePublisher) Publish(ctx context.Context, topic string, envelope Envelope) error {
	t, err := p.topic(topic)
	if err != nil {
		return err
	}

	result := t.Publish(ctx, &pubsub.Message{
		Data:       envelope.Data,
		Attributes: envelope.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return err
	}
	return nil
}

// Close flushes pending messages and releases the client. It is a no-op if
// nothing was ever published.
func (p *GooglePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	if err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
