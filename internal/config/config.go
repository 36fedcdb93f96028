// Package config loads the bridge configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/fraser-isbester/cebridge/internal/codec/cebinary"
	"github.com/fraser-isbester/cebridge/internal/codec/pubsub"
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// Transport names as registered in the transport registry.
	Receiver string `env:"CE_RECEIVER" envDefault:"ce-http-binary"`
	Emitter  string `env:"CE_EMITTER" envDefault:"google-pubsub"`

	// Sink is the destination of the ce-http-binary emitter.
	Sink string `env:"K_SINK"`
	// Topic is the destination of the google-pubsub emitter.
	Topic     string `env:"CE_GPUBSUB_TOPIC"`
	ProjectID string `env:"GOOGLE_CLOUD_PROJECT"`

	BatchSize    int           `env:"PUBSUB_BATCH_SIZE" envDefault:"100"`
	BatchBytes   int           `env:"PUBSUB_BATCH_BYTES" envDefault:"1000000"`
	BatchTimeout time.Duration `env:"PUBSUB_BATCH_TIMEOUT" envDefault:"100ms"`

	KubeEvents bool   `env:"KUBE_EVENTS" envDefault:"false"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads a .env file when one exists, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environment map[string]string) (Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Destination returns the sink or topic for the configured emitter.
func (c Config) Destination() (string, error) {
	switch c.Emitter {
	case cebinary.TransportName:
		if c.Sink == "" {
			return "", errors.New("K_SINK is required for the ce-http-binary emitter")
		}
		u, err := url.Parse(c.Sink)
		if err != nil || !u.IsAbs() {
			return "", fmt.Errorf("K_SINK must be an absolute URL, got %q", c.Sink)
		}
		return c.Sink, nil
	case pubsub.TransportName:
		if c.Topic == "" {
			return "", errors.New("CE_GPUBSUB_TOPIC is required for the google-pubsub emitter")
		}
		return c.Topic, nil
	default:
		// Unknown emitters are reported by the transport registry.
		return "", nil
	}
}

// PubSub returns the Google Pub/Sub client settings.
func (c Config) PubSub() pubsub.GoogleConfig {
	return pubsub.GoogleConfig{
		ProjectID:    c.ProjectID,
		BatchSize:    c.BatchSize,
		BatchBytes:   c.BatchBytes,
		BatchTimeout: c.BatchTimeout,
	}
}
