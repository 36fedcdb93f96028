package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fraser-isbester/cebridge/internal/metrics"
	"github.com/fraser-isbester/cebridge/pkg/types"
)

// WebhookConfig holds configuration for the push endpoint
type WebhookConfig struct {
	Port int
	// Path the receiver handler is mounted on.
	Path         string
	MaxBodyBytes int64
}

func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Port:         8080,
		Path:         "/",
		MaxBodyBytes: 10 << 20,
	}
}

// WebhookSource accepts events pushed over HTTP and parses them with a
// transport receive function.
type WebhookSource struct {
	config   WebhookConfig
	receive  types.ReceiveFunc
	logger   *zap.Logger
	metrics  *metrics.Metrics
	handlers map[string]http.Handler
	server   *http.Server
	listener net.Listener

	// mu guards stopped. Handlers still running after a timed-out Shutdown
	// must not send once the forwarder has closed its channel.
	mu      sync.RWMutex
	stopped bool
}

func NewWebhookSource(config WebhookConfig, receive types.ReceiveFunc, logger *zap.Logger, m *metrics.Metrics) *WebhookSource {
	if config.Path == "" {
		config.Path = "/"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultWebhookConfig().MaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSource{
		config:   config,
		receive:  receive,
		logger:   logger.With(zap.String("source", "webhook")),
		metrics:  m,
		handlers: make(map[string]http.Handler),
	}
}

// AddHandler mounts an additional handler, such as a metrics endpoint.
func (ws *WebhookSource) AddHandler(path string, handler http.Handler) {
	ws.logger.Debug("Adding handler", zap.String("path", path))
	ws.handlers[path] = handler
}

func (ws *WebhookSource) Name() string {
	return "webhook"
}

// Start begins listening. It returns once the listener is bound.
func (ws *WebhookSource) Start(_ context.Context, eventChan chan<- *types.Event) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for path, handler := range ws.handlers {
		mux.Handle(path, handler)
	}
	mux.Handle(ws.config.Path, ws.ReceiverHandler(eventChan))

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", ws.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", ws.config.Port, err)
	}
	ws.listener = listener
	ws.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ws.logger.Info("Starting webhook server", zap.String("addr", listener.Addr().String()))
		if err := ws.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Error("Webhook server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (ws *WebhookSource) Addr() string {
	if ws.listener == nil {
		return ""
	}
	return ws.listener.Addr().String()
}

// ReceiverHandler parses each request into an event and queues it without
// blocking. A full queue is reported as 503 so the sender retries.
func (ws *WebhookSource) ReceiverHandler(eventChan chan<- *types.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ws.config.MaxBodyBytes))
		if err != nil {
			ws.metrics.ObserveReceived(ws.Name(), metrics.OutcomeError)
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		event, err := ws.receive(r.Context(), r.Header, body)
		if err != nil {
			ws.logger.Warn("Rejected request", zap.Error(err))
			ws.metrics.ObserveReceived(ws.Name(), metrics.OutcomeError)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !ws.enqueue(eventChan, &event) {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (ws *WebhookSource) enqueue(eventChan chan<- *types.Event, event *types.Event) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.stopped {
		ws.logger.Warn("Webhook stopped, rejecting event", zap.String("id", event.ID))
		ws.metrics.ObserveReceived(ws.Name(), metrics.OutcomeDropped)
		return false
	}

	select {
	case eventChan <- event:
		ws.metrics.ObserveReceived(ws.Name(), metrics.OutcomeSuccess)
		return true
	default:
		ws.logger.Warn("Event channel full, rejecting event", zap.String("id", event.ID))
		ws.metrics.ObserveReceived(ws.Name(), metrics.OutcomeDropped)
		return false
	}
}

// Stop shuts the server down. No event is sent after Stop returns, even when
// in-flight requests outlive the shutdown timeout.
func (ws *WebhookSource) Stop() error {
	ws.mu.Lock()
	ws.stopped = true
	ws.mu.Unlock()

	if ws.server != nil {
		ws.logger.Info("Stopping webhook server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(ctx)
	}
	return nil
}
