package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fraser-isbester/cebridge/internal/metrics"
	"github.com/fraser-isbester/cebridge/pkg/types"
)

// DataSource feeds events into a Forwarder. Start must return once the
// source is running; Stop must guarantee nothing more is sent on the channel,
// which the Forwarder closes right after stopping its sources.
type DataSource interface {
	Start(ctx context.Context, eventChan chan<- *types.Event) error
	Stop() error
	Name() string
}

type ForwarderConfig struct {
	// Transport names the emitter, for logs and metrics.
	Transport  string
	BufferSize int
}

func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		BufferSize: 1000,
	}
}

// Forwarder reads events from its sources and hands each one to an emit
// function. A failed emit is logged and counted; it is not retried.
type Forwarder struct {
	config    ForwarderConfig
	emit      types.EmitFunc
	logger    *zap.Logger
	metrics   *metrics.Metrics
	sources   []DataSource
	eventChan chan *types.Event
	done      chan struct{}
	started   atomic.Bool
	stopOnce  sync.Once
}

func NewForwarder(config ForwarderConfig, emit types.EmitFunc, logger *zap.Logger, m *metrics.Metrics) *Forwarder {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultForwarderConfig().BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		config:    config,
		emit:      emit,
		logger:    logger.With(zap.String("transport", config.Transport)),
		metrics:   m,
		eventChan: make(chan *types.Event, config.BufferSize),
		done:      make(chan struct{}),
	}
}

func (f *Forwarder) Name() string {
	return "forwarder"
}

func (f *Forwarder) RegisterSource(src DataSource) {
	f.sources = append(f.sources, src)
}

func (f *Forwarder) EventChannel() chan<- *types.Event {
	return f.eventChan
}

func (f *Forwarder) Start(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return errors.New("forwarder already started")
	}
	f.logger.Info("Starting forwarder", zap.Int("sources", len(f.sources)))
	go f.processEvents(ctx)

	for _, src := range f.sources {
		if err := src.Start(ctx, f.eventChan); err != nil {
			return fmt.Errorf("failed to start source %s: %w", src.Name(), err)
		}
		f.logger.Info("Started source", zap.String("source", src.Name()))
	}
	return nil
}

func (f *Forwarder) processEvents(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case event, ok := <-f.eventChan:
			if !ok {
				f.logger.Info("Event channel closed, stopping forwarder")
				return
			}
			if event == nil {
				f.logger.Warn("Received nil event, skipping")
				continue
			}
			f.forward(ctx, *event)
		case <-ctx.Done():
			f.logger.Info("Context cancelled, stopping forwarder")
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, event types.Event) {
	err := f.emit(ctx, event)
	f.metrics.ObserveEmitted(f.config.Transport, err)
	if err != nil {
		f.logger.Error("Error emitting event", zap.String("id", event.ID), zap.Error(err))
		return
	}
	f.logger.Debug("Emitted event", zap.String("id", event.ID), zap.String("type", event.Type))
}

// Stop shuts down the sources in reverse order, then drains the loop.
func (f *Forwarder) Stop() error {
	var errs []error
	f.stopOnce.Do(func() {
		f.logger.Info("Stopping forwarder")
		for i := len(f.sources) - 1; i >= 0; i-- {
			if err := f.sources[i].Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop source %s: %w", f.sources[i].Name(), err))
			}
		}
		close(f.eventChan)
		if f.started.Load() {
			<-f.done
		}
	})
	return errors.Join(errs...)
}
