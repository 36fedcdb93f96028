// Package transport resolves emitters and receivers by transport name.
//
// A Registry maps names to factory closures. Registering or looking up a
// name never performs I/O: side effects such as building a network client
// happen only inside a factory or the function it returns.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fraser-isbester/cebridge/pkg/types"
)

// EmitterFactory builds an emit function bound to a destination (sink URL or
// topic name).
type EmitterFactory func(ctx context.Context, destination string) (types.EmitFunc, error)

// ReceiverFactory builds a receive function.
type ReceiverFactory func(ctx context.Context) (types.ReceiveFunc, error)

// Direction tells emitters and receivers apart in errors.
type Direction string

const (
	DirectionEmit    Direction = "emitter"
	DirectionReceive Direction = "receiver"
)

// UnsupportedTransportError is returned when no factory is registered under
// the requested name.
type UnsupportedTransportError struct {
	Direction Direction
	Transport string
}

func (e *UnsupportedTransportError) Error() string {
	return fmt.Sprintf("unsupported %s transport (%s)", e.Direction, e.Transport)
}

// Registry holds the emitter and receiver factories.
type Registry struct {
	mu        sync.RWMutex
	emitters  map[string]EmitterFactory
	receivers map[string]ReceiverFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		emitters:  make(map[string]EmitterFactory),
		receivers: make(map[string]ReceiverFactory),
	}
}

// RegisterEmitter adds or replaces the emitter factory for name.
func (r *Registry) RegisterEmitter(name string, factory EmitterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitters[name] = factory
}

// RegisterReceiver adds or replaces the receiver factory for name.
func (r *Registry) RegisterReceiver(name string, factory ReceiverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[name] = factory
}

// ResolveEmitter invokes the emitter factory registered under name. It can be
// called any number of times for the same name.
func (r *Registry) ResolveEmitter(ctx context.Context, name, destination string) (types.EmitFunc, error) {
	r.mu.RLock()
	factory, ok := r.emitters[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedTransportError{Direction: DirectionEmit, Transport: name}
	}
	emit, err := factory(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s emitter: %w", name, err)
	}
	return emit, nil
}

// ResolveReceiver invokes the receiver factory registered under name.
func (r *Registry) ResolveReceiver(ctx context.Context, name string) (types.ReceiveFunc, error) {
	r.mu.RLock()
	factory, ok := r.receivers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedTransportError{Direction: DirectionReceive, Transport: name}
	}
	receive, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s receiver: %w", name, err)
	}
	return receive, nil
}

// Emitters returns the registered emitter names in sorted order.
func (r *Registry) Emitters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.emitters)
}

// Receivers returns the registered receiver names in sorted order.
func (r *Registry) Receivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.receivers)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
