package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// Injector builds providers on a shared transport and publishes them
type Injector struct {
	transport  *bridge.Transport
	registry   *Registry
	publishers []Publisher
	logger     *slog.Logger

	mu    sync.Mutex
	stops []func()
}

// Option configures an Injector
type Option func(*Injector)

// WithPublisher adds publishers called for every injected provider
func WithPublisher(p ...Publisher) Option {
	return func(i *Injector) {
		i.publishers = append(i.publishers, p...)
	}
}

// WithRegistry publishes into registry instead of a fresh one
func WithRegistry(r *Registry) Option {
	return func(i *Injector) {
		i.registry = r
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(i *Injector) {
		i.logger = logger
	}
}

// NewInjector creates an injector for transport
func NewInjector(transport *bridge.Transport, opts ...Option) *Injector {
	i := &Injector{transport: transport, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	if i.registry == nil {
		i.registry = NewRegistry()
	}
	return i
}

// Registry returns the registry providers are stored in
func (i *Injector) Registry() *Registry {
	return i.registry
}

func (i *Injector) build(tag chains.ChainTag) (Provider, error) {
	switch tag {
	case chains.EVM:
		return NewEthereumProvider(i.transport, i.logger), nil
	case chains.Solana:
		return NewSolanaProvider(i.transport, i.logger), nil
	case chains.Tron:
		return NewTronProvider(i.transport, i.logger), nil
	}
	return nil, &chains.UnsupportedChainError{ChainType: string(tag)}
}

// Inject creates a provider per tag (all chains when none are given), publishes
// it and primes it from the host. Publishers see priming as connect,
// accountsChanged and chainChanged events. Priming is best effort: a host that
// has not authorized the page yet leaves the provider disconnected.
func (i *Injector) Inject(ctx context.Context, tags ...chains.ChainTag) error {
	if i.transport == nil {
		return bridge.ErrBridgeUnavailable
	}
	if len(tags) == 0 {
		tags = []chains.ChainTag{chains.EVM, chains.Solana, chains.Tron}
	}

	for _, tag := range tags {
		p, err := i.build(tag)
		if err != nil {
			return err
		}

		stop := i.transport.OnNotification(p.handleNotification)
		i.mu.Lock()
		i.stops = append(i.stops, stop)
		i.mu.Unlock()

		i.registry.Set(p)
		for _, pub := range i.publishers {
			if err := pub.Publish(p); err != nil {
				return fmt.Errorf("failed to publish %s: %w", p.Slot(), err)
			}
		}

		if err := p.prime(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.Info("Provider starts disconnected", "slot", p.Slot(), "error", err)
		}
		i.logger.Debug("Provider injected", "slot", p.Slot(), "connected", p.IsConnected())
	}
	return nil
}

// Close detaches every injected provider from host notifications
func (i *Injector) Close() {
	i.mu.Lock()
	stops := i.stops
	i.stops = nil
	i.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
