// Package factory creates chain adapters from a construction config.
package factory

import (
	"log/slog"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/evm"
	"github.com/sigweihq/walletbridge/pkg/chains/svm"
	"github.com/sigweihq/walletbridge/pkg/chains/tron"
)

// Factory dispatches construction configs to the constructor registered for their chain.
// It keeps no reference to the wallets it creates.
type Factory struct {
	registry *chains.Registry
	logger   *slog.Logger
}

// Option configures a Factory
type Option func(*Factory)

// WithRegistry uses registry instead of one populated with the built-in chains
func WithRegistry(registry *chains.Registry) Option {
	return func(f *Factory) {
		f.registry = registry
	}
}

// WithLogger sets the logger handed to wallets whose config has none
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

var (
	defaultFactory     *Factory
	defaultFactoryOnce sync.Once
)

// RegisterAll adds the EVM, Solana and Tron constructors to registry
func RegisterAll(registry *chains.Registry) {
	evm.Register(registry)
	svm.Register(registry)
	tron.Register(registry)
}

// New creates a factory
func New(opts ...Option) *Factory {
	f := &Factory{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	if f.registry == nil {
		f.registry = chains.NewRegistry()
		RegisterAll(f.registry)
	}
	return f
}

// Default returns the process-wide factory backed by the global registry
func Default() *Factory {
	defaultFactoryOnce.Do(func() {
		registry := chains.InitGlobalRegistry()
		RegisterAll(registry)
		defaultFactory = New(WithRegistry(registry))
	})
	return defaultFactory
}

// Create builds a wallet with the default factory
func Create(cfg chains.Config) (chains.Wallet, error) {
	return Default().Create(cfg)
}

// Create normalizes cfg.ChainType and builds a fresh wallet for it
func (f *Factory) Create(cfg chains.Config) (chains.Wallet, error) {
	tag, err := chains.ParseChainTag(cfg.ChainType)
	if err != nil {
		return nil, err
	}
	cfg.ChainType = tag.String()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = f.logger
	}

	constructor, err := f.registry.Get(tag)
	if err != nil {
		return nil, err
	}
	wallet, err := constructor(cfg)
	if err != nil {
		f.logger.Warn("Failed to create wallet", "chain", tag.String(), "chainId", cfg.ChainID, "error", err)
		return nil, err
	}

	f.logger.Debug("Created wallet", "chain", tag.String(), "chainId", cfg.ChainID)
	return wallet, nil
}

// Supported returns the chain tags this factory can create
func (f *Factory) Supported() []chains.ChainTag {
	return f.registry.Supported()
}
