package evm

import (
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// Register adds the EVM constructor to registry
func Register(registry *chains.Registry) {
	RegisterWithMetadata(registry, nil)
}

// RegisterWithMetadata adds an EVM constructor whose wallets look up
// add-chain metadata through provider
func RegisterWithMetadata(registry *chains.Registry, provider MetadataProvider) {
	registry.Register(chains.EVM, func(cfg chains.Config) (chains.Wallet, error) {
		var opts []Option
		if provider != nil {
			opts = append(opts, WithMetadataProvider(provider))
		}
		w, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
