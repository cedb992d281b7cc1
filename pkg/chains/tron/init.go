package tron

import (
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// Register adds the Tron constructor to registry. opts are applied to every
// wallet it creates, e.g. WithTronWeb for an injected provider.
func Register(registry *chains.Registry, opts ...Option) {
	registry.Register(chains.Tron, func(cfg chains.Config) (chains.Wallet, error) {
		w, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
