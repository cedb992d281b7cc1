package svm

import (
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// Register adds the Solana constructor to registry using official cluster endpoints
func Register(registry *chains.Registry) {
	RegisterWithEndpoints(registry, nil)
}

// RegisterWithEndpoints adds a Solana constructor that reads clusters through the
// given endpoints, including after a network switch. A cluster with no endpoints
// falls back to its official endpoint; an explicit rpcUrl in the config wins over
// both for the configured cluster.
func RegisterWithEndpoints(registry *chains.Registry, endpoints map[string][]string) {
	registry.Register(chains.Solana, func(cfg chains.Config) (chains.Wallet, error) {
		w, err := New(cfg, WithEndpoints(endpoints))
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
