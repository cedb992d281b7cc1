package evm

import (
	"context"
	"errors"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

// ChainParams are the wallet_addEthereumChain parameters
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// SwitchChain asks the wallet to switch to chainID. When the wallet does not know
// the chain, the error matches ErrUnrecognizedChain and AddChain may be used.
func (w *Wallet) SwitchChain(ctx context.Context, chainID string) error {
	hexID, err := NormalizeChainID(chainID)
	if err != nil {
		return err
	}

	params := []any{map[string]string{"chainId": hexID}}
	if err := w.Call(ctx, constants.MethodWalletSwitchChain, params, nil); err != nil {
		var hostErr *bridge.HostError
		if errors.As(err, &hostErr) && hostErr.Code == constants.UnrecognizedChainCode {
			return &UnrecognizedChainError{ChainID: hexID, Err: err}
		}
		return err
	}

	w.SetChainID(hexID)
	return nil
}

// AddChain registers a chain with the wallet. Wallets switch to the added chain.
func (w *Wallet) AddChain(ctx context.Context, params ChainParams) error {
	hexID, err := NormalizeChainID(params.ChainID)
	if err != nil {
		return err
	}
	params.ChainID = hexID

	if len(params.RPCURLs) == 0 {
		return &chains.InvalidParamsError{Field: "rpcUrls", Reason: "at least one RPC URL is required"}
	}
	for _, u := range params.RPCURLs {
		if err := utils.ValidateRPCURL(u); err != nil {
			return &chains.InvalidParamsError{Field: "rpcUrls", Reason: err.Error()}
		}
	}
	if params.ChainName == "" {
		params.ChainName = constants.DefaultChainName
	}
	if params.NativeCurrency.Symbol == "" {
		params.NativeCurrency = NativeCurrency{
			Name:     constants.DefaultCurrencyName,
			Symbol:   constants.DefaultCurrencySymbol,
			Decimals: constants.EVMDecimals,
		}
	}
	if params.BlockExplorerURLs == nil {
		params.BlockExplorerURLs = []string{}
	}

	if err := w.Call(ctx, constants.MethodWalletAddChain, []any{params}, nil); err != nil {
		return err
	}

	w.SetChainID(hexID)
	w.Logger().Info("Added chain to wallet", "chainId", hexID, "name", params.ChainName)
	return nil
}

// SwitchOrAddChain switches to chainID, adding the chain first when the wallet
// does not know it. Adding needs an RPC URL from the config or the metadata provider.
func (w *Wallet) SwitchOrAddChain(ctx context.Context, chainID string) error {
	err := w.SwitchChain(ctx, chainID)
	if err == nil || !errors.Is(err, ErrUnrecognizedChain) {
		return err
	}

	params, ok := w.chainParams(ctx, chainID)
	if !ok {
		return err
	}
	return w.AddChain(ctx, params)
}

// chainParams builds add-chain parameters from the configured RPC URL and known metadata
func (w *Wallet) chainParams(ctx context.Context, chainID string) (ChainParams, bool) {
	id, err := ParseChainID(chainID)
	if err != nil {
		return ChainParams{}, false
	}
	hexID, _ := NormalizeChainID(chainID)

	var meta *ChainMetadata
	if w.metadata != nil && id.IsInt64() {
		meta, _ = w.metadata.Lookup(ctx, id.Int64())
	}

	var rpcURLs []string
	switch {
	case w.rpcURL != "":
		rpcURLs = []string{w.rpcURL}
	case meta != nil && len(meta.RPCURLs) > 0:
		rpcURLs = meta.RPCURLs
	default:
		return ChainParams{}, false
	}

	params := defaultChainParams(hexID, rpcURLs)
	if meta != nil {
		if meta.Name != "" {
			params.ChainName = meta.Name
		}
		if meta.Currency.Symbol != "" {
			params.NativeCurrency = meta.Currency
		}
		if len(meta.Explorers) > 0 {
			params.BlockExplorerURLs = meta.Explorers
		}
	}
	return params, true
}
