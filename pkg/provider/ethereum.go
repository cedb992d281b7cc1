package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/evm"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// EthereumProvider emulates window.ethereum
type EthereumProvider struct {
	core
}

// NewEthereumProvider creates an EIP-1193 style provider backed by transport
func NewEthereumProvider(transport *bridge.Transport, logger *slog.Logger) *EthereumProvider {
	return &EthereumProvider{core: newCore(chains.EVM, transport, logger)}
}

// Slot implements Provider
func (p *EthereumProvider) Slot() string {
	return SlotEthereum
}

// SelectedAddress returns the active account, empty when none is authorized
func (p *EthereumProvider) SelectedAddress() string {
	return p.state.Snapshot().ActiveAccount()
}

// ChainID returns the 0x-hex chain id, empty when unknown
func (p *EthereumProvider) ChainID() string {
	return p.state.Snapshot().ChainID
}

// forwardable reports whether method may be passed through to the host
func forwardable(method string) bool {
	return strings.HasPrefix(method, "eth_") ||
		strings.HasPrefix(method, "wallet_") ||
		method == constants.MethodPersonalSign
}

// Request serves eth_accounts and a known eth_chainId from local state and forwards
// other eth_*, wallet_* and personal_sign calls to the host
func (p *EthereumProvider) Request(ctx context.Context, args RequestArgs) (json.RawMessage, error) {
	method := strings.TrimSpace(args.Method)

	switch method {
	case constants.MethodEthAccounts:
		accounts := p.state.Snapshot().Accounts
		if accounts == nil {
			accounts = []string{}
		}
		return json.Marshal(accounts)

	case constants.MethodEthChainID:
		if chainID := p.ChainID(); chainID != "" {
			return json.Marshal(chainID)
		}
		chainID, err := p.fetchChainID(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(chainID)

	case constants.MethodEthRequestAccounts:
		raw, err := p.call(ctx, method, args.Params)
		if err != nil {
			return nil, err
		}
		accounts, err := p.applyAccounts(method, raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(accounts)

	case constants.MethodWalletSwitchChain:
		raw, err := p.call(ctx, method, args.Params)
		if err != nil {
			return nil, err
		}
		if chainID, ok := requestedChainID(args.Params); ok {
			p.state.SetChainID(chainID)
		}
		return raw, nil
	}

	if !forwardable(method) {
		return nil, p.unsupported(method)
	}
	return p.call(ctx, method, args.Params)
}

func (p *EthereumProvider) fetchChainID(ctx context.Context) (string, error) {
	raw, err := p.call(ctx, constants.MethodEthChainID, nil)
	if err != nil {
		return "", err
	}
	chainID, err := evm.DecodeChainID(raw)
	if err != nil {
		return "", p.fail(&chains.UnexpectedResponseError{Method: constants.MethodEthChainID, Err: err})
	}
	p.state.SetChainID(chainID)
	return chainID, nil
}

func (p *EthereumProvider) applyAccounts(method string, raw json.RawMessage) ([]string, error) {
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, p.fail(&chains.UnexpectedResponseError{Method: method, Err: err})
	}
	normalized, err := evm.NormalizeAccounts(accounts)
	if err != nil {
		return nil, p.fail(&chains.UnexpectedResponseError{Method: method, Err: err})
	}
	p.state.SetAccounts(normalized)
	return normalized, nil
}

// requestedChainID reads [{chainId}] from wallet_switchEthereumChain params
func requestedChainID(params any) (string, bool) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	var list []struct {
		ChainID string `json:"chainId"`
	}
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return "", false
	}
	chainID, err := evm.NormalizeChainID(list[0].ChainID)
	if err != nil {
		return "", false
	}
	return chainID, true
}

// prime reads the chain id and already authorized accounts without prompting
func (p *EthereumProvider) prime(ctx context.Context) error {
	if _, err := p.fetchChainID(ctx); err != nil {
		return err
	}
	raw, err := p.call(ctx, constants.MethodEthAccounts, nil)
	if err != nil {
		return err
	}
	_, err = p.applyAccounts(constants.MethodEthAccounts, raw)
	return err
}

func (p *EthereumProvider) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.EVM)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(n.Data, &accounts); err != nil {
			p.logger.Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		normalized, err := evm.NormalizeAccounts(accounts)
		if err != nil {
			p.logger.Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		p.state.SetAccounts(normalized)
	case constants.EventChainChanged:
		chainID, err := evm.DecodeChainID(n.Data)
		if err != nil {
			p.logger.Warn("Ignoring malformed chainChanged", "error", err)
			return
		}
		p.state.SetChainID(chainID)
	case constants.EventDisconnect:
		p.state.Reset()
	}
}

func (p *EthereumProvider) scriptState() map[string]any {
	snap := p.state.Snapshot()
	return map[string]any{
		"selectedAddress": orNull(snap.ActiveAccount()),
		"chainId":         orNull(snap.ChainID),
	}
}

func (p *EthereumProvider) eventPayload(ev state.Event) any {
	switch ev.Name {
	case constants.EventConnect:
		return map[string]any{"chainId": orNull(p.ChainID())}
	case constants.EventDisconnect:
		return map[string]any{"code": 4900, "message": "disconnected"}
	}
	return ev.Value
}
