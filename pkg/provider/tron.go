package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/tron"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// TronProvider emulates window.tronWeb. It also satisfies tron.TronWeb, so a
// tron.Wallet can run in injected mode on top of it.
type TronProvider struct {
	core
}

var _ tron.TronWeb = (*TronProvider)(nil)

// NewTronProvider creates a TronLink style provider backed by transport
func NewTronProvider(transport *bridge.Transport, logger *slog.Logger) *TronProvider {
	return &TronProvider{core: newCore(chains.Tron, transport, logger)}
}

// Slot implements Provider
func (p *TronProvider) Slot() string {
	return SlotTronWeb
}

// DefaultAddress returns the authorized account, false while locked
func (p *TronProvider) DefaultAddress() (tron.Address, bool) {
	active := p.state.Snapshot().ActiveAccount()
	if active == "" {
		return tron.Address{}, false
	}
	addr, err := tron.ParseAddress(active)
	if err != nil {
		return tron.Address{}, false
	}
	return addr, true
}

// Request forwards tron_* methods to the host. tron_requestAccounts also updates
// the default address.
func (p *TronProvider) Request(ctx context.Context, args RequestArgs) (json.RawMessage, error) {
	method := strings.TrimSpace(args.Method)
	if !strings.HasPrefix(method, "tron_") {
		return nil, p.unsupported(method)
	}

	raw, err := p.call(ctx, method, args.Params)
	if err != nil {
		return nil, err
	}
	if method == constants.MethodTronRequestAccounts {
		accounts, err := tron.DecodeAddresses(raw)
		if err != nil {
			return nil, p.fail(&chains.UnexpectedResponseError{Method: method, Err: err})
		}
		p.state.SetAccounts(accounts)
	}
	return raw, nil
}

// GetBalance returns the balance of address in sun
func (p *TronProvider) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	raw, err := p.Request(ctx, RequestArgs{Method: constants.MethodTronGetBalance, Params: map[string]string{"address": address}})
	if err != nil {
		return nil, err
	}
	sun, err := tron.DecodeSun(raw)
	if err != nil {
		return nil, p.fail(&chains.UnexpectedResponseError{Method: constants.MethodTronGetBalance, Err: err})
	}
	return sun, nil
}

// SendTransaction transfers amount sun from the default address to to
func (p *TronProvider) SendTransaction(ctx context.Context, to string, amount *big.Int) (string, error) {
	from, ok := p.DefaultAddress()
	if !ok {
		return "", chains.ErrNotConnected
	}
	if err := chains.RequirePositive("amount", amount); err != nil {
		return "", err
	}

	params := map[string]string{"from": from.Base58, "to": to, "amount": amount.String()}
	raw, err := p.Request(ctx, RequestArgs{Method: constants.MethodTronSendTransaction, Params: params})
	if err != nil {
		return "", err
	}
	txID, err := tron.DecodeTxID(raw)
	if err != nil {
		return "", p.fail(&chains.UnexpectedResponseError{Method: constants.MethodTronSendTransaction, Err: err})
	}
	return txID, nil
}

func (p *TronProvider) prime(ctx context.Context) error {
	_, err := p.Request(ctx, RequestArgs{Method: constants.MethodTronRequestAccounts})
	return err
}

func (p *TronProvider) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.Tron)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		accounts, err := tron.DecodeAddresses(n.Data)
		if err != nil {
			p.logger.Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		p.state.SetAccounts(accounts)
	case constants.EventChainChanged:
		var network string
		if err := json.Unmarshal(n.Data, &network); err != nil || network == "" {
			p.logger.Warn("Ignoring malformed chainChanged", "data", string(n.Data))
			return
		}
		p.state.SetChainID(network)
	case constants.EventDisconnect:
		p.state.Reset()
	}
}

// addressValue renders an address the way TronLink does: false fields while locked
func addressValue(addr tron.Address, ok bool) map[string]any {
	if !ok {
		return map[string]any{"base58": false, "hex": false}
	}
	return map[string]any{"base58": addr.Base58, "hex": addr.Hex}
}

func (p *TronProvider) scriptState() map[string]any {
	addr, ok := p.DefaultAddress()
	return map[string]any{
		"ready":          ok,
		"defaultAddress": addressValue(addr, ok),
	}
}

func (p *TronProvider) eventPayload(ev state.Event) any {
	if ev.Name == constants.EventAccountsChanged {
		return addressValue(p.DefaultAddress())
	}
	return ev.Value
}
