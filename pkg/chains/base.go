package chains

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// Base carries the behaviour shared by every adapter. Adapters embed it.
type Base struct {
	tag       ChainTag
	transport *bridge.Transport
	state     *state.WalletState
	logger    *slog.Logger
	debug     bool
}

// NewBase creates the shared part of an adapter for tag
func NewBase(tag ChainTag, cfg Config) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("chain", string(tag))
	return &Base{
		tag:       tag,
		transport: cfg.Transport,
		state:     state.New(string(tag), cfg.ChainID, logger),
		logger:    logger,
		debug:     cfg.Debug,
	}
}

// ChainTag implements Wallet
func (b *Base) ChainTag() ChainTag {
	return b.tag
}

// Logger returns the adapter logger
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Transport returns the shared bridge transport, which may be nil
func (b *Base) Transport() *bridge.Transport {
	return b.transport
}

// Store returns the underlying wallet state
func (b *Base) Store() *state.WalletState {
	return b.state
}

// State implements Wallet
func (b *Base) State() state.Snapshot {
	return b.state.Snapshot()
}

// Connected implements Wallet
func (b *Base) Connected() bool {
	return b.state.Snapshot().Connected
}

// PublicKey implements Wallet
func (b *Base) PublicKey() (string, error) {
	return b.RequireConnected()
}

// On implements Wallet
func (b *Base) On(event string, h state.Handler) state.ListenerID {
	return b.state.On(event, h)
}

// RemoveListener implements Wallet
func (b *Base) RemoveListener(event string, id state.ListenerID) bool {
	return b.state.RemoveListener(event, id)
}

// RequireConnected returns the active account or ErrNotConnected. It never touches state.
func (b *Base) RequireConnected() (string, error) {
	snap := b.state.Snapshot()
	if !snap.Connected {
		return "", ErrNotConnected
	}
	return snap.ActiveAccount(), nil
}

// Call is the single entry point for host calls. The raw payload is decoded
// into out when out is not nil. Failures are recorded as the last error;
// a success clears a previously recorded one.
func (b *Base) Call(ctx context.Context, method string, params any, out any) error {
	if b.transport == nil {
		return b.Record(bridge.ErrBridgeUnavailable)
	}

	if b.debug {
		b.logger.Info("Calling wallet host", "method", method)
	}

	raw, err := b.transport.Call(ctx, method, params)
	if err != nil {
		b.logger.Warn("Wallet host call failed", "method", method, "error", err)
		return b.Record(err)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return b.Record(&UnexpectedResponseError{Method: method, Err: err})
		}
	}

	b.state.RecordError(nil)
	return nil
}

// Record stores err as the last error and returns it. A nil err clears the last error.
func (b *Base) Record(err error) error {
	b.state.RecordError(err)
	return err
}

// SetAccounts replaces the authorized accounts
func (b *Base) SetAccounts(accounts []string) {
	b.state.SetAccounts(accounts)
}

// SetChainID replaces the active chain id
func (b *Base) SetChainID(chainID string) {
	b.state.SetChainID(chainID)
}

// Reset clears the connection locally
func (b *Base) Reset() {
	b.state.Reset()
}

// RequireNonEmpty fails with InvalidParamsError when value is blank
func RequireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &InvalidParamsError{Field: field, Reason: "must not be empty"}
	}
	return nil
}

// RequirePositive fails with InvalidParamsError unless amount > 0
func RequirePositive(field string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return &InvalidParamsError{Field: field, Reason: "must be greater than zero"}
	}
	return nil
}

// RequireTx fails with InvalidParamsError when tx is nil
func RequireTx(tx *TxRequest) error {
	if tx == nil {
		return &InvalidParamsError{Field: "transaction", Reason: "is required"}
	}
	return nil
}
