// Package provider emulates the browser wallet-provider globals (window.ethereum,
// window.solana, window.tronWeb) on top of a bridge transport, so pages written
// against real extensions run unmodified inside an embedding host.
package provider

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// Conventional global slots
const (
	SlotEthereum = "ethereum"
	SlotSolana   = "solana"
	SlotTronWeb  = "tronWeb"
)

// RequestArgs is the argument of an EIP-1193 style request
type RequestArgs struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Provider is an emulated wallet provider published under a global slot
type Provider interface {
	// Slot is the global name the provider is published under
	Slot() string
	ChainTag() chains.ChainTag
	IsConnected() bool
	State() state.Snapshot
	On(event string, h state.Handler) state.ListenerID
	RemoveListener(event string, id state.ListenerID) bool

	prime(ctx context.Context) error
	handleNotification(n bridge.Notification)
	scriptState() map[string]any
	eventPayload(ev state.Event) any
}

// core is the part shared by every provider
type core struct {
	tag       chains.ChainTag
	transport *bridge.Transport
	state     *state.WalletState
	logger    *slog.Logger
}

func newCore(tag chains.ChainTag, transport *bridge.Transport, logger *slog.Logger) core {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", string(tag))
	return core{
		tag:       tag,
		transport: transport,
		state:     state.New(string(tag), "", logger),
		logger:    logger,
	}
}

// ChainTag returns the chain family the provider serves
func (c *core) ChainTag() chains.ChainTag {
	return c.tag
}

// IsConnected reports whether an account is authorized
func (c *core) IsConnected() bool {
	return c.state.Snapshot().Connected
}

// State returns a snapshot of the provider state
func (c *core) State() state.Snapshot {
	return c.state.Snapshot()
}

// On registers a change listener
func (c *core) On(event string, h state.Handler) state.ListenerID {
	return c.state.On(event, h)
}

// RemoveListener removes a listener registered with On
func (c *core) RemoveListener(event string, id state.ListenerID) bool {
	return c.state.RemoveListener(event, id)
}

// call forwards method to the host and records the outcome as the last error
func (c *core) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.transport == nil {
		c.state.RecordError(bridge.ErrBridgeUnavailable)
		return nil, bridge.ErrBridgeUnavailable
	}
	raw, err := c.transport.Call(ctx, method, params)
	c.state.RecordError(err)
	if err != nil {
		c.logger.Warn("Provider request failed", "method", method, "error", err)
		return nil, err
	}
	return raw, nil
}

// fail records err as the last error and returns it
func (c *core) fail(err error) error {
	c.state.RecordError(err)
	return err
}

func (c *core) unsupported(method string) error {
	return &chains.UnsupportedMethodError{Chain: c.tag, Method: method}
}

func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
