package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

// ErrUnknownSlot is returned for messages addressed to a slot nothing is published under
var ErrUnknownSlot = errors.New("unknown provider slot")

// Publisher makes a provider visible to page code, e.g. as a global variable
type Publisher interface {
	Publish(p Provider) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(p Provider) error

// Publish implements Publisher
func (f PublisherFunc) Publish(p Provider) error {
	return f(p)
}

// Registry holds the published providers by slot
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Set stores p under its slot, replacing any previous provider
func (r *Registry) Set(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Slot()] = p
}

// Get returns the provider published under slot
func (r *Registry) Get(slot string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[slot]
	return p, ok
}

// Slots returns the occupied slots in sorted order
func (r *Registry) Slots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slots := make([]string, 0, len(r.providers))
	for slot := range r.providers {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slots
}

// Ethereum returns the window.ethereum provider
func (r *Registry) Ethereum() (*EthereumProvider, bool) {
	p, ok := r.Get(SlotEthereum)
	if !ok {
		return nil, false
	}
	eth, ok := p.(*EthereumProvider)
	return eth, ok
}

// Solana returns the window.solana provider
func (r *Registry) Solana() (*SolanaProvider, bool) {
	p, ok := r.Get(SlotSolana)
	if !ok {
		return nil, false
	}
	sol, ok := p.(*SolanaProvider)
	return sol, ok
}

// TronWeb returns the window.tronWeb provider
func (r *Registry) TronWeb() (*TronProvider, bool) {
	p, ok := r.Get(SlotTronWeb)
	if !ok {
		return nil, false
	}
	tw, ok := p.(*TronProvider)
	return tw, ok
}

// Message is a request posted by page code to the host function bound by the shim
type Message struct {
	Slot   string          `json:"slot"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// HandleMessage decodes a JSON Message and dispatches it
func (r *Registry) HandleMessage(ctx context.Context, raw string) (any, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, &chains.InvalidParamsError{Field: "message", Reason: err.Error()}
	}
	return r.Dispatch(ctx, msg)
}

// Dispatch routes msg to the provider published under msg.Slot
func (r *Registry) Dispatch(ctx context.Context, msg Message) (any, error) {
	p, ok := r.Get(msg.Slot)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, msg.Slot)
	}

	var params any
	if len(msg.Params) > 0 && string(msg.Params) != "null" {
		params = msg.Params
	}

	switch pr := p.(type) {
	case *EthereumProvider:
		return pr.Request(ctx, RequestArgs{Method: msg.Method, Params: params})
	case *TronProvider:
		return pr.Request(ctx, RequestArgs{Method: msg.Method, Params: params})
	case *SolanaProvider:
		return dispatchSolana(ctx, pr, msg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, msg.Slot)
}

// dispatchSolana maps the shim's Solana calls onto the provider. Bytes travel as base64.
func dispatchSolana(ctx context.Context, p *SolanaProvider, msg Message) (any, error) {
	var params struct {
		OnlyIfTrusted bool   `json:"onlyIfTrusted"`
		Message       string `json:"message"`
		Transaction   string `json:"transaction"`
	}
	if len(msg.Params) > 0 && string(msg.Params) != "null" {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil, &chains.InvalidParamsError{Field: "params", Reason: err.Error()}
		}
	}

	switch msg.Method {
	case constants.MethodSolConnect:
		key, err := p.connect(ctx, params.OnlyIfTrusted)
		if err != nil {
			return nil, err
		}
		return map[string]string{"publicKey": key}, nil

	case constants.MethodSolDisconnect:
		return nil, p.Disconnect(ctx)

	case constants.MethodSolSignMessage:
		message, err := base64.StdEncoding.DecodeString(params.Message)
		if err != nil {
			return nil, &chains.InvalidParamsError{Field: "message", Reason: err.Error()}
		}
		sig, err := p.SignMessage(ctx, message)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"signature": base64.StdEncoding.EncodeToString(sig),
			"publicKey": p.PublicKey(),
		}, nil

	case constants.MethodSolSignTransaction:
		signed, err := p.SignTransaction(ctx, params.Transaction)
		if err != nil {
			return nil, err
		}
		return map[string]string{"transaction": signed}, nil
	}
	return nil, p.unsupported(msg.Method)
}
