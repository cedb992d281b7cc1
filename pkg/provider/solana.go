package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/svm"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// SolanaProvider emulates window.solana
type SolanaProvider struct {
	core
}

// NewSolanaProvider creates a Phantom style provider backed by transport
func NewSolanaProvider(transport *bridge.Transport, logger *slog.Logger) *SolanaProvider {
	return &SolanaProvider{core: newCore(chains.Solana, transport, logger)}
}

// Slot implements Provider
func (p *SolanaProvider) Slot() string {
	return SlotSolana
}

// PublicKey returns the connected base58 public key, empty when not connected
func (p *SolanaProvider) PublicKey() string {
	return p.state.Snapshot().ActiveAccount()
}

// Connect asks the host for the wallet public key
func (p *SolanaProvider) Connect(ctx context.Context) (string, error) {
	return p.connect(ctx, false)
}

// connect with onlyIfTrusted succeeds only when the page was approved before
func (p *SolanaProvider) connect(ctx context.Context, onlyIfTrusted bool) (string, error) {
	var params any
	if onlyIfTrusted {
		params = map[string]bool{"onlyIfTrusted": true}
	}
	raw, err := p.call(ctx, constants.MethodSolConnect, params)
	if err != nil {
		return "", err
	}

	var result struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", p.fail(&chains.UnexpectedResponseError{Method: constants.MethodSolConnect, Err: err})
	}
	key, err := svm.ValidatePublicKey("publicKey", result.PublicKey)
	if err != nil {
		return "", p.fail(&chains.UnexpectedResponseError{Method: constants.MethodSolConnect, Err: err})
	}

	p.state.SetAccounts([]string{key.String()})
	return key.String(), nil
}

// Disconnect tells the host and clears the public key
func (p *SolanaProvider) Disconnect(ctx context.Context) error {
	if _, err := p.call(ctx, constants.MethodSolDisconnect, nil); err != nil {
		return err
	}
	p.state.Reset()
	return nil
}

func (p *SolanaProvider) requireKey() (string, error) {
	key := p.PublicKey()
	if key == "" {
		return "", chains.ErrNotConnected
	}
	return key, nil
}

// SignMessage signs a UTF-8 message and returns the 64 byte signature
func (p *SolanaProvider) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	key, err := p.requireKey()
	if err != nil {
		return nil, err
	}
	if len(message) == 0 {
		return nil, &chains.InvalidParamsError{Field: "message", Reason: "must not be empty"}
	}
	if !utf8.Valid(message) {
		return nil, &chains.InvalidParamsError{Field: "message", Reason: "must be UTF-8 text"}
	}

	raw, err := p.call(ctx, constants.MethodSolSignMessage, map[string]string{"message": string(message), "publicKey": key})
	if err != nil {
		return nil, err
	}

	var result struct {
		Signature string `json:"signature"`
	}
	err = json.Unmarshal(raw, &result)
	var sig []byte
	if err == nil {
		sig, err = base64.StdEncoding.DecodeString(result.Signature)
	}
	if err == nil && len(sig) != solana.SignatureLength {
		err = fmt.Errorf("signature is %d bytes", len(sig))
	}
	if err != nil {
		return nil, p.fail(&chains.UnexpectedResponseError{Method: constants.MethodSolSignMessage, Err: err})
	}
	return sig, nil
}

// SignTransaction signs a base64 wire transaction and returns the signed one in base64
func (p *SolanaProvider) SignTransaction(ctx context.Context, txBase64 string) (string, error) {
	key, err := p.requireKey()
	if err != nil {
		return "", err
	}
	unsigned, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", &chains.InvalidParamsError{Field: "transaction", Reason: err.Error()}
	}
	if _, err := svm.DecodeTransaction(unsigned); err != nil {
		return "", &chains.InvalidParamsError{Field: "transaction", Reason: err.Error()}
	}

	raw, err := p.call(ctx, constants.MethodSolSignTransaction, map[string]string{"transaction": txBase64, "publicKey": key})
	if err != nil {
		return "", err
	}
	_, signed, err := svm.DecodeSignedTransaction(raw)
	if err != nil {
		return "", p.fail(&chains.UnexpectedResponseError{Method: constants.MethodSolSignTransaction, Err: err})
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// prime reconnects silently when the host already trusts the page
func (p *SolanaProvider) prime(ctx context.Context) error {
	_, err := p.connect(ctx, true)
	return err
}

func (p *SolanaProvider) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.Solana)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		keys, err := svm.DecodeKeys(n.Data)
		if err != nil {
			p.logger.Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		p.state.SetAccounts(keys)
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

func (p *SolanaProvider) scriptState() map[string]any {
	return map[string]any{
		"publicKey":   orNull(p.PublicKey()),
		"isConnected": p.IsConnected(),
	}
}

// eventPayload reports account changes as the new key, like Phantom's accountChanged
func (p *SolanaProvider) eventPayload(ev state.Event) any {
	switch ev.Name {
	case constants.EventAccountsChanged:
		if keys, ok := ev.Value.([]string); ok && len(keys) > 0 {
			return keys[0]
		}
		return nil
	case constants.EventConnect:
		return orNull(p.PublicKey())
	}
	return ev.Value
}
