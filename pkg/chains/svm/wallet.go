package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

// Wallet drives a Solana wallet through the bridge and reads chain state through ChainRPC
type Wallet struct {
	*chains.Base

	mu        sync.RWMutex
	rpc       ChainRPC
	endpoints map[string][]string

	stopNotifications func()
}

// Option configures a Wallet
type Option func(*Wallet)

// WithChainRPC replaces the RPC client built from the configuration
func WithChainRPC(rpc ChainRPC) Option {
	return func(w *Wallet) {
		w.rpc = rpc
	}
}

// WithEndpoints sets per-cluster RPC endpoints, tried before the official ones
// whenever the wallet (re)connects to a cluster
func WithEndpoints(endpoints map[string][]string) Option {
	return func(w *Wallet) {
		w.endpoints = endpoints
	}
}

// Verify Wallet implements the contract
var _ chains.Wallet = (*Wallet)(nil)

// New creates a Solana wallet. cfg.ChainID is a cluster name (mainnet-beta by default);
// cfg.RPCURL overrides the cluster's official endpoint.
func New(cfg chains.Config, opts ...Option) (*Wallet, error) {
	if cfg.ChainID == "" {
		cfg.ChainID = constants.NetworkSolana
	}

	w := &Wallet{Base: chains.NewBase(chains.Solana, cfg)}
	for _, opt := range opts {
		opt(w)
	}

	if w.rpc == nil {
		var endpoints []string
		if cfg.RPCURL != "" {
			if err := utils.ValidateRPCURL(cfg.RPCURL); err != nil {
				return nil, &chains.InvalidParamsError{Field: "rpcUrl", Reason: err.Error()}
			}
			endpoints = []string{cfg.RPCURL}
		} else {
			var err error
			if endpoints, err = w.resolveEndpoints(cfg.ChainID); err != nil {
				return nil, err
			}
		}
		w.rpc = NewRPCClient(endpoints...)
	}

	if t := cfg.Transport; t != nil {
		w.stopNotifications = t.OnNotification(w.handleNotification)
	}
	return w, nil
}

// resolveEndpoints maps a cluster name to its configured endpoints, falling back
// to the official one; URLs pass through
func (w *Wallet) resolveEndpoints(network string) ([]string, error) {
	if endpoints := w.endpoints[network]; len(endpoints) > 0 {
		for _, endpoint := range endpoints {
			if err := utils.ValidateRPCURL(endpoint); err != nil || endpoint == "" {
				if err == nil {
					err = errors.New("empty endpoint")
				}
				return nil, &chains.InvalidParamsError{Field: "endpoints", Reason: err.Error()}
			}
		}
		return slices.Clone(endpoints), nil
	}
	if endpoints, ok := constants.OfficialRPCEndpoints[network]; ok {
		return slices.Clone(endpoints[:1]), nil
	}
	if strings.Contains(network, "://") {
		if err := utils.ValidateRPCURL(network); err != nil {
			return nil, &chains.InvalidParamsError{Field: "network", Reason: err.Error()}
		}
		return []string{network}, nil
	}
	return nil, &chains.InvalidParamsError{Field: "network", Reason: fmt.Sprintf("unknown cluster %q and no rpcUrl", network)}
}

// setNetwork points chain reads at network, then records it as the chain id
func (w *Wallet) setNetwork(network string) error {
	endpoints, err := w.resolveEndpoints(network)
	if err != nil {
		return err
	}
	w.useNetwork(network, endpoints)
	return nil
}

func (w *Wallet) useNetwork(network string, endpoints []string) {
	w.mu.Lock()
	w.rpc = NewRPCClient(endpoints...)
	w.mu.Unlock()

	w.SetChainID(network)
}

// Close stops listening to host notifications
func (w *Wallet) Close() {
	if w.stopNotifications != nil {
		w.stopNotifications()
		w.stopNotifications = nil
	}
}

func (w *Wallet) chainRPC() ChainRPC {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rpc
}

// resolveOwner validates key, defaulting to the active account when empty
func (w *Wallet) resolveOwner(field, key string) (solana.PublicKey, error) {
	if key == "" {
		active, err := w.RequireConnected()
		if err != nil {
			return solana.PublicKey{}, err
		}
		key = active
	}
	return ValidatePublicKey(field, key)
}

// activeKey returns the connected account as a public key
func (w *Wallet) activeKey() (solana.PublicKey, error) {
	active, err := w.RequireConnected()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(active)
}

// Connect asks the host for the wallet public key
func (w *Wallet) Connect(ctx context.Context) (string, error) {
	var result struct {
		PublicKey string `json:"publicKey"`
	}
	if err := w.Call(ctx, constants.MethodSolConnect, nil, &result); err != nil {
		return "", err
	}

	pk, err := solana.PublicKeyFromBase58(result.PublicKey)
	if err != nil {
		return "", w.Record(&chains.UnexpectedResponseError{Method: constants.MethodSolConnect, Err: fmt.Errorf("invalid public key %q", result.PublicKey)})
	}

	w.SetAccounts([]string{pk.String()})
	w.Logger().Info("Solana wallet connected", "publicKey", pk.String(), "network", w.State().ChainID)
	return pk.String(), nil
}

// Disconnect tells the host and resets local state
func (w *Wallet) Disconnect(ctx context.Context) error {
	if err := w.Call(ctx, constants.MethodSolDisconnect, nil, nil); err != nil {
		return err
	}
	w.Reset()
	return nil
}

// GetBalance implements chains.Wallet
func (w *Wallet) GetBalance(ctx context.Context, address string) (*chains.Balance, error) {
	owner, err := w.resolveOwner("address", address)
	if err != nil {
		return nil, err
	}

	lamports, err := w.chainRPC().GetBalance(ctx, owner)
	if err != nil {
		return nil, w.Record(err)
	}
	w.Record(nil)
	return chains.NewBalance(new(big.Int).SetUint64(lamports), constants.SolanaDecimals, constants.SymbolSOL), nil
}

// SignMessage signs a UTF-8 message with the active key
func (w *Wallet) SignMessage(ctx context.Context, message string) (*chains.Signature, error) {
	signer, err := w.RequireConnected()
	if err != nil {
		return nil, err
	}
	if err := chains.RequireNonEmpty("message", message); err != nil {
		return nil, err
	}

	var result struct {
		Signature string `json:"signature"`
	}
	params := map[string]string{"message": message, "publicKey": signer}
	if err := w.Call(ctx, constants.MethodSolSignMessage, params, &result); err != nil {
		return nil, err
	}

	sig, err := base64.StdEncoding.DecodeString(result.Signature)
	if err == nil && len(sig) != solana.SignatureLength {
		err = fmt.Errorf("signature is %d bytes", len(sig))
	}
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodSolSignMessage, Err: err})
	}
	return &chains.Signature{Bytes: sig, Encoded: result.Signature, Signer: signer}, nil
}

// signTx asks the host to sign tx for signer
func (w *Wallet) signTx(ctx context.Context, tx *solana.Transaction, signer solana.PublicKey) (*solana.Transaction, []byte, error) {
	unsigned, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, &chains.InvalidParamsError{Field: "transaction", Reason: err.Error()}
	}

	var result json.RawMessage
	params := map[string]string{
		"transaction": base64.StdEncoding.EncodeToString(unsigned),
		"publicKey":   signer.String(),
	}
	if err := w.Call(ctx, constants.MethodSolSignTransaction, params, &result); err != nil {
		return nil, nil, err
	}

	signed, raw, err := DecodeSignedTransaction(result)
	if err != nil {
		return nil, nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodSolSignTransaction, Err: err})
	}
	return signed, raw, nil
}

// SignSolanaTransaction signs a draft without broadcasting it
func (w *Wallet) SignSolanaTransaction(ctx context.Context, draft *TxDraft) (*solana.Transaction, error) {
	signer, err := w.activeKey()
	if err != nil {
		return nil, err
	}
	tx, err := w.build(ctx, draft, signer)
	if err != nil {
		return nil, err
	}
	signed, _, err := w.signTx(ctx, tx, signer)
	return signed, err
}

// SignTransaction implements chains.Wallet. See fromRequest for the accepted requests.
func (w *Wallet) SignTransaction(ctx context.Context, req *chains.TxRequest) (*chains.SignedTx, error) {
	if err := chains.RequireTx(req); err != nil {
		return nil, err
	}
	signer, err := w.activeKey()
	if err != nil {
		return nil, err
	}
	tx, err := w.fromRequest(ctx, req, signer)
	if err != nil {
		return nil, err
	}

	signed, raw, err := w.signTx(ctx, tx, signer)
	if err != nil {
		return nil, err
	}
	return &chains.SignedTx{
		Raw:     raw,
		Encoded: base64.StdEncoding.EncodeToString(raw),
		TxID:    signed.Signatures[0].String(),
	}, nil
}

// SignAndSendTransaction signs, broadcasts and confirms. When confirmation fails
// the result carrying the signature is returned together with a *ConfirmationError.
func (w *Wallet) SignAndSendTransaction(ctx context.Context, req *chains.TxRequest) (*chains.SendResult, error) {
	if err := chains.RequireTx(req); err != nil {
		return nil, err
	}
	signer, err := w.activeKey()
	if err != nil {
		return nil, err
	}
	tx, err := w.fromRequest(ctx, req, signer)
	if err != nil {
		return nil, err
	}
	_, raw, err := w.signTx(ctx, tx, signer)
	if err != nil {
		return nil, err
	}
	return w.sendAndConfirm(ctx, raw)
}

// SignAndSendSolanaTransaction is SignAndSendTransaction for a draft
func (w *Wallet) SignAndSendSolanaTransaction(ctx context.Context, draft *TxDraft) (*chains.SendResult, error) {
	signer, err := w.activeKey()
	if err != nil {
		return nil, err
	}
	tx, err := w.build(ctx, draft, signer)
	if err != nil {
		return nil, err
	}
	_, raw, err := w.signTx(ctx, tx, signer)
	if err != nil {
		return nil, err
	}
	return w.sendAndConfirm(ctx, raw)
}

func (w *Wallet) sendAndConfirm(ctx context.Context, raw []byte) (*chains.SendResult, error) {
	rpc := w.chainRPC()

	sig, err := rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, w.Record(err)
	}

	result := &chains.SendResult{TxID: sig.String()}
	if err := rpc.ConfirmTransaction(ctx, sig); err != nil {
		w.Logger().Warn("Solana transaction sent but not confirmed", "signature", result.TxID, "error", err)
		return result, w.Record(&ConfirmationError{Signature: result.TxID, Err: err})
	}

	result.Confirmed = true
	w.Record(nil)
	w.Logger().Info("Solana transaction confirmed", "signature", result.TxID)
	return result, nil
}

// GetTokenAccounts lists SPL token accounts of owner (the active account when empty)
func (w *Wallet) GetTokenAccounts(ctx context.Context, owner string) ([]TokenAccount, error) {
	key, err := w.resolveOwner("owner", owner)
	if err != nil {
		return nil, err
	}

	accounts, err := w.chainRPC().GetTokenAccounts(ctx, key)
	if err != nil {
		return nil, w.Record(err)
	}
	w.Record(nil)
	return accounts, nil
}

// GetTokenBalance returns the owner's balance of mint. An owner without a token
// account for mint has a zero balance.
func (w *Wallet) GetTokenBalance(ctx context.Context, mint, owner string) (*chains.Balance, error) {
	if err := chains.RequireNonEmpty("mint", mint); err != nil {
		return nil, err
	}
	mintKey, err := ValidatePublicKey("mint", mint)
	if err != nil {
		return nil, err
	}

	accounts, err := w.GetTokenAccounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if AddressesEqual(account.Mint, mintKey.String()) {
			return chains.NewBalance(account.Amount, account.Decimals, mintKey.String()), nil
		}
	}
	return chains.NewBalance(nil, 0, mintKey.String()), nil
}

// SwitchNetwork asks the host to switch to network (a cluster name or an RPC URL)
// and points chain reads at it
func (w *Wallet) SwitchNetwork(ctx context.Context, network string) error {
	if err := chains.RequireNonEmpty("network", network); err != nil {
		return err
	}
	endpoints, err := w.resolveEndpoints(network)
	if err != nil {
		return err
	}

	if err := w.Call(ctx, constants.MethodSolSwitchNetwork, map[string]string{"network": network}, nil); err != nil {
		return err
	}

	w.useNetwork(network, endpoints)
	return nil
}

// handleNotification reconciles state with host events
func (w *Wallet) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.Solana)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		keys, err := DecodeKeys(n.Data)
		if err != nil {
			w.Logger().Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		w.SetAccounts(keys)
	case constants.EventChainChanged:
		var network string
		if err := json.Unmarshal(n.Data, &network); err != nil || network == "" {
			w.Logger().Warn("Ignoring malformed chainChanged", "data", string(n.Data))
			return
		}
		if err := w.setNetwork(network); err != nil {
			w.Logger().Warn("Ignoring chainChanged to a cluster without endpoints", "network", network, "error", err)
		}
	case constants.EventDisconnect:
		w.Reset()
	}
}

// DecodeKeys accepts null, "key" or ["key", ...]
func DecodeKeys(data json.RawMessage) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return []string{}, nil
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, errors.New("expected a public key or a list of public keys")
		}
		keys = []string{single}
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		pk, err := ValidatePublicKey("publicKey", k)
		if err != nil {
			return nil, err
		}
		out = append(out, pk.String())
	}
	return out, nil
}
