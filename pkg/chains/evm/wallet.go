package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

// Wallet drives an EIP-1193 style wallet through the bridge
type Wallet struct {
	*chains.Base

	chainID  string // configured chain, 0x-hex, may be empty
	rpcURL   string
	metadata MetadataProvider
	receipts *ReceiptReader

	stopNotifications func()
}

// Option configures a Wallet
type Option func(*Wallet)

// WithMetadataProvider sets where AddChain metadata comes from
func WithMetadataProvider(p MetadataProvider) Option {
	return func(w *Wallet) {
		w.metadata = p
	}
}

// WithReceiptReader overrides the receipt reader built from the configured RPC URL
func WithReceiptReader(r *ReceiptReader) Option {
	return func(w *Wallet) {
		w.receipts = r
	}
}

// Verify Wallet implements the contract
var _ chains.Wallet = (*Wallet)(nil)

// New creates an EVM wallet. cfg.ChainID may be decimal or 0x-hex.
func New(cfg chains.Config, opts ...Option) (*Wallet, error) {
	var chainID string
	if cfg.ChainID != "" {
		id, err := NormalizeChainID(cfg.ChainID)
		if err != nil {
			return nil, err
		}
		chainID = id
		cfg.ChainID = id
	}

	w := &Wallet{
		Base:     chains.NewBase(chains.EVM, cfg),
		chainID:  chainID,
		rpcURL:   cfg.RPCURL,
		metadata: StaticMetadata{},
	}
	if cfg.RPCURL != "" {
		w.receipts = NewReceiptReader([]string{cfg.RPCURL})
	}
	for _, opt := range opts {
		opt(w)
	}

	if t := cfg.Transport; t != nil {
		w.stopNotifications = t.OnNotification(w.handleNotification)
	}
	return w, nil
}

// Close stops listening to host notifications
func (w *Wallet) Close() {
	if w.stopNotifications != nil {
		w.stopNotifications()
		w.stopNotifications = nil
	}
}

// Connect switches to the configured chain (adding it when the wallet does not
// know it and an RPC URL is available) and requests accounts.
func (w *Wallet) Connect(ctx context.Context) (string, error) {
	if w.chainID != "" {
		if err := w.SwitchOrAddChain(ctx, w.chainID); err != nil {
			return "", err
		}
	}

	var accounts []string
	if err := w.Call(ctx, constants.MethodEthRequestAccounts, []any{}, &accounts); err != nil {
		return "", err
	}

	normalized, err := NormalizeAccounts(accounts)
	if err != nil {
		return "", w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthRequestAccounts, Err: err})
	}
	if len(normalized) == 0 {
		return "", w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthRequestAccounts, Err: errors.New("no accounts returned")})
	}

	w.SetAccounts(normalized)
	w.Logger().Info("EVM wallet connected", "address", normalized[0], "chainId", w.State().ChainID)
	return normalized[0], nil
}

// Disconnect resets local state. EIP-1193 wallets have no disconnect call.
func (w *Wallet) Disconnect(ctx context.Context) error {
	w.Reset()
	return nil
}

func (w *Wallet) resolveAddress(address string) (string, error) {
	if address == "" {
		return w.RequireConnected()
	}
	return ValidateAddress("address", address)
}

// GetBalance implements chains.Wallet
func (w *Wallet) GetBalance(ctx context.Context, address string) (*chains.Balance, error) {
	addr, err := w.resolveAddress(address)
	if err != nil {
		return nil, err
	}

	var result string
	if err := w.Call(ctx, constants.MethodEthGetBalance, []any{addr, "latest"}, &result); err != nil {
		return nil, err
	}

	wei, err := hexutil.DecodeBig(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthGetBalance, Err: err})
	}
	return chains.NewBalance(wei, constants.EVMDecimals, w.symbol()), nil
}

func (w *Wallet) symbol() string {
	id, err := ParseChainID(w.State().ChainID)
	if err != nil || !id.IsInt64() {
		return constants.SymbolETH
	}
	if s, ok := constants.NativeSymbols[id.Int64()]; ok {
		return s
	}
	return constants.SymbolETH
}

// SignMessage signs message with personal_sign
func (w *Wallet) SignMessage(ctx context.Context, message string) (*chains.Signature, error) {
	if err := chains.RequireNonEmpty("message", message); err != nil {
		return nil, err
	}
	from, err := w.RequireConnected()
	if err != nil {
		return nil, err
	}

	var result string
	params := []any{hexutil.Encode([]byte(message)), from}
	if err := w.Call(ctx, constants.MethodPersonalSign, params, &result); err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodPersonalSign, Err: err})
	}
	return &chains.Signature{Bytes: sig, Encoded: result, Signer: from}, nil
}

// SignTypedData signs EIP-712 typed data with eth_signTypedData_v4
func (w *Wallet) SignTypedData(ctx context.Context, typedDataJSON string) (*chains.Signature, error) {
	if _, _, err := ParseTypedData(typedDataJSON); err != nil {
		return nil, err
	}
	from, err := w.RequireConnected()
	if err != nil {
		return nil, err
	}

	var result string
	if err := w.Call(ctx, constants.MethodEthSignTypedDataV4, []any{from, typedDataJSON}, &result); err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthSignTypedDataV4, Err: err})
	}
	return &chains.Signature{Bytes: sig, Encoded: result, Signer: from}, nil
}

// SignTransaction signs tx with eth_signTransaction without broadcasting it
func (w *Wallet) SignTransaction(ctx context.Context, tx *chains.TxRequest) (*chains.SignedTx, error) {
	if err := chains.RequireTx(tx); err != nil {
		return nil, err
	}
	from, err := w.RequireConnected()
	if err != nil {
		return nil, err
	}
	obj, err := txObject(from, tx)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	if err := w.Call(ctx, constants.MethodEthSignTransaction, []any{obj}, &result); err != nil {
		return nil, err
	}

	signed, err := decodeSignedTransaction(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthSignTransaction, Err: err})
	}
	return signed, nil
}

// decodeSignedTransaction accepts either a raw 0x-hex string or a {raw, tx} object
func decodeSignedTransaction(result json.RawMessage) (*chains.SignedTx, error) {
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		var obj struct {
			Raw string `json:"raw"`
		}
		if err := json.Unmarshal(result, &obj); err != nil || obj.Raw == "" {
			return nil, fmt.Errorf("expected raw transaction, got %s", string(result))
		}
		encoded = obj.Raw
	}

	raw, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, err
	}

	var tx ethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	return &chains.SignedTx{Raw: raw, Encoded: encoded, TxID: tx.Hash().Hex()}, nil
}

// SendSignedTransaction broadcasts a transaction signed earlier
func (w *Wallet) SendSignedTransaction(ctx context.Context, signed *chains.SignedTx) (*chains.SendResult, error) {
	if signed == nil || len(signed.Raw) == 0 {
		return nil, &chains.InvalidParamsError{Field: "transaction", Reason: "signed transaction bytes are required"}
	}

	var result string
	if err := w.Call(ctx, constants.MethodEthSendRawTransaction, []any{hexutil.Encode(signed.Raw)}, &result); err != nil {
		return nil, err
	}

	txHash, err := ValidateTxHash(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthSendRawTransaction, Err: err})
	}
	return &chains.SendResult{TxID: txHash}, nil
}

// SignAndSendTransaction lets the wallet sign and broadcast with eth_sendTransaction
func (w *Wallet) SignAndSendTransaction(ctx context.Context, tx *chains.TxRequest) (*chains.SendResult, error) {
	if err := chains.RequireTx(tx); err != nil {
		return nil, err
	}
	if len(tx.Data) == 0 {
		if err := chains.RequirePositive("amount", tx.Amount); err != nil {
			return nil, err
		}
	}
	from, err := w.RequireConnected()
	if err != nil {
		return nil, err
	}
	obj, err := txObject(from, tx)
	if err != nil {
		return nil, err
	}

	var result string
	if err := w.Call(ctx, constants.MethodEthSendTransaction, []any{obj}, &result); err != nil {
		return nil, err
	}

	txHash, err := ValidateTxHash(result)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodEthSendTransaction, Err: err})
	}

	w.Logger().Info("EVM transaction submitted", "txHash", txHash, "from", from)
	return &chains.SendResult{TxID: txHash}, nil
}

// WaitForReceipt waits for txHash to be mined and reports whether it succeeded.
// It needs an RPC URL; the host is not involved.
func (w *Wallet) WaitForReceipt(ctx context.Context, txHash string) (*chains.SendResult, error) {
	if w.receipts == nil {
		return nil, &chains.UnsupportedMethodError{Chain: chains.EVM, Method: "WaitForReceipt without rpcUrl"}
	}
	hash, err := ValidateTxHash(txHash)
	if err != nil {
		return nil, &chains.InvalidParamsError{Field: "txHash", Reason: err.Error()}
	}

	receipt, err := w.receipts.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, w.Record(err)
	}
	return &chains.SendResult{TxID: hash, Confirmed: receipt.Status == ethtypes.ReceiptStatusSuccessful}, nil
}

// handleNotification reconciles state with host events
func (w *Wallet) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.EVM)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(n.Data, &accounts); err != nil {
			w.Logger().Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		normalized, err := NormalizeAccounts(accounts)
		if err != nil {
			w.Logger().Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		w.SetAccounts(normalized)
	case constants.EventChainChanged:
		chainID, err := DecodeChainID(n.Data)
		if err != nil {
			w.Logger().Warn("Ignoring malformed chainChanged", "error", err)
			return
		}
		w.SetChainID(chainID)
	case constants.EventDisconnect:
		w.Reset()
	}
}

// DecodeChainID accepts "0x89", "137" or 137
func DecodeChainID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return NormalizeChainID(s)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return NormalizeChainID(n.String())
}
