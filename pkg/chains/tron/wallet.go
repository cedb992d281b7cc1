package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

// Network ids as reported by TronLink
var networkIDs = map[string]string{
	"0x2b6653dc": constants.NetworkTron,
	"0x94a9059e": constants.NetworkTronShasta,
	"0xcd8690dc": constants.NetworkTronNile,
}

// Wallet is the Tron adapter. With an injected TronWeb the account is connected as
// long as TronWeb reports a default address and message or transaction signing is
// not available. Without one every call goes through the bridge.
type Wallet struct {
	*chains.Base

	mu           sync.Mutex
	tronWeb      TronWeb
	builder      TxBuilder
	fixedBuilder bool
	gridOptions  []GridOption
	detached     bool

	stopNotifications func()
}

// Option configures a Wallet
type Option func(*Wallet)

// WithTronWeb switches the wallet to an injected TronWeb
func WithTronWeb(tw TronWeb) Option {
	return func(w *Wallet) {
		w.tronWeb = tw
	}
}

// WithGridOptions configures the TronGrid client built when no TxBuilder is given
func WithGridOptions(opts ...GridOption) Option {
	return func(w *Wallet) {
		w.gridOptions = append(w.gridOptions, opts...)
	}
}

// WithTxBuilder replaces the TronGrid transaction builder. The builder is kept
// when the host switches networks.
func WithTxBuilder(b TxBuilder) Option {
	return func(w *Wallet) {
		w.builder = b
		w.fixedBuilder = b != nil
	}
}

// Verify Wallet implements the contract
var _ chains.Wallet = (*Wallet)(nil)

// New creates a Tron wallet. cfg.ChainID is a network name or TronLink network id
// (mainnet by default). cfg.RPCURL overrides the network's TronGrid endpoint.
func New(cfg chains.Config, opts ...Option) (*Wallet, error) {
	cfg.ChainID = normalizeNetwork(cfg.ChainID)

	w := &Wallet{Base: chains.NewBase(chains.Tron, cfg)}
	for _, opt := range opts {
		opt(w)
	}

	if w.builder == nil {
		endpoint := cfg.RPCURL
		if endpoint == "" {
			endpoint = constants.TronGridEndpoints[cfg.ChainID]
		}
		builder, err := w.gridBuilder(endpoint)
		if err != nil {
			return nil, err
		}
		w.builder = builder
	}

	if w.tronWeb != nil {
		w.sync()
	}
	if t := cfg.Transport; t != nil {
		w.stopNotifications = t.OnNotification(w.handleNotification)
	}
	return w, nil
}

// gridBuilder creates a TronGrid client for endpoint; none when endpoint is empty
func (w *Wallet) gridBuilder(endpoint string) (TxBuilder, error) {
	if endpoint == "" {
		return nil, nil
	}
	gridOpts := append([]GridOption{WithGridLogger(w.Logger())}, w.gridOptions...)
	grid, err := NewGridClient(endpoint, "", gridOpts...)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// txBuilder returns the builder for the current network
func (w *Wallet) txBuilder() TxBuilder {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builder
}

// setNetwork points transaction building at network's TronGrid endpoint, then
// records it as the chain id. Networks without a known endpoint leave no builder.
func (w *Wallet) setNetwork(network string) {
	network = normalizeNetwork(network)

	w.mu.Lock()
	if !w.fixedBuilder {
		builder, err := w.gridBuilder(constants.TronGridEndpoints[network])
		if err != nil {
			w.Logger().Warn("Failed to create TronGrid client", "network", network, "error", err)
		}
		w.builder = builder
	}
	w.mu.Unlock()

	w.SetChainID(network)
}

func normalizeNetwork(network string) string {
	network = strings.TrimSpace(network)
	if network == "" {
		return constants.NetworkTron
	}
	if name, ok := networkIDs[strings.ToLower(network)]; ok {
		return name
	}
	return network
}

// Close stops listening to host notifications
func (w *Wallet) Close() {
	if w.stopNotifications != nil {
		w.stopNotifications()
		w.stopNotifications = nil
	}
}

// Injected reports whether the wallet uses an injected TronWeb
func (w *Wallet) Injected() bool {
	return w.tronWeb != nil
}

// sync mirrors the injected default address into state
func (w *Wallet) sync() {
	if w.tronWeb == nil {
		return
	}
	w.mu.Lock()
	detached := w.detached
	w.mu.Unlock()
	if detached {
		return
	}

	snap := w.Base.State()
	addr, ok := w.tronWeb.DefaultAddress()
	switch {
	case ok && (len(snap.Accounts) != 1 || snap.Accounts[0] != addr.Base58):
		w.SetAccounts([]string{addr.Base58})
	case !ok && snap.Connected:
		w.Reset()
	}
}

// Connected reports whether an account is available, re-reading an injected TronWeb
func (w *Wallet) Connected() bool {
	w.sync()
	return w.Base.Connected()
}

// PublicKey returns the active base58 address
func (w *Wallet) PublicKey() (string, error) {
	return w.activeAccount()
}

func (w *Wallet) activeAccount() (string, error) {
	w.sync()
	return w.RequireConnected()
}

// resolveAddress validates address, defaulting to the active account when empty
func (w *Wallet) resolveAddress(field, address string) (Address, error) {
	if address == "" {
		active, err := w.activeAccount()
		if err != nil {
			return Address{}, err
		}
		address = active
	}
	return ValidateAddress(field, address)
}

func (w *Wallet) unsupported(method string) error {
	return &chains.UnsupportedMethodError{Chain: chains.Tron, Method: method}
}

// Connect reads the injected default address, or requests accounts from the host
func (w *Wallet) Connect(ctx context.Context) (string, error) {
	if w.tronWeb != nil {
		w.mu.Lock()
		w.detached = false
		w.mu.Unlock()

		if _, ok := w.tronWeb.DefaultAddress(); !ok {
			return "", w.Record(ErrNoDefaultAddress)
		}
		w.sync()
		w.Record(nil)
		active, _ := w.RequireConnected()
		return active, nil
	}

	var raw json.RawMessage
	if err := w.Call(ctx, constants.MethodTronRequestAccounts, nil, &raw); err != nil {
		return "", err
	}
	accounts, err := DecodeAddresses(raw)
	if err == nil && len(accounts) == 0 {
		err = errors.New("no accounts returned")
	}
	if err != nil {
		return "", w.Record(&chains.UnexpectedResponseError{Method: constants.MethodTronRequestAccounts, Err: err})
	}

	w.SetAccounts(accounts)
	w.Logger().Info("Tron wallet connected", "address", accounts[0], "network", w.Base.State().ChainID)
	return accounts[0], nil
}

// Disconnect clears the local connection. Tron hosts have no disconnect call;
// an injected TronWeb stays detached until the next Connect.
func (w *Wallet) Disconnect(context.Context) error {
	if w.tronWeb != nil {
		w.mu.Lock()
		w.detached = true
		w.mu.Unlock()
	}
	w.Reset()
	return nil
}

// GetBalance returns the TRX balance of address (the active account when empty)
func (w *Wallet) GetBalance(ctx context.Context, address string) (*chains.Balance, error) {
	addr, err := w.resolveAddress("address", address)
	if err != nil {
		return nil, err
	}

	var sun *big.Int
	if w.tronWeb != nil {
		if sun, err = w.tronWeb.GetBalance(ctx, addr.Base58); err != nil {
			return nil, w.Record(err)
		}
		w.Record(nil)
	} else {
		var raw json.RawMessage
		if err := w.Call(ctx, constants.MethodTronGetBalance, map[string]string{"address": addr.Base58}, &raw); err != nil {
			return nil, err
		}
		if sun, err = DecodeSun(raw); err != nil {
			return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodTronGetBalance, Err: err})
		}
	}
	return chains.NewBalance(sun, constants.TronDecimals, constants.SymbolTRX), nil
}

// SignMessage signs message with the active account through the host
func (w *Wallet) SignMessage(ctx context.Context, message string) (*chains.Signature, error) {
	signer, err := w.activeAccount()
	if err != nil {
		return nil, err
	}
	if err := chains.RequireNonEmpty("message", message); err != nil {
		return nil, err
	}
	if w.tronWeb != nil {
		return nil, w.unsupported("signMessage")
	}

	var raw json.RawMessage
	params := map[string]string{"message": message, "address": signer}
	if err := w.Call(ctx, constants.MethodTronSignMessage, params, &raw); err != nil {
		return nil, err
	}

	encoded, err := decodeField(raw, "signature")
	var sig []byte
	if err == nil {
		sig, err = DecodeSignature(encoded)
	}
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodTronSignMessage, Err: err})
	}
	return &chains.Signature{Bytes: sig, Encoded: encoded, Signer: signer}, nil
}

// SignTransaction signs a transaction document. Raw carries one built by the
// caller; otherwise a TRX transfer of Amount sun to To is created on TronGrid.
func (w *Wallet) SignTransaction(ctx context.Context, req *chains.TxRequest) (*chains.SignedTx, error) {
	if err := chains.RequireTx(req); err != nil {
		return nil, err
	}
	from, err := w.activeAccount()
	if err != nil {
		return nil, err
	}
	if w.tronWeb != nil {
		return nil, w.unsupported("signTransaction")
	}

	unsigned, err := w.unsignedTx(ctx, req, from)
	if err != nil {
		return nil, err
	}
	return w.signTx(ctx, unsigned)
}

func (w *Wallet) unsignedTx(ctx context.Context, req *chains.TxRequest, active string) (json.RawMessage, error) {
	if len(req.Raw) > 0 {
		if !json.Valid(req.Raw) {
			return nil, &chains.InvalidParamsError{Field: "raw", Reason: "must be a JSON transaction document"}
		}
		return req.Raw, nil
	}

	from := req.From
	if from == "" {
		from = active
	}
	if _, err := ValidateAddress("from", from); err != nil {
		return nil, err
	}
	if _, err := ValidateAddress("to", req.To); err != nil {
		return nil, err
	}
	if err := chains.RequirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	builder := w.txBuilder()
	if builder == nil {
		return nil, w.unsupported("createTransaction")
	}

	doc, err := builder.CreateTransaction(ctx, from, req.To, req.Amount)
	if err != nil {
		return nil, w.Record(err)
	}
	return doc, nil
}

func (w *Wallet) signTx(ctx context.Context, unsigned json.RawMessage) (*chains.SignedTx, error) {
	var signed json.RawMessage
	params := map[string]any{"transaction": unsigned}
	if err := w.Call(ctx, constants.MethodTronSignTransaction, params, &signed); err != nil {
		return nil, err
	}

	var doc struct {
		TxID      string   `json:"txID"`
		Signature []string `json:"signature"`
	}
	err := json.Unmarshal(signed, &doc)
	switch {
	case err != nil:
	case !isTxID(doc.TxID):
		err = fmt.Errorf("invalid txID %q", doc.TxID)
	case len(doc.Signature) == 0:
		err = errors.New("transaction is not signed")
	}
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodTronSignTransaction, Err: err})
	}
	return &chains.SignedTx{Raw: signed, Encoded: string(signed), TxID: doc.TxID}, nil
}

// SignAndSendTransaction transfers Amount sun to To. With the bridge, a Raw
// transaction document is signed first and the signed document is broadcast.
func (w *Wallet) SignAndSendTransaction(ctx context.Context, req *chains.TxRequest) (*chains.SendResult, error) {
	if err := chains.RequireTx(req); err != nil {
		return nil, err
	}
	from, err := w.activeAccount()
	if err != nil {
		return nil, err
	}

	if len(req.Raw) > 0 {
		if w.tronWeb != nil {
			return nil, w.unsupported("signTransaction")
		}
		signed, err := w.signTx(ctx, req.Raw)
		if err != nil {
			return nil, err
		}
		return w.send(ctx, map[string]any{"transaction": json.RawMessage(signed.Raw)})
	}

	to, err := ValidateAddress("to", req.To)
	if err != nil {
		return nil, err
	}
	if err := chains.RequirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	if w.tronWeb != nil {
		txID, err := w.tronWeb.SendTransaction(ctx, to.Base58, req.Amount)
		if err != nil {
			return nil, w.Record(err)
		}
		w.Record(nil)
		w.Logger().Info("Tron transaction sent", "txID", txID)
		return &chains.SendResult{TxID: txID}, nil
	}

	return w.send(ctx, map[string]string{
		"from":   from,
		"to":     to.Base58,
		"amount": req.Amount.String(),
	})
}

func (w *Wallet) send(ctx context.Context, params any) (*chains.SendResult, error) {
	var raw json.RawMessage
	if err := w.Call(ctx, constants.MethodTronSendTransaction, params, &raw); err != nil {
		return nil, err
	}
	txID, err := DecodeTxID(raw)
	if err != nil {
		return nil, w.Record(&chains.UnexpectedResponseError{Method: constants.MethodTronSendTransaction, Err: err})
	}
	w.Logger().Info("Tron transaction sent", "txID", txID)
	return &chains.SendResult{TxID: txID}, nil
}

// handleNotification reconciles state with host events
func (w *Wallet) handleNotification(n bridge.Notification) {
	if !n.AppliesTo(string(chains.Tron)) {
		return
	}

	switch n.Event {
	case constants.EventAccountsChanged:
		accounts, err := DecodeAddresses(n.Data)
		if err != nil {
			w.Logger().Warn("Ignoring malformed accountsChanged", "error", err)
			return
		}
		w.SetAccounts(accounts)
	case constants.EventChainChanged:
		var network string
		if err := json.Unmarshal(n.Data, &network); err != nil || network == "" {
			w.Logger().Warn("Ignoring malformed chainChanged", "data", string(n.Data))
			return
		}
		w.setNetwork(network)
	case constants.EventDisconnect:
		w.Reset()
	}
}

// DecodeAddresses accepts null, "T...", ["T...", ...] or {"base58": "T..."}
func DecodeAddresses(data json.RawMessage) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return []string{}, nil
	}

	var list []string
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
	case '{':
		var obj struct {
			Base58 string `json:"base58"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		list = []string{obj.Base58}
	default:
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, errors.New("expected an address or a list of addresses")
		}
		list = []string{single}
	}

	out := make([]string, 0, len(list))
	for _, a := range list {
		addr, err := ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", a, err)
		}
		out = append(out, addr.Base58)
	}
	return out, nil
}

// DecodeSun accepts 5000000, "5000000" or {"balance": ...}
func DecodeSun(data json.RawMessage) (*big.Int, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Balance json.RawMessage `json:"balance"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		data = bytes.TrimSpace(obj.Balance)
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
	}
	sun, ok := new(big.Int).SetString(s, 10)
	if !ok || sun.Sign() < 0 {
		return nil, fmt.Errorf("invalid balance %q", s)
	}
	return sun, nil
}

// decodeField accepts "value" or {field: "value"}
func decodeField(data json.RawMessage, field string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("expected a string or an object with %s", field)
	}
	if err := json.Unmarshal(obj[field], &s); err != nil || s == "" {
		return "", fmt.Errorf("missing %s", field)
	}
	return s, nil
}

// DecodeTxID accepts "id", {"txid": "id"}, {"txID": "id"} or a transaction document.
// A {"result": false} answer is a rejected broadcast.
func DecodeTxID(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if !isTxID(s) {
			return "", fmt.Errorf("invalid txid %q", s)
		}
		return s, nil
	}

	var obj struct {
		Result      *bool  `json:"result"`
		TxID        string `json:"txid"`
		TxIDUpper   string `json:"txID"`
		Message     string `json:"message"`
		Transaction struct {
			TxID string `json:"txID"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	if obj.Result != nil && !*obj.Result {
		if obj.Message == "" {
			obj.Message = "broadcast rejected"
		}
		return "", errors.New(obj.Message)
	}
	for _, id := range []string{obj.TxID, obj.TxIDUpper, obj.Transaction.TxID} {
		if isTxID(id) {
			return id, nil
		}
	}
	return "", errors.New("missing txid")
}

func isTxID(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
