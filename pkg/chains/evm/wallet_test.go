package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/bridge/bridgetest"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccountLower   = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	testAccountChecked = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testRecipient      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestWallet(t *testing.T, cfg chains.Config) (*Wallet, *bridgetest.Host, *bridge.Transport) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	transport, host := bridgetest.NewTransport(bridge.WithLogger(logger))
	cfg.Transport = transport
	cfg.Logger = logger
	w, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, host, transport
}

func connect(t *testing.T, w *Wallet, host *bridgetest.Host) {
	t.Helper()
	host.Reply(constants.MethodEthRequestAccounts, []string{testAccountLower})
	_, err := w.Connect(context.Background())
	require.NoError(t, err)
}

func TestConnectWithoutChainID(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	host.Reply(constants.MethodEthRequestAccounts, []string{testAccountLower, testRecipient})

	addr, err := w.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAccountChecked, addr)
	assert.Equal(t, []string{constants.MethodEthRequestAccounts}, host.Methods())

	snap := w.State()
	assert.True(t, snap.Connected)
	assert.Len(t, snap.Accounts, 2)
	assert.Equal(t, string(chains.EVM), snap.ChainTag)
}

func TestConnectSwitchesChain(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{ChainID: "137"})
	host.Reply(constants.MethodWalletSwitchChain, nil)
	host.Reply(constants.MethodEthRequestAccounts, []string{testAccountLower})

	_, err := w.Connect(context.Background())
	require.NoError(t, err)

	req, ok := host.Last(constants.MethodWalletSwitchChain)
	require.True(t, ok)
	assert.JSONEq(t, `[{"chainId":"0x89"}]`, string(req.Params))
	assert.Equal(t, "0x89", w.State().ChainID)
	assert.Equal(t, "POL", w.symbol())
}

func TestConnectAddsUnknownChain(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{ChainID: "0x2105", RPCURL: "https://mainnet.base.org"})
	host.Fail(constants.MethodWalletSwitchChain, "Unrecognized chain ID", constants.UnrecognizedChainCode)
	host.Reply(constants.MethodWalletAddChain, nil)
	host.Reply(constants.MethodEthRequestAccounts, []string{testAccountLower})

	_, err := w.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		constants.MethodWalletSwitchChain,
		constants.MethodWalletAddChain,
		constants.MethodEthRequestAccounts,
	}, host.Methods())

	req, _ := host.Last(constants.MethodWalletAddChain)
	var params []ChainParams
	require.NoError(t, req.Decode(&params))
	require.Len(t, params, 1)
	assert.Equal(t, "0x2105", params[0].ChainID)
	assert.Equal(t, constants.DefaultChainName, params[0].ChainName)
	assert.Equal(t, NativeCurrency{Name: "Token", Symbol: "TKN", Decimals: 18}, params[0].NativeCurrency)
	assert.Equal(t, []string{"https://mainnet.base.org"}, params[0].RPCURLs)
	assert.Empty(t, params[0].BlockExplorerURLs)

	snap := w.State()
	assert.Equal(t, "0x2105", snap.ChainID)
	assert.Empty(t, snap.LastError, "the successful add clears the switch failure")
}

func TestConnectAddsUnknownChainFromMetadata(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{ChainID: "8453"})
	w.metadata = StaticMetadata{8453: {
		ChainID:   8453,
		Name:      "Base",
		Currency:  NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:   []string{"https://mainnet.base.org"},
		Explorers: []string{"https://basescan.org"},
	}}
	host.Fail(constants.MethodWalletSwitchChain, "Unrecognized chain ID", constants.UnrecognizedChainCode)
	host.Reply(constants.MethodWalletAddChain, nil)
	host.Reply(constants.MethodEthRequestAccounts, []string{testAccountLower})

	_, err := w.Connect(context.Background())
	require.NoError(t, err)

	req, _ := host.Last(constants.MethodWalletAddChain)
	var params []ChainParams
	require.NoError(t, req.Decode(&params))
	assert.Equal(t, "Base", params[0].ChainName)
	assert.Equal(t, "ETH", params[0].NativeCurrency.Symbol)
	assert.Equal(t, []string{"https://basescan.org"}, params[0].BlockExplorerURLs)
}

func TestConnectUnknownChainWithoutRPC(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{ChainID: "0x2105"})
	host.Fail(constants.MethodWalletSwitchChain, "Unrecognized chain ID", constants.UnrecognizedChainCode)

	_, err := w.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedChain))

	var unrecognized *UnrecognizedChainError
	require.True(t, errors.As(err, &unrecognized))
	assert.Equal(t, "0x2105", unrecognized.ChainID)

	assert.False(t, w.Connected())
	assert.Equal(t, []string{constants.MethodWalletSwitchChain}, host.Methods())
}

func TestSwitchChainOtherHostError(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	host.Fail(constants.MethodWalletSwitchChain, "User rejected the request.", 4001)

	err := w.SwitchChain(context.Background(), "0x1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnrecognizedChain))
	assert.Equal(t, "User rejected the request.", w.State().LastError)
}

func TestAddChainValidation(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})

	err := w.AddChain(context.Background(), ChainParams{ChainID: "0x1"})
	assert.ErrorIs(t, err, chains.ErrInvalidParams)

	err = w.AddChain(context.Background(), ChainParams{ChainID: "0x1", RPCURLs: []string{"http://rpc.example.com"}})
	assert.ErrorIs(t, err, chains.ErrInvalidParams)

	err = w.AddChain(context.Background(), ChainParams{ChainID: "zero", RPCURLs: []string{"https://rpc.example.com"}})
	assert.ErrorIs(t, err, chains.ErrInvalidParams)

	assert.Empty(t, host.Calls())
}

func TestGetBalance(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)
	host.Reply(constants.MethodEthGetBalance, "0x2540be400")

	balance, err := w.GetBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10000000000), balance.Base)
	assert.Equal(t, int32(18), balance.Decimals)
	assert.Equal(t, "0.00000001", balance.Amount().String())

	req, _ := host.Last(constants.MethodEthGetBalance)
	assert.JSONEq(t, `["`+testAccountChecked+`","latest"]`, string(req.Params))
}

func TestGetBalanceOfOtherAddress(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	host.Reply(constants.MethodEthGetBalance, "0x0")

	balance, err := w.GetBalance(context.Background(), testRecipient)
	require.NoError(t, err)
	assert.True(t, balance.Amount().IsZero())

	_, err = w.GetBalance(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, chains.ErrInvalidParams)
}

func TestGetBalanceMalformed(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)
	host.Reply(constants.MethodEthGetBalance, "lots")

	_, err := w.GetBalance(context.Background(), "")
	var unexpected *chains.UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
	assert.NotEmpty(t, w.State().LastError)
}

func TestOperationsRequireConnection(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	ctx := context.Background()
	tx := &chains.TxRequest{To: testRecipient, Amount: big.NewInt(1)}

	_, err := w.PublicKey()
	assert.ErrorIs(t, err, chains.ErrNotConnected)
	_, err = w.GetBalance(ctx, "")
	assert.ErrorIs(t, err, chains.ErrNotConnected)
	_, err = w.SignMessage(ctx, "hello")
	assert.ErrorIs(t, err, chains.ErrNotConnected)
	_, err = w.SignTransaction(ctx, tx)
	assert.ErrorIs(t, err, chains.ErrNotConnected)
	_, err = w.SignAndSendTransaction(ctx, tx)
	assert.ErrorIs(t, err, chains.ErrNotConnected)

	assert.Empty(t, host.Calls())
	snap := w.State()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.LastError)
}

func TestDisconnectThenReconnect(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)

	var events []string
	w.On(constants.EventDisconnect, func(e state.Event) error { events = append(events, e.Name); return nil })

	require.NoError(t, w.Disconnect(context.Background()))
	assert.False(t, w.Connected())
	assert.Equal(t, []string{constants.EventDisconnect}, events)

	_, err := w.Connect(context.Background())
	require.NoError(t, err)
	key, err := w.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, w.State().Accounts[0], key)
}

func TestSignMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	w, host, _ := newTestWallet(t, chains.Config{})
	host.Reply(constants.MethodEthRequestAccounts, []string{signer.Hex()})
	_, err = w.Connect(context.Background())
	require.NoError(t, err)

	host.Handle(constants.MethodPersonalSign, func(req bridgetest.Request) (any, error) {
		var params []string
		require.NoError(t, req.Decode(&params))
		assert.Equal(t, signer.Hex(), params[1])
		msg, err := hexutil.Decode(params[0])
		require.NoError(t, err)

		sig, err := crypto.Sign(accounts.TextHash(msg), key)
		require.NoError(t, err)
		sig[64] += 27
		return hexutil.Encode(sig), nil
	})

	sig, err := w.SignMessage(context.Background(), "hello wallet")
	require.NoError(t, err)
	assert.Len(t, sig.Bytes, 65)
	assert.Equal(t, signer.Hex(), sig.Signer)

	recovered, err := RecoverPersonalSigner("hello wallet", sig.Bytes)
	require.NoError(t, err)
	assert.Equal(t, signer, recovered)
}

func TestSignMessageHostDenied(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)
	host.Fail(constants.MethodPersonalSign, "denied", 0)

	_, err := w.SignMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "denied", err.Error())
	assert.Equal(t, "denied", w.State().LastError)

	// next successful call clears the error
	host.Reply(constants.MethodEthGetBalance, "0x1")
	_, err = w.GetBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, w.State().LastError)
}

func TestSignMessageRejectsEmpty(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)

	_, err := w.SignMessage(context.Background(), "")
	assert.ErrorIs(t, err, chains.ErrInvalidParams)
}

func mailTypedData(t *testing.T) string {
	t.Helper()
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Mail": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:              "Ether Mail",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0xcccccccccccccccccccccccccccccccccccccccc",
		},
		Message: apitypes.TypedDataMessage{
			"from":     "0xcd2a3d9f938e13cd947ec05abc7fe734df8dd826",
			"to":       "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			"contents": "Hello, Bob!",
		},
	}
	raw, err := json.Marshal(typedData)
	require.NoError(t, err)
	return string(raw)
}

func TestSignTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	w, host, _ := newTestWallet(t, chains.Config{})
	host.Reply(constants.MethodEthRequestAccounts, []string{signer.Hex()})
	_, err = w.Connect(context.Background())
	require.NoError(t, err)

	host.Handle(constants.MethodEthSignTypedDataV4, func(req bridgetest.Request) (any, error) {
		var params []string
		require.NoError(t, req.Decode(&params))
		_, digest, err := ParseTypedData(params[1])
		require.NoError(t, err)
		sig, err := crypto.Sign(digest, key)
		require.NoError(t, err)
		return hexutil.Encode(sig), nil
	})

	typedData := mailTypedData(t)
	sig, err := w.SignTypedData(context.Background(), typedData)
	require.NoError(t, err)

	_, digest, err := ParseTypedData(typedData)
	require.NoError(t, err)
	recovered, err := RecoverSigner(digest, sig.Bytes)
	require.NoError(t, err)
	assert.Equal(t, signer, recovered)
}

func TestSignTypedDataValidation(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)

	tests := []struct {
		name      string
		typedData string
	}{
		{name: "not json", typedData: "{"},
		{name: "missing primary type", typedData: `{"types":{"EIP712Domain":[]},"domain":{},"message":{}}`},
		{name: "undeclared primary type", typedData: `{"types":{"EIP712Domain":[]},"primaryType":"Mail","domain":{},"message":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.SignTypedData(context.Background(), tt.typedData)
			assert.ErrorIs(t, err, chains.ErrInvalidParams)
		})
	}
	assert.Equal(t, []string{constants.MethodEthRequestAccounts}, host.Methods())
}

func TestSignTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress(testRecipient)

	unsigned := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1000),
	})
	signedTx, err := ethtypes.SignTx(unsigned, ethtypes.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	raw, err := signedTx.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload any
	}{
		{name: "raw string", payload: hexutil.Encode(raw)},
		{name: "raw object", payload: map[string]any{"raw": hexutil.Encode(raw), "tx": map[string]string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, host, _ := newTestWallet(t, chains.Config{})
			connect(t, w, host)
			host.Reply(constants.MethodEthSignTransaction, tt.payload)

			signed, err := w.SignTransaction(context.Background(), &chains.TxRequest{
				To:     testRecipient,
				Amount: big.NewInt(1000),
				Extra:  map[string]any{"gas": uint64(21000)},
			})
			require.NoError(t, err)
			assert.Equal(t, signedTx.Hash().Hex(), signed.TxID)
			assert.Equal(t, raw, signed.Raw)

			req, _ := host.Last(constants.MethodEthSignTransaction)
			var params []map[string]string
			require.NoError(t, req.Decode(&params))
			assert.Equal(t, testAccountChecked, params[0]["from"])
			assert.Equal(t, "0x3e8", params[0]["value"])
			assert.Equal(t, "0x5208", params[0]["gas"])
		})
	}
}

func TestSendSignedTransaction(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	hash := "0x" + string(bytes.Repeat([]byte("ab"), 32))
	host.Reply(constants.MethodEthSendRawTransaction, hash)

	result, err := w.SendSignedTransaction(context.Background(), &chains.SignedTx{Raw: []byte{0x02, 0x01}})
	require.NoError(t, err)
	assert.Equal(t, hash, result.TxID)

	req, _ := host.Last(constants.MethodEthSendRawTransaction)
	assert.JSONEq(t, `["0x0201"]`, string(req.Params))

	_, err = w.SendSignedTransaction(context.Background(), nil)
	assert.ErrorIs(t, err, chains.ErrInvalidParams)
}

func TestSignAndSendTransaction(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)
	hash := "0x" + string(bytes.Repeat([]byte("0f"), 32))
	host.Reply(constants.MethodEthSendTransaction, hash)

	result, err := w.SignAndSendTransaction(context.Background(), &chains.TxRequest{
		To:     testRecipient,
		Amount: big.NewInt(1_000_000_000_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, hash, result.TxID)
	assert.False(t, result.Confirmed)

	req, _ := host.Last(constants.MethodEthSendTransaction)
	var params []map[string]string
	require.NoError(t, req.Decode(&params))
	assert.Equal(t, map[string]string{
		"from":  testAccountChecked,
		"to":    common.HexToAddress(testRecipient).Hex(),
		"value": "0x38d7ea4c68000",
	}, params[0])
}

func TestSignAndSendTransactionValidation(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)

	tests := []struct {
		name string
		tx   *chains.TxRequest
	}{
		{name: "nil", tx: nil},
		{name: "zero amount", tx: &chains.TxRequest{To: testRecipient, Amount: big.NewInt(0)}},
		{name: "bad recipient", tx: &chains.TxRequest{To: "0x123", Amount: big.NewInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.SignAndSendTransaction(context.Background(), tt.tx)
			assert.ErrorIs(t, err, chains.ErrInvalidParams)
		})
	}
	assert.Equal(t, []string{constants.MethodEthRequestAccounts}, host.Methods())
}

func TestSignAndSendTransactionBadHash(t *testing.T) {
	w, host, _ := newTestWallet(t, chains.Config{})
	connect(t, w, host)
	host.Reply(constants.MethodEthSendTransaction, "0x1234")

	_, err := w.SignAndSendTransaction(context.Background(), &chains.TxRequest{To: testRecipient, Amount: big.NewInt(1)})
	var unexpected *chains.UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
}

func TestHostNotifications(t *testing.T) {
	w, host, transport := newTestWallet(t, chains.Config{ChainID: "1"})
	host.Reply(constants.MethodWalletSwitchChain, nil)
	connect(t, w, host)

	var chainEvents []any
	w.On(constants.EventChainChanged, func(e state.Event) error {
		chainEvents = append(chainEvents, e.Value)
		return nil
	})

	transport.Notify(bridge.Notification{Event: constants.EventAccountsChanged, Data: json.RawMessage(`["` + testRecipient + `"]`)})
	assert.Equal(t, common.HexToAddress(testRecipient).Hex(), w.State().Accounts[0])

	transport.Notify(bridge.Notification{Event: constants.EventChainChanged, Data: json.RawMessage(`137`)})
	transport.Notify(bridge.Notification{Event: constants.EventChainChanged, Chain: "SOLANA", Data: json.RawMessage(`"devnet"`)})
	transport.Notify(bridge.Notification{Event: constants.EventChainChanged, Data: json.RawMessage(`"0xa"`)})
	assert.Equal(t, []any{"0x89", "0xa"}, chainEvents)

	transport.Notify(bridge.Notification{Event: constants.EventAccountsChanged, Data: json.RawMessage(`["junk"]`)})
	assert.True(t, w.Connected())

	transport.Notify(bridge.Notification{Event: constants.EventDisconnect})
	assert.False(t, w.Connected())
}

func TestNewRejectsBadChainID(t *testing.T) {
	_, err := New(chains.Config{ChainID: "mainnet"})
	assert.ErrorIs(t, err, chains.ErrInvalidParams)
}

func TestNormalizeChainID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "1", expected: "0x1"},
		{input: "137", expected: "0x89"},
		{input: "0x89", expected: "0x89"},
		{input: "0X0089", expected: "0x89"},
		{input: "0", wantErr: true},
		{input: "-5", wantErr: true},
		{input: "0xzz", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeChainID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, chains.ErrInvalidParams)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateTxHash(t *testing.T) {
	valid := "0x" + string(bytes.Repeat([]byte("a"), 64))
	got, err := ValidateTxHash(valid[2:])
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	_, err = ValidateTxHash("0x1234")
	assert.Error(t, err)

	_, err = ValidateTxHash("0x" + string(bytes.Repeat([]byte("g"), 64)))
	assert.Error(t, err)
}

func TestAddressesEqual(t *testing.T) {
	assert.True(t, AddressesEqual(testAccountLower, testAccountChecked))
	assert.False(t, AddressesEqual(testAccountLower, testRecipient))
}
