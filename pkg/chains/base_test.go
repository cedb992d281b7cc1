package chains_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/bridge/bridgetest"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChainTag(t *testing.T) {
	tests := []struct {
		input   string
		want    chains.ChainTag
		wantErr bool
	}{
		{input: "evm", want: chains.EVM},
		{input: " Ethereum ", want: chains.EVM},
		{input: "solana", want: chains.Solana},
		{input: "SOL", want: chains.Solana},
		{input: "tron", want: chains.Tron},
		{input: "trx", want: chains.Tron},
		{input: "bitcoin", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := chains.ParseChainTag(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, chains.ErrUnsupportedChain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseRequireConnected(t *testing.T) {
	base := chains.NewBase(chains.EVM, chains.Config{ChainID: "0x1"})

	_, err := base.PublicKey()
	assert.ErrorIs(t, err, chains.ErrNotConnected)
	assert.Empty(t, base.State().LastError, "validation failures must not touch state")

	base.SetAccounts([]string{"0xabc"})
	key, err := base.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, "0xabc", key)
	assert.True(t, base.Connected())
}

func TestBaseCallRecordsAndClearsLastError(t *testing.T) {
	transport, host := bridgetest.NewTransport()
	host.Fail("personal_sign", "denied", 0)
	host.Reply("eth_chainId", "0x1")

	base := chains.NewBase(chains.EVM, chains.Config{Transport: transport})

	err := base.Call(context.Background(), "personal_sign", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "denied", err.Error())
	assert.Equal(t, "denied", base.State().LastError)

	var chainID string
	require.NoError(t, base.Call(context.Background(), "eth_chainId", nil, &chainID))
	assert.Equal(t, "0x1", chainID)
	assert.Empty(t, base.State().LastError)
}

func TestBaseCallWithoutTransport(t *testing.T) {
	base := chains.NewBase(chains.Solana, chains.Config{})

	err := base.Call(context.Background(), "connect", nil, nil)
	assert.ErrorIs(t, err, bridge.ErrBridgeUnavailable)
	assert.Equal(t, bridge.ErrBridgeUnavailable.Error(), base.State().LastError)
}

func TestBaseCallUnexpectedShape(t *testing.T) {
	transport, host := bridgetest.NewTransport()
	host.Reply("connect", []string{"not", "an", "object"})

	base := chains.NewBase(chains.Solana, chains.Config{Transport: transport})

	var out struct {
		PublicKey string `json:"publicKey"`
	}
	err := base.Call(context.Background(), "connect", nil, &out)
	var unexpected *chains.UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
	assert.Equal(t, "connect", unexpected.Method)
}

func TestValidationHelpers(t *testing.T) {
	assert.ErrorIs(t, chains.RequireNonEmpty("to", "  "), chains.ErrInvalidParams)
	assert.NoError(t, chains.RequireNonEmpty("to", "abc"))

	assert.ErrorIs(t, chains.RequirePositive("amount", nil), chains.ErrInvalidParams)
	assert.ErrorIs(t, chains.RequirePositive("amount", big.NewInt(0)), chains.ErrInvalidParams)
	assert.NoError(t, chains.RequirePositive("amount", big.NewInt(1)))

	assert.ErrorIs(t, chains.RequireTx(nil), chains.ErrInvalidParams)
}

func TestBalanceAmount(t *testing.T) {
	b := chains.NewBalance(big.NewInt(2500000000), 9, "SOL")
	assert.Equal(t, "2.5", b.Amount().String())
	assert.Equal(t, "2.5 SOL", b.String())

	zero := chains.NewBalance(nil, 6, "TRX")
	assert.True(t, zero.Amount().IsZero())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, chains.Config{ChainType: "evm", RPCURL: "https://mainnet.base.org"}.Validate())
	assert.ErrorIs(t, chains.Config{ChainType: "dogecoin"}.Validate(), chains.ErrUnsupportedChain)
	assert.ErrorIs(t, chains.Config{ChainType: "tron", RPCURL: "http://rpc.example.com"}.Validate(), chains.ErrInvalidParams)
}
