package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEthereumServesAccountsLocally(t *testing.T) {
	transport, host := newTransport(t)
	p := NewEthereumProvider(transport, quietLogger())

	raw, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthAccounts})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
	assert.Empty(t, host.Calls())
	assert.Empty(t, p.SelectedAddress())
	assert.False(t, p.IsConnected())
}

func TestEthereumRequestAccounts(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodEthRequestAccounts, []string{evmAccount})
	p := NewEthereumProvider(transport, quietLogger())

	rec := &recorder{}
	p.On(constants.EventAccountsChanged, rec.handle)

	raw, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthRequestAccounts})
	require.NoError(t, err)
	assert.JSONEq(t, `["`+evmAccountChecksum+`"]`, string(raw))
	assert.Equal(t, evmAccountChecksum, p.SelectedAddress())
	assert.True(t, p.IsConnected())
	assert.Equal(t, []string{constants.EventAccountsChanged}, rec.names())

	raw, err = p.Request(context.Background(), RequestArgs{Method: constants.MethodEthAccounts})
	require.NoError(t, err)
	assert.JSONEq(t, `["`+evmAccountChecksum+`"]`, string(raw))
	assert.Equal(t, []string{constants.MethodEthRequestAccounts}, host.Methods())
}

func TestEthereumChainID(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodEthChainID, "0x89")
	p := NewEthereumProvider(transport, quietLogger())

	for i := 0; i < 2; i++ {
		raw, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthChainID})
		require.NoError(t, err)
		assert.JSONEq(t, `"0x89"`, string(raw))
	}
	assert.Equal(t, "0x89", p.ChainID())
	assert.Equal(t, []string{constants.MethodEthChainID}, host.Methods())
}

func TestEthereumSwitchChainUpdatesState(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodWalletSwitchChain, nil)
	p := NewEthereumProvider(transport, quietLogger())

	params := json.RawMessage(`[{"chainId":"0x2105"}]`)
	_, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodWalletSwitchChain, Params: params})
	require.NoError(t, err)
	assert.Equal(t, "0x2105", p.ChainID())

	req, ok := host.Last(constants.MethodWalletSwitchChain)
	require.True(t, ok)
	assert.JSONEq(t, string(params), string(req.Params))
}

func TestEthereumForwarding(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodEthGetBalance, "0x2540be400")
	host.Reply(constants.MethodPersonalSign, "0xabcdef")
	p := NewEthereumProvider(transport, quietLogger())

	raw, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthGetBalance, Params: []any{evmAccount, "latest"}})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x2540be400"`, string(raw))

	raw, err = p.Request(context.Background(), RequestArgs{Method: constants.MethodPersonalSign, Params: []any{"0x68656c6c6f", evmAccount}})
	require.NoError(t, err)
	assert.JSONEq(t, `"0xabcdef"`, string(raw))

	for _, method := range []string{"", "eth", "net_version", "signMessage", "tron_requestAccounts"} {
		_, err := p.Request(context.Background(), RequestArgs{Method: method})
		assert.ErrorIs(t, err, chains.ErrUnsupportedMethod, method)
	}
	assert.Equal(t, []string{constants.MethodEthGetBalance, constants.MethodPersonalSign}, host.Methods())
}

func TestEthereumHostErrorRecorded(t *testing.T) {
	transport, host := newTransport(t)
	host.Fail(constants.MethodEthSendTransaction, "denied", 4001)
	host.Reply(constants.MethodEthGetBalance, "0x0")
	p := NewEthereumProvider(transport, quietLogger())

	_, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthSendTransaction, Params: []any{map[string]string{}}})
	var hostErr *bridge.HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, 4001, hostErr.Code)
	assert.Equal(t, "denied", p.State().LastError)

	_, err = p.Request(context.Background(), RequestArgs{Method: constants.MethodEthGetBalance})
	require.NoError(t, err)
	assert.Empty(t, p.State().LastError)
}

func TestEthereumRejectsMalformedAccounts(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodEthRequestAccounts, []string{"junk"})
	p := NewEthereumProvider(transport, quietLogger())

	_, err := p.Request(context.Background(), RequestArgs{Method: constants.MethodEthRequestAccounts})
	var unexpected *chains.UnexpectedResponseError
	assert.ErrorAs(t, err, &unexpected)
	assert.False(t, p.IsConnected())
}

func TestEthereumNotifications(t *testing.T) {
	transport, _ := newTransport(t)
	p := NewEthereumProvider(transport, quietLogger())
	stop := transport.OnNotification(p.handleNotification)
	defer stop()

	transport.Notify(bridge.Notification{Event: constants.EventAccountsChanged, Data: json.RawMessage(`["` + evmAccount + `"]`)})
	assert.Equal(t, evmAccountChecksum, p.SelectedAddress())

	transport.Notify(bridge.Notification{Event: constants.EventChainChanged, Data: json.RawMessage(`"0xa"`)})
	assert.Equal(t, "0xa", p.ChainID())

	transport.Notify(bridge.Notification{Event: constants.EventChainChanged, Chain: "TRON", Data: json.RawMessage(`"nile"`)})
	assert.Equal(t, "0xa", p.ChainID())

	transport.Notify(bridge.Notification{Event: constants.EventDisconnect})
	assert.False(t, p.IsConnected())
	assert.Equal(t, "0xa", p.ChainID())
}

func TestEthereumEventPayload(t *testing.T) {
	transport, host := newTransport(t)
	host.Reply(constants.MethodEthChainID, "0x1")
	host.Reply(constants.MethodEthAccounts, []string{evmAccount})
	p := NewEthereumProvider(transport, quietLogger())
	require.NoError(t, p.prime(context.Background()))

	assert.Equal(t, map[string]any{"chainId": "0x1"}, p.eventPayload(stateEvent(constants.EventConnect, true)))
	assert.Equal(t, map[string]any{"code": 4900, "message": "disconnected"}, p.eventPayload(stateEvent(constants.EventDisconnect, false)))
	assert.Equal(t, "0x1", p.eventPayload(stateEvent(constants.EventChainChanged, "0x1")))
	assert.Equal(t, map[string]any{"selectedAddress": evmAccountChecksum, "chainId": "0x1"}, p.scriptState())
}
