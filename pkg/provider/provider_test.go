package provider

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/bridge/bridgetest"
	"github.com/sigweihq/walletbridge/pkg/chains/tron"
	"github.com/sigweihq/walletbridge/pkg/state"
)

const (
	evmAccount         = "0x52908400098527886e0f7030069857d2e4169ee7"
	evmAccountChecksum = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTransport(t *testing.T) (*bridge.Transport, *bridgetest.Host) {
	t.Helper()
	return bridgetest.NewTransport(bridge.WithLogger(quietLogger()))
}

func tronAddress(b byte) tron.Address {
	return tron.AddressFromEVM(bytes.Repeat([]byte{b}, 20))
}

// recorder collects events delivered to a handler
type recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *recorder) handle(ev state.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func stateEvent(name string, value any) state.Event {
	return state.Event{Name: name, Value: value}
}
