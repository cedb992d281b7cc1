package state

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState() *WalletState {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	return New(constants.ChainEVM, "0x1", logger)
}

// record registers a handler on every event and returns the observed names
func record(s *WalletState) *[]string {
	var names []string
	for _, ev := range []string{
		constants.EventConnect,
		constants.EventDisconnect,
		constants.EventChainChanged,
		constants.EventAccountsChanged,
		constants.EventStateChanged,
	} {
		s.On(ev, func(e Event) error {
			names = append(names, e.Name)
			return nil
		})
	}
	return &names
}

func TestUpdateEmitsPerChangedDimension(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *WalletState)
		patch    func() Patch
		expected []string
	}{
		{
			name:  "connect",
			setup: func(s *WalletState) {},
			patch: func() Patch {
				accounts := []string{"0xabc"}
				return Patch{Accounts: &accounts}
			},
			expected: []string{constants.EventConnect, constants.EventAccountsChanged, constants.EventStateChanged},
		},
		{
			name:  "disconnect",
			setup: func(s *WalletState) { s.SetAccounts([]string{"0xabc"}) },
			patch: func() Patch {
				accounts := []string{}
				return Patch{Accounts: &accounts}
			},
			expected: []string{constants.EventDisconnect, constants.EventAccountsChanged, constants.EventStateChanged},
		},
		{
			name:  "account switch keeps connection",
			setup: func(s *WalletState) { s.SetAccounts([]string{"0xabc"}) },
			patch: func() Patch {
				accounts := []string{"0xdef"}
				return Patch{Accounts: &accounts}
			},
			expected: []string{constants.EventAccountsChanged, constants.EventStateChanged},
		},
		{
			name:  "chain change",
			setup: func(s *WalletState) {},
			patch: func() Patch {
				chainID := "0x89"
				return Patch{ChainID: &chainID}
			},
			expected: []string{constants.EventChainChanged, constants.EventStateChanged},
		},
		{
			name:  "same chain id only emits stateChanged",
			setup: func(s *WalletState) {},
			patch: func() Patch {
				chainID := "0x1"
				return Patch{ChainID: &chainID}
			},
			expected: []string{constants.EventStateChanged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState()
			tt.setup(s)
			names := record(s)

			s.Update(tt.patch())
			assert.Equal(t, tt.expected, *names)
		})
	}
}

func TestConnectedDerivedFromAccounts(t *testing.T) {
	s := newTestState()
	assert.False(t, s.Snapshot().Connected)

	s.SetAccounts([]string{"0xabc", "0xdef"})
	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, "0xabc", snap.ActiveAccount())

	s.Reset()
	snap = s.Snapshot()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.Accounts)
	assert.Equal(t, "0x1", snap.ChainID)
	assert.Equal(t, constants.ChainEVM, snap.ChainTag)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestState()
	s.SetAccounts([]string{"0xabc"})

	snap := s.Snapshot()
	snap.Accounts[0] = "tampered"
	assert.Equal(t, "0xabc", s.Snapshot().ActiveAccount())
}

func TestEventValues(t *testing.T) {
	s := newTestState()

	var connected any
	var accounts any
	var full any
	s.On(constants.EventConnect, func(e Event) error { connected = e.Value; return nil })
	s.On(constants.EventAccountsChanged, func(e Event) error { accounts = e.Value; return nil })
	s.On(constants.EventStateChanged, func(e Event) error { full = e.Value; return nil })

	s.SetAccounts([]string{"0xabc"})

	assert.Equal(t, true, connected)
	assert.Equal(t, []string{"0xabc"}, accounts)
	require.IsType(t, Snapshot{}, full)
	assert.True(t, full.(Snapshot).Connected)
}

func TestFailingHandlerDoesNotStopOthers(t *testing.T) {
	s := newTestState()

	secondCalled := false
	s.On(constants.EventAccountsChanged, func(e Event) error {
		return errors.New("listener exploded")
	})
	s.On(constants.EventAccountsChanged, func(e Event) error {
		secondCalled = true
		return nil
	})

	s.SetAccounts([]string{"0xabc"})

	assert.True(t, secondCalled)
	assert.Equal(t, "listener exploded", s.Snapshot().LastError)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	s := newTestState()

	calls := 0
	s.On(constants.EventStateChanged, func(e Event) error { panic("boom") })
	s.On(constants.EventStateChanged, func(e Event) error { calls++; return nil })

	assert.NotPanics(t, func() { s.SetChainID("0x89") })
	assert.Equal(t, 1, calls)
	assert.Contains(t, s.Snapshot().LastError, "boom")
}

func TestRemoveListener(t *testing.T) {
	s := newTestState()

	calls := 0
	id := s.On(constants.EventChainChanged, func(e Event) error { calls++; return nil })
	assert.Equal(t, 1, s.ListenerCount(constants.EventChainChanged))

	s.SetChainID("0x89")
	assert.True(t, s.RemoveListener(constants.EventChainChanged, id))
	assert.False(t, s.RemoveListener(constants.EventChainChanged, id))
	s.SetChainID("0xa")

	assert.Equal(t, 1, calls)
	assert.Zero(t, s.ListenerCount(constants.EventChainChanged))
}

func TestRecordError(t *testing.T) {
	s := newTestState()
	names := record(s)

	s.RecordError(errors.New("denied"))
	assert.Equal(t, "denied", s.Snapshot().LastError)

	// unchanged error does not emit again
	s.RecordError(errors.New("denied"))
	assert.Len(t, *names, 1)

	s.RecordError(nil)
	assert.Empty(t, s.Snapshot().LastError)
	assert.Len(t, *names, 2)

	s.RecordError(nil)
	assert.Len(t, *names, 2)
}

func TestRecordErrorConcurrent(t *testing.T) {
	tests := []struct {
		name   string
		before error
		record error
		want   string
	}{
		{name: "clear", before: errors.New("denied"), record: nil, want: ""},
		{name: "same error", before: nil, record: errors.New("denied"), want: "denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState()
			s.RecordError(tt.before)

			var emitted atomic.Int32
			s.On(constants.EventStateChanged, func(Event) error {
				emitted.Add(1)
				return nil
			})

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.RecordError(tt.record)
				}()
			}
			wg.Wait()

			assert.Equal(t, tt.want, s.Snapshot().LastError)
			assert.Equal(t, int32(1), emitted.Load())
		})
	}
}

func TestRecordErrorKeepsConcurrentUpdates(t *testing.T) {
	s := newTestState()
	s.RecordError(errors.New("denied"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.RecordError(nil)
		}()
		go func() {
			defer wg.Done()
			s.SetAccounts([]string{"0xabc"})
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.Equal(t, []string{"0xabc"}, snap.Accounts)
	assert.True(t, snap.Connected)
}

func TestSubscribe(t *testing.T) {
	s := newTestState()

	ch := make(chan Event, 8)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	s.SetAccounts([]string{"0xabc"})

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case ev := <-ch:
			got = append(got, ev.Name)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{constants.EventConnect, constants.EventAccountsChanged, constants.EventStateChanged}, got)
}
