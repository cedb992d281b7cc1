// Package state holds the reconciled view of one wallet connection and
// notifies listeners when it changes.
package state

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

// Snapshot is an immutable copy of the wallet state
type Snapshot struct {
	Connected bool     `json:"connected"`
	ChainTag  string   `json:"chainTag"`
	ChainID   string   `json:"chainId"`
	Accounts  []string `json:"accounts"`
	LastError string   `json:"lastError,omitempty"`
}

// ActiveAccount returns the first authorized account, or "" when disconnected
func (s Snapshot) ActiveAccount() string {
	if len(s.Accounts) == 0 {
		return ""
	}
	return s.Accounts[0]
}

func (s Snapshot) clone() Snapshot {
	s.Accounts = slices.Clone(s.Accounts)
	return s
}

func (s Snapshot) equal(o Snapshot) bool {
	return s.Connected == o.Connected &&
		s.ChainTag == o.ChainTag &&
		s.ChainID == o.ChainID &&
		s.LastError == o.LastError &&
		slices.Equal(s.Accounts, o.Accounts)
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Accounts   *[]string
	ChainID    *string
	LastError  *string
	ClearError bool
}

// Event is delivered to listeners and channel subscribers
type Event struct {
	Name  string
	Value any
}

// Handler receives events. A returned error is recorded as the last error.
type Handler func(Event) error

// ListenerID identifies one registration made with On
type ListenerID uint64

// WalletState is safe for concurrent use. Handlers run outside the lock.
type WalletState struct {
	logger   *slog.Logger
	chainTag string

	mu   sync.RWMutex
	snap Snapshot

	listenersMu sync.RWMutex
	listeners   map[string]map[ListenerID]Handler
	order       map[string][]ListenerID
	nextID      ListenerID

	feed event.Feed
}

// New creates the state for a wallet of the given chain tag
func New(chainTag, chainID string, logger *slog.Logger) *WalletState {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletState{
		logger:    logger,
		chainTag:  chainTag,
		snap:      Snapshot{ChainTag: chainTag, ChainID: chainID},
		listeners: make(map[string]map[ListenerID]Handler),
		order:     make(map[string][]ListenerID),
	}
}

// Snapshot returns a copy of the current state
func (s *WalletState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Update applies p and emits one event per changed dimension followed by stateChanged.
// Connected is always derived from the account list.
func (s *WalletState) Update(p Patch) {
	s.update(p, false)
}

// update applies p under the lock. With skipUnchanged nothing is emitted when
// p leaves the snapshot as it was.
func (s *WalletState) update(p Patch, skipUnchanged bool) {
	s.mu.Lock()
	prev := s.snap.clone()
	next := s.snap

	if p.Accounts != nil {
		next.Accounts = slices.Clone(*p.Accounts)
	}
	if p.ChainID != nil {
		next.ChainID = *p.ChainID
	}
	if p.ClearError {
		next.LastError = ""
	}
	if p.LastError != nil {
		next.LastError = *p.LastError
	}
	next.Connected = len(next.Accounts) > 0
	if skipUnchanged && prev.equal(next) {
		s.mu.Unlock()
		return
	}
	s.snap = next
	cur := next.clone()
	s.mu.Unlock()

	var events []Event
	if prev.Connected != cur.Connected {
		name := constants.EventDisconnect
		if cur.Connected {
			name = constants.EventConnect
		}
		events = append(events, Event{Name: name, Value: cur.Connected})
	}
	if prev.ChainID != cur.ChainID {
		events = append(events, Event{Name: constants.EventChainChanged, Value: cur.ChainID})
	}
	if !slices.Equal(prev.Accounts, cur.Accounts) {
		events = append(events, Event{Name: constants.EventAccountsChanged, Value: slices.Clone(cur.Accounts)})
	}
	events = append(events, Event{Name: constants.EventStateChanged, Value: cur})

	for _, ev := range events {
		s.Emit(ev.Name, ev.Value)
	}
}

// SetAccounts replaces the account list
func (s *WalletState) SetAccounts(accounts []string) {
	s.Update(Patch{Accounts: &accounts})
}

// SetChainID replaces the chain id
func (s *WalletState) SetChainID(chainID string) {
	s.Update(Patch{ChainID: &chainID})
}

// Reset clears accounts and the last error, keeping the chain id
func (s *WalletState) Reset() {
	empty := []string{}
	s.Update(Patch{Accounts: &empty, ClearError: true})
}

// RecordError stores err as the last error. A nil err clears it.
// Nothing is emitted when the value does not change.
func (s *WalletState) RecordError(err error) {
	if err == nil {
		s.update(Patch{ClearError: true}, true)
		return
	}
	msg := err.Error()
	s.update(Patch{LastError: &msg}, true)
}

// On registers h for the named event and returns an id for RemoveListener
func (s *WalletState) On(name string, h Handler) ListenerID {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextID++
	id := s.nextID
	if s.listeners[name] == nil {
		s.listeners[name] = make(map[ListenerID]Handler)
	}
	s.listeners[name][id] = h
	s.order[name] = append(s.order[name], id)
	return id
}

// RemoveListener unregisters id from the named event. It reports whether anything was removed.
func (s *WalletState) RemoveListener(name string, id ListenerID) bool {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if _, ok := s.listeners[name][id]; !ok {
		return false
	}
	delete(s.listeners[name], id)
	s.order[name] = slices.DeleteFunc(s.order[name], func(v ListenerID) bool { return v == id })
	return true
}

// ListenerCount returns the number of handlers registered for name
func (s *WalletState) ListenerCount(name string) int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners[name])
}

// Emit calls every handler registered for name, in registration order.
// A failing handler does not prevent the others from running.
func (s *WalletState) Emit(name string, value any) {
	s.listenersMu.RLock()
	ids := s.order[name]
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.listeners[name][id])
	}
	s.listenersMu.RUnlock()

	ev := Event{Name: name, Value: value}
	for _, h := range handlers {
		if err := s.invoke(h, ev); err != nil {
			s.logger.Error("Wallet event handler failed", "event", name, "chain", s.chainTag, "error", err)
			s.setErrorSilently(err.Error())
		}
	}

	s.feed.Send(ev)
}

func (s *WalletState) invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", ev.Name, r)
		}
	}()
	return h(ev)
}

// setErrorSilently records a handler failure without emitting, so a failing
// stateChanged handler cannot trigger itself again.
func (s *WalletState) setErrorSilently(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
}

// Subscribe delivers every emitted event to ch until the subscription is cancelled.
// Sends block, so ch should be buffered or drained promptly.
func (s *WalletState) Subscribe(ch chan<- Event) event.Subscription {
	return s.feed.Subscribe(ch)
}
