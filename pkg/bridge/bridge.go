// Package bridge multiplexes wallet calls over the single message channel exposed
// by the wallet host (a mobile shell, a desktop webview or a local agent).
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

// Host answers a request envelope inline
type Host interface {
	PostMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// HostFunc adapts a function to the Host interface
type HostFunc func(ctx context.Context, msg []byte) ([]byte, error)

func (f HostFunc) PostMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return f(ctx, msg)
}

// AsyncHost accepts a request envelope and answers later through Transport.Deliver
type AsyncHost interface {
	Send(ctx context.Context, msg []byte) error
}

// Request is the envelope handed to the host
type Request struct {
	Method    string `json:"method"`
	Params    any    `json:"params"`
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
}

// Notification is a host-originated event such as accountsChanged.
// Chain is empty when the event applies to every chain family.
type Notification struct {
	Event string          `json:"event"`
	Chain string          `json:"chain,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// AppliesTo reports whether n targets the given chain tag
func (n Notification) AppliesTo(tag string) bool {
	return n.Chain == "" || strings.EqualFold(n.Chain, tag)
}

// NotificationHandler receives host notifications
type NotificationHandler func(Notification)

// Transport is the bridge between wallet adapters and the host
type Transport struct {
	logger *slog.Logger
	call   CallFunc

	mu      sync.RWMutex
	host    Host
	async   AsyncHost
	pending map[string]chan json.RawMessage

	notifyMu  sync.RWMutex
	handlers  map[uint64]NotificationHandler
	nextNotif uint64

	middleware []Middleware
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the transport logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMiddleware appends middleware to the call chain; the first one added runs outermost
func WithMiddleware(mw ...Middleware) Option {
	return func(t *Transport) {
		t.middleware = append(t.middleware, mw...)
	}
}

// WithAsyncHost attaches a host that answers through Deliver
func WithAsyncHost(host AsyncHost) Option {
	return func(t *Transport) {
		t.async = host
	}
}

// New creates a transport over host. host may be nil, in which case every call
// fails with ErrBridgeUnavailable until a host is attached.
func New(host Host, opts ...Option) *Transport {
	t := &Transport{
		logger:   slog.Default(),
		host:     host,
		pending:  make(map[string]chan json.RawMessage),
		handlers: make(map[uint64]NotificationHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.call = chain(t.dispatch, t.middleware)
	return t
}

// Attach replaces the synchronous host
func (t *Transport) Attach(host Host) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = host
}

// Available reports whether a host is attached
func (t *Transport) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.host != nil || t.async != nil
}

// Call sends method with params to the host and returns the response payload.
// A payload carrying an error field is returned as *HostError.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, errors.New("bridge: method is required")
	}
	req := &Request{
		Method:    method,
		Params:    params,
		RequestID: NewRequestID(),
		Timestamp: utils.GetCurrentTimeMillis(),
	}
	return t.call(ctx, req)
}

func (t *Transport) dispatch(ctx context.Context, req *Request) (json.RawMessage, error) {
	t.mu.RLock()
	host, async := t.host, t.async
	t.mu.RUnlock()

	if host == nil && async == nil {
		return nil, ErrBridgeUnavailable
	}

	msg, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to encode %s request: %w", req.Method, err)
	}

	var payload []byte
	if host != nil {
		payload, err = host.PostMessage(ctx, msg)
	} else {
		payload, err = t.roundTrip(ctx, async, req.RequestID, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("bridge: %s failed: %w", req.Method, err)
	}

	return classify(req.Method, payload)
}

func (t *Transport) roundTrip(ctx context.Context, host AsyncHost, id string, msg []byte) ([]byte, error) {
	ch := make(chan json.RawMessage, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := host.Send(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of asynchronous calls awaiting a response
func (t *Transport) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// Deliver hands a message from an asynchronous host to the transport. Responses
// look like {"requestId": ..., "payload": ...}; notifications like {"event": ..., "data": ...}.
func (t *Transport) Deliver(msg []byte) error {
	var in struct {
		RequestID string          `json:"requestId"`
		Payload   json.RawMessage `json:"payload"`
		Event     string          `json:"event"`
		Chain     string          `json:"chain"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &in); err != nil {
		return fmt.Errorf("bridge: failed to decode delivered message: %w", err)
	}

	switch {
	case in.RequestID != "":
		t.mu.Lock()
		ch, ok := t.pending[in.RequestID]
		delete(t.pending, in.RequestID)
		t.mu.Unlock()
		if !ok {
			t.logger.Warn("Dropping response for unknown request", "requestId", in.RequestID)
			return fmt.Errorf("%w: %s", ErrUnknownRequest, in.RequestID)
		}
		ch <- in.Payload
		return nil
	case in.Event != "":
		t.Notify(Notification{Event: in.Event, Chain: in.Chain, Data: in.Data})
		return nil
	default:
		return errors.New("bridge: delivered message has neither requestId nor event")
	}
}

// OnNotification registers h for host notifications and returns a function removing it
func (t *Transport) OnNotification(h NotificationHandler) func() {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	id := t.nextNotif
	t.nextNotif++
	t.handlers[id] = h

	return func() {
		t.notifyMu.Lock()
		defer t.notifyMu.Unlock()
		delete(t.handlers, id)
	}
}

// Notify fans n out to every notification handler
func (t *Transport) Notify(n Notification) {
	t.notifyMu.RLock()
	handlers := make([]NotificationHandler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.notifyMu.RUnlock()

	for _, h := range handlers {
		t.runHandler(h, n)
	}
}

func (t *Transport) runHandler(h NotificationHandler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Notification handler panicked", "event", n.Event, "panic", r)
		}
	}()
	h(n)
}

// classify splits a host payload into result or HostError
func classify(method string, payload []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, &MalformedPayloadError{Method: method, Payload: payload, Err: errors.New("invalid JSON")}
	}

	if trimmed[0] == '{' {
		var env struct {
			Error json.RawMessage `json:"error"`
			Code  *int            `json:"code"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, &MalformedPayloadError{Method: method, Payload: payload, Err: err}
		}
		if hasError(env.Error) {
			return nil, newHostError(env.Error, env.Code)
		}
	}

	return json.RawMessage(trimmed), nil
}

// hasError reports whether an error field carries a failure. null, false and
// "" mean success.
func hasError(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}

// NewRequestID returns a correlation id made of the current time in
// milliseconds and a random suffix.
func NewRequestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("req_%d_%s", utils.GetCurrentTimeMillis(), suffix)
}
