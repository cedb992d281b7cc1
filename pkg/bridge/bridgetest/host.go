// Package bridgetest provides a scripted in-memory host for exercising wallet adapters.
package bridgetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/bridge"
)

// Responder produces the payload returned for one request
type Responder func(req Request) (any, error)

// Request is a decoded envelope as seen by the host
type Request struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	RequestID string          `json:"requestId"`
	Timestamp int64           `json:"timestamp"`
}

// Decode unmarshals the request params into v
func (r Request) Decode(v any) error {
	return json.Unmarshal(r.Params, v)
}

// Host is a bridge.Host answering from a per-method script and recording every request
type Host struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      []Request
}

// NewHost creates an empty scripted host. Unscripted methods answer {"error": "unsupported method: <name>"}.
func NewHost() *Host {
	return &Host{responders: make(map[string]Responder)}
}

var _ bridge.Host = (*Host)(nil)

// Handle scripts method with a responder
func (h *Host) Handle(method string, r Responder) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responders[method] = r
	return h
}

// Reply scripts method to always answer with payload
func (h *Host) Reply(method string, payload any) *Host {
	return h.Handle(method, func(Request) (any, error) { return payload, nil })
}

// Fail scripts method to answer with a host error payload
func (h *Host) Fail(method, message string, code int) *Host {
	payload := map[string]any{"error": message}
	if code != 0 {
		payload["code"] = code
	}
	return h.Reply(method, payload)
}

// PostMessage implements bridge.Host
func (h *Host) PostMessage(_ context.Context, msg []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil, fmt.Errorf("bridgetest: bad envelope: %w", err)
	}

	h.mu.Lock()
	h.calls = append(h.calls, req)
	r, ok := h.responders[req.Method]
	h.mu.Unlock()

	if !ok {
		return json.Marshal(map[string]string{"error": "unsupported method: " + req.Method})
	}

	payload, err := r(req)
	if err != nil {
		return nil, err
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

// Calls returns the recorded requests
func (h *Host) Calls() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Request, len(h.calls))
	copy(out, h.calls)
	return out
}

// Methods returns the recorded method names in order
func (h *Host) Methods() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.calls))
	for _, c := range h.calls {
		out = append(out, c.Method)
	}
	return out
}

// Last returns the most recent request for method
func (h *Host) Last(method string) (Request, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.calls) - 1; i >= 0; i-- {
		if h.calls[i].Method == method {
			return h.calls[i], true
		}
	}
	return Request{}, false
}

// NewTransport returns a transport wired to a fresh scripted host
func NewTransport(opts ...bridge.Option) (*bridge.Transport, *Host) {
	host := NewHost()
	return bridge.New(host, opts...), host
}
