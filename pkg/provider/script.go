package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
)

// DefaultBindName is the page function the shim posts requests through
const DefaultBindName = "__walletbridgePost"

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// forwardedEvents are pushed into the page when a provider's state changes
var forwardedEvents = []string{
	constants.EventConnect,
	constants.EventDisconnect,
	constants.EventAccountsChanged,
	constants.EventChainChanged,
}

// ScriptPublisher publishes providers as page globals. Script renders the shim a
// webview evaluates before page load; the shim posts every request as a JSON
// Message through the host function bound under the bind name. When eval is set,
// provider events are pushed into the page as they happen.
type ScriptPublisher struct {
	bindName string
	eval     func(js string)

	mu        sync.Mutex
	providers []Provider
	stops     []func()
}

// NewScriptPublisher creates a publisher. eval may be nil.
func NewScriptPublisher(bindName string, eval func(js string)) (*ScriptPublisher, error) {
	if bindName == "" {
		bindName = DefaultBindName
	}
	if !identifier.MatchString(bindName) {
		return nil, fmt.Errorf("bind name %q is not a JavaScript identifier", bindName)
	}
	return &ScriptPublisher{bindName: bindName, eval: eval}, nil
}

// BindName returns the name of the function the host must bind
func (s *ScriptPublisher) BindName() string {
	return s.bindName
}

// Publish implements Publisher
func (s *ScriptPublisher) Publish(p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.providers {
		if existing.Slot() == p.Slot() {
			s.providers[i] = p
			return s.forward(p)
		}
	}
	s.providers = append(s.providers, p)
	return s.forward(p)
}

// forward subscribes to p's events; callers hold s.mu
func (s *ScriptPublisher) forward(p Provider) error {
	if s.eval == nil {
		return nil
	}
	for _, name := range forwardedEvents {
		id := p.On(name, func(ev state.Event) error {
			js, err := s.EventScript(p.Slot(), ev.Name, p.eventPayload(ev))
			if err != nil {
				return err
			}
			s.eval(js)
			return nil
		})
		s.stops = append(s.stops, func() { p.RemoveListener(name, id) })
	}
	return nil
}

// Close stops pushing events into the page
func (s *ScriptPublisher) Close() {
	s.mu.Lock()
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

// EventScript renders the statement delivering one event to page listeners
func (s *ScriptPublisher) EventScript(slot, event string, data any) (string, error) {
	args, err := json.Marshal([]any{slot, event, data})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return fmt.Sprintf("window.__walletbridge && window.__walletbridge.emit.apply(null, %s);", args), nil
}

type slotView struct {
	Name   string
	Fields map[string]string
}

// Script renders the shim for the providers published so far, with their current state
func (s *ScriptPublisher) Script() (string, error) {
	s.mu.Lock()
	providers := append([]Provider(nil), s.providers...)
	s.mu.Unlock()

	views := make([]slotView, 0, len(providers))
	for _, p := range providers {
		fields := map[string]string{}
		for k, v := range p.scriptState() {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("failed to encode %s.%s: %w", p.Slot(), k, err)
			}
			fields[k] = string(encoded)
		}
		views = append(views, slotView{Name: p.Slot(), Fields: fields})
	}

	bind, _ := json.Marshal(s.bindName)
	var b strings.Builder
	err := shimTemplate.Execute(&b, struct {
		Bind  string
		Slots []slotView
	}{Bind: string(bind), Slots: views})
	if err != nil {
		return "", fmt.Errorf("failed to render provider shim: %w", err)
	}
	return b.String(), nil
}

var shimTemplate = template.Must(template.New("shim").Parse(`(function () {
  if (window.__walletbridge) { return; }
  var post = function (msg) { return window[{{.Bind}}](msg); };
  var listeners = {};
  var providers = {};
  function call(slot, method, params) {
    return post(JSON.stringify({ slot: slot, method: method, params: params === undefined ? null : params }));
  }
  function on(slot) {
    return function (event, fn) {
      listeners[slot] = listeners[slot] || {};
      (listeners[slot][event] = listeners[slot][event] || []).push(fn);
      return this;
    };
  }
  function off(slot) {
    return function (event, fn) {
      var list = listeners[slot] && listeners[slot][event];
      if (list) {
        var i = list.indexOf(fn);
        if (i >= 0) { list.splice(i, 1); }
      }
      return this;
    };
  }
  function toBase64(bytes) {
    var bin = "";
    for (var i = 0; i < bytes.length; i++) { bin += String.fromCharCode(bytes[i]); }
    return btoa(bin);
  }
  function fromBase64(s) {
    var bin = atob(s);
    var out = new Uint8Array(bin.length);
    for (var i = 0; i < bin.length; i++) { out[i] = bin.charCodeAt(i); }
    return out;
  }
  function solanaKey(b58) {
    return b58 ? { toBase58: function () { return b58; }, toString: function () { return b58; } } : null;
  }
  window.__walletbridge = {
    emit: function (slot, event, data) {
      var p = providers[slot];
      if (p && p.__apply) { p.__apply(event, data); }
      var list = (listeners[slot] && listeners[slot][event]) || [];
      list.slice().forEach(function (fn) {
        try { fn(data); } catch (e) { console.error(e); }
      });
    }
  };
{{- range .Slots}}
{{- if eq .Name "ethereum"}}
  providers.ethereum = window.ethereum = {
    isWalletBridge: true,
    selectedAddress: {{index .Fields "selectedAddress"}},
    chainId: {{index .Fields "chainId"}},
    isConnected: function () { return true; },
    request: function (args) { return call("ethereum", args.method, args.params); },
    on: on("ethereum"),
    removeListener: off("ethereum"),
    __apply: function (event, data) {
      if (event === "accountsChanged") { this.selectedAddress = data.length ? data[0] : null; }
      if (event === "chainChanged") { this.chainId = data; }
      if (event === "disconnect") { this.selectedAddress = null; }
    }
  };
{{- else if eq .Name "solana"}}
  providers.solana = window.solana = {
    isWalletBridge: true,
    publicKey: solanaKey({{index .Fields "publicKey"}}),
    isConnected: {{index .Fields "isConnected"}},
    connect: function (opts) {
      var self = this;
      return call("solana", "connect", opts || null).then(function (r) {
        self.publicKey = solanaKey(r.publicKey);
        self.isConnected = true;
        return { publicKey: self.publicKey };
      });
    },
    disconnect: function () {
      var self = this;
      return call("solana", "disconnect").then(function () {
        self.publicKey = null;
        self.isConnected = false;
      });
    },
    signMessage: function (bytes) {
      var self = this;
      return call("solana", "signMessage", { message: toBase64(bytes) }).then(function (r) {
        return { signature: fromBase64(r.signature), publicKey: self.publicKey };
      });
    },
    signTransaction: function (tx) {
      var encoded = typeof tx === "string" ? tx : toBase64(tx.serialize({ requireAllSignatures: false, verifySignatures: false }));
      return call("solana", "signTransaction", { transaction: encoded }).then(function (r) { return r.transaction; });
    },
    on: on("solana"),
    off: off("solana"),
    removeListener: off("solana"),
    __apply: function (event, data) {
      if (event === "accountsChanged" || event === "connect") {
        this.publicKey = solanaKey(data);
        this.isConnected = !!data;
      }
      if (event === "disconnect") {
        this.publicKey = null;
        this.isConnected = false;
      }
    }
  };
{{- else if eq .Name "tronWeb"}}
  providers.tronWeb = window.tronWeb = {
    isWalletBridge: true,
    ready: {{index .Fields "ready"}},
    defaultAddress: {{index .Fields "defaultAddress"}},
    request: function (args) { return call("tronWeb", args.method, args.params); },
    trx: {
      getBalance: function (address) {
        return call("tronWeb", "tron_getBalance", { address: address }).then(Number);
      },
      sendTransaction: function (to, amount) {
        return call("tronWeb", "tron_sendTransaction", { to: to, amount: String(amount) });
      }
    },
    on: on("tronWeb"),
    removeListener: off("tronWeb"),
    __apply: function (event, data) {
      if (event === "accountsChanged") {
        this.defaultAddress = data;
        this.ready = !!data.base58;
      }
      if (event === "disconnect") {
        this.defaultAddress = { base58: false, hex: false };
        this.ready = false;
      }
    }
  };
{{- end}}
{{- end}}
})();
`))
