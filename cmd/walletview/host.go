package main

import (
	"context"
	"log/slog"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/config"
	"github.com/sigweihq/walletbridge/pkg/provider"
)

// viewHost owns the providers injected into one page
type viewHost struct {
	injector  *provider.Injector
	publisher *provider.ScriptPublisher
	script    string
	logger    *slog.Logger
}

// newViewHost injects the configured providers and renders the shim. eval runs
// JavaScript in the page and may be nil.
func newViewHost(ctx context.Context, cfg *config.Config, transport *bridge.Transport, logger *slog.Logger, eval func(string)) (*viewHost, error) {
	tags, err := cfg.ChainTags()
	if err != nil {
		return nil, err
	}
	pub, err := provider.NewScriptPublisher(cfg.View.BindName, eval)
	if err != nil {
		return nil, err
	}

	injector := provider.NewInjector(transport, provider.WithPublisher(pub), provider.WithLogger(logger))
	if err := injector.Inject(ctx, tags...); err != nil {
		injector.Close()
		pub.Close()
		return nil, err
	}
	script, err := pub.Script()
	if err != nil {
		injector.Close()
		pub.Close()
		return nil, err
	}

	logger.Info("Providers injected", "slots", injector.Registry().Slots(), "bind", pub.BindName())
	return &viewHost{injector: injector, publisher: pub, script: script, logger: logger}, nil
}

// handle serves one message posted by the shim. The error, if any, rejects the
// page's promise with its message.
func (h *viewHost) handle(ctx context.Context, msg string) (any, error) {
	result, err := h.injector.Registry().HandleMessage(ctx, msg)
	if err != nil {
		h.logger.Debug("Page request failed", "error", err)
		return nil, err
	}
	return result, nil
}

func (h *viewHost) Close() {
	h.publisher.Close()
	h.injector.Close()
}
