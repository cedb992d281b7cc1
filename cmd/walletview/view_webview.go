//go:build darwin && cgo

package main

import (
	"context"
	"log/slog"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/config"
	webview "github.com/webview/webview_go"
)

// openView runs the embedded browser until the window closes or ctx ends.
// Only available on macOS with cgo (system WebKit).
func openView(ctx context.Context, cfg *config.Config, transport *bridge.Transport, logger *slog.Logger) error {
	w := webview.New(cfg.Debug)
	defer w.Destroy()
	w.SetTitle(cfg.View.Title)
	w.SetSize(cfg.View.Width, cfg.View.Height, webview.HintNone)

	eval := func(js string) {
		w.Dispatch(func() { w.Eval(js) })
	}
	host, err := newViewHost(ctx, cfg, transport, logger, eval)
	if err != nil {
		return err
	}
	defer host.Close()

	w.Init(host.script)
	// Bound functions run on the UI thread and block it until the agent answers
	if err := w.Bind(host.publisher.BindName(), func(msg string) (any, error) {
		return host.handle(ctx, msg)
	}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Dispatch(w.Terminate)
		case <-done:
		}
	}()

	w.Navigate(cfg.View.URL)
	w.Run()
	return nil
}
