//go:build !(darwin && cgo)

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/config"
)

func openView(context.Context, *config.Config, *bridge.Transport, *slog.Logger) error {
	return errors.New("walletview needs macOS with cgo enabled")
}
