// Command walletview opens a page in an embedded browser with window.ethereum,
// window.solana and window.tronWeb backed by a wallet agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sigweihq/walletbridge/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:      "walletview",
		Usage:     "open a dapp with injected wallet providers",
		ArgsUsage: "[url]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "host", Usage: "wallet agent URL (overrides host.url)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable developer tools and request logging"},
		},
		Action: run,
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		cfg.Host.URL = c.String("host")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if url := c.Args().First(); url != "" {
		cfg.View.URL = url
	}
	if cfg.View.URL == "" {
		return errors.New("no page to open: pass a URL or set view.url")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	transport, err := cfg.Transport(logger)
	if err != nil {
		return err
	}
	return openView(c.Context, cfg, transport, logger)
}
