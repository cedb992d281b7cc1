// Command walletctl drives a wallet agent over the bridge from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "walletctl",
		Usage:     "talk to a browser wallet agent through the walletbridge protocol",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "host", Usage: "wallet agent URL (overrides host.url)"},
			&cli.StringFlag{Name: "chain", Usage: "chain type: EVM, SOLANA or TRON"},
			&cli.StringFlag{Name: "chain-id", Usage: "EVM chain id, Solana cluster or Tron network"},
			&cli.StringFlag{Name: "rpc-url", Usage: "chain RPC endpoint"},
			&cli.BoolFlag{Name: "debug", Usage: "log every bridge request"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
		},
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "connect and print the active account",
				Action: connectAction,
			},
			{
				Name:      "balance",
				Usage:     "print the native balance of an address (the active account by default)",
				ArgsUsage: "[address]",
				Action:    balanceAction,
			},
			{
				Name:      "switch-chain",
				Usage:     "switch the EVM chain or Solana cluster",
				ArgsUsage: "<chain id | cluster>",
				Action:    switchChainAction,
			},
			{
				Name:      "sign-message",
				Usage:     "sign a UTF-8 message with the active account",
				ArgsUsage: "<message>",
				Action:    signMessageAction,
			},
			{
				Name:  "send",
				Usage: "transfer native currency from the active account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "recipient address", Required: true},
					&cli.StringFlag{Name: "amount", Usage: "amount in display units, e.g. 0.5", Required: true},
				},
				Action: sendAction,
			},
			{
				Name:  "shim",
				Usage: "print the provider shim a webview would inject, primed from the agent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bind", Usage: "name of the bound host function"},
				},
				Action: shimAction,
			},
		},
	}
}
