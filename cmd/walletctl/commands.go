package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/evm"
	"github.com/sigweihq/walletbridge/pkg/chains/svm"
	"github.com/sigweihq/walletbridge/pkg/config"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/provider"
	"github.com/sigweihq/walletbridge/pkg/utils"
	"github.com/urfave/cli/v2"
)

// session is what every command works with
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	transport *bridge.Transport
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("host") {
		cfg.Host.URL = c.String("host")
	}
	if c.IsSet("chain") {
		cfg.Wallet.ChainType = c.String("chain")
	}
	if c.IsSet("chain-id") {
		cfg.Wallet.ChainID = c.String("chain-id")
	}
	if c.IsSet("rpc-url") {
		cfg.Wallet.RPCURL = c.String("rpc-url")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	transport, err := cfg.Transport(logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, transport: transport}, nil
}

// wallet creates the configured wallet and closes it when the command ends
func (s *session) wallet() (chains.Wallet, func(), error) {
	chainCfg := s.cfg.ChainConfig()
	chainCfg.Transport = s.transport
	chainCfg.Logger = s.logger

	w, err := s.cfg.Factory(s.logger).Create(chainCfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if closer, ok := w.(interface{ Close() }); ok {
		closeFn = closer.Close
	}
	return w, closeFn, nil
}

// connected creates the wallet and connects it
func connected(c *cli.Context) (chains.Wallet, func(), error) {
	s, err := newSession(c)
	if err != nil {
		return nil, nil, err
	}
	w, closeFn, err := s.wallet()
	if err != nil {
		return nil, nil, err
	}
	if _, err := w.Connect(c.Context); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("connect %s wallet: %w", w.ChainTag(), err)
	}
	return w, closeFn, nil
}

func connectAction(c *cli.Context) error {
	w, closeFn, err := connected(c)
	if err != nil {
		return err
	}
	defer closeFn()

	snap := w.State()
	if snap.ChainID != "" {
		fmt.Fprintf(c.App.Writer, "%s on %s\n", snap.ActiveAccount(), snap.ChainID)
		return nil
	}
	fmt.Fprintln(c.App.Writer, snap.ActiveAccount())
	return nil
}

func balanceAction(c *cli.Context) error {
	w, closeFn, err := connected(c)
	if err != nil {
		return err
	}
	defer closeFn()

	balance, err := w.GetBalance(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, balance.String())
	return nil
}

func switchChainAction(c *cli.Context) error {
	target := c.Args().First()
	if target == "" {
		return errors.New("switch-chain needs a chain id or cluster")
	}
	w, closeFn, err := connected(c)
	if err != nil {
		return err
	}
	defer closeFn()

	switch wallet := w.(type) {
	case *evm.Wallet:
		err = wallet.SwitchOrAddChain(c.Context, target)
	case *svm.Wallet:
		err = wallet.SwitchNetwork(c.Context, target)
	default:
		err = &chains.UnsupportedMethodError{Chain: w.ChainTag(), Method: "switchChain"}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "switched to %s\n", w.State().ChainID)
	return nil
}

func signMessageAction(c *cli.Context) error {
	message := c.Args().First()
	if message == "" {
		return errors.New("sign-message needs a message")
	}
	w, closeFn, err := connected(c)
	if err != nil {
		return err
	}
	defer closeFn()

	sig, err := w.SignMessage(c.Context, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, sig.Encoded)
	return nil
}

func sendAction(c *cli.Context) error {
	w, closeFn, err := connected(c)
	if err != nil {
		return err
	}
	defer closeFn()

	amount, err := utils.ParseUnits(c.String("amount"), decimalsOf(w.ChainTag()))
	if err != nil {
		return &chains.InvalidParamsError{Field: "amount", Reason: err.Error()}
	}
	result, err := w.SignAndSendTransaction(c.Context, &chains.TxRequest{To: c.String("to"), Amount: amount})
	if result != nil {
		fmt.Fprintf(c.App.Writer, "%s confirmed=%t\n", result.TxID, result.Confirmed)
	}
	return err
}

func shimAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	tags, err := s.cfg.ChainTags()
	if err != nil {
		return err
	}
	bind := s.cfg.View.BindName
	if c.IsSet("bind") {
		bind = c.String("bind")
	}

	pub, err := provider.NewScriptPublisher(bind, nil)
	if err != nil {
		return err
	}
	injector := provider.NewInjector(s.transport, provider.WithPublisher(pub), provider.WithLogger(s.logger))
	defer injector.Close()
	if err := injector.Inject(c.Context, tags...); err != nil {
		return err
	}

	script, err := pub.Script()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, script)
	return nil
}

func decimalsOf(tag chains.ChainTag) int32 {
	switch tag {
	case chains.Solana:
		return constants.SolanaDecimals
	case chains.Tron:
		return constants.TronDecimals
	}
	return constants.EVMDecimals
}
