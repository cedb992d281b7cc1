// Package config loads the walletbridge tool configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/chains/evm"
	"github.com/sigweihq/walletbridge/pkg/chains/svm"
	"github.com/sigweihq/walletbridge/pkg/chains/tron"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/factory"
	"github.com/sigweihq/walletbridge/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvHostURL    = "WALLETBRIDGE_HOST_URL"
	EnvDebug      = "WALLETBRIDGE_DEBUG"
	EnvTronAPIKey = "WALLETBRIDGE_TRON_API_KEY"
	EnvLogLevel   = "WALLETBRIDGE_LOG_LEVEL"
)

// Config is the file layout read by the walletbridge commands
type Config struct {
	Host   HostConfig   `yaml:"host"`
	Wallet WalletConfig `yaml:"wallet"`
	EVM    EVMConfig    `yaml:"evm"`
	Solana SolanaConfig `yaml:"solana"`
	Tron   TronConfig   `yaml:"tron"`
	View   ViewConfig   `yaml:"view"`
	Log    LogConfig    `yaml:"log"`
	Debug  bool         `yaml:"debug"`
}

// HostConfig locates the wallet agent the bridge posts to
type HostConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// WalletConfig is the construction config of the wallet the CLI drives
type WalletConfig struct {
	ChainType string `yaml:"chainType"`
	ChainID   string `yaml:"chainId"`
	RPCURL    string `yaml:"rpcUrl"`
}

// EVMConfig controls where add-chain metadata comes from
type EVMConfig struct {
	ChainList bool `yaml:"chainList"` // look up unknown chains on chainlist.org
}

// SolanaConfig overrides the official cluster endpoints
type SolanaConfig struct {
	Endpoints map[string][]string `yaml:"endpoints"`
}

type TronConfig struct {
	APIKey string `yaml:"apiKey"`
}

// ViewConfig configures the embedded browser host
type ViewConfig struct {
	URL      string   `yaml:"url"`
	Title    string   `yaml:"title"`
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	BindName string   `yaml:"bindName"`
	Chains   []string `yaml:"chains"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			URL:     "http://127.0.0.1:8545",
			Timeout: constants.HostTimeout,
		},
		Wallet: WalletConfig{ChainType: string(chains.EVM)},
		View: ViewConfig{
			Title:  "walletbridge",
			Width:  1280,
			Height: 820,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHostURL); ok && v != "" {
		c.Host.URL = v
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = debug
	}
	if v, ok := lookup(EnvTronAPIKey); ok && v != "" {
		c.Tron.APIKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Host.URL == "" {
		errs = append(errs, errors.New("host.url is required"))
	} else if err := utils.ValidateHostURL(c.Host.URL); err != nil {
		errs = append(errs, fmt.Errorf("host.url: %w", err))
	}
	if c.Host.Timeout < 0 {
		errs = append(errs, errors.New("host.timeout must not be negative"))
	}

	if c.Wallet.ChainType != "" {
		if _, err := chains.ParseChainTag(c.Wallet.ChainType); err != nil {
			errs = append(errs, fmt.Errorf("wallet.chainType: %w", err))
		}
	}
	if err := utils.ValidateRPCURL(c.Wallet.RPCURL); err != nil {
		errs = append(errs, fmt.Errorf("wallet.rpcUrl: %w", err))
	}

	for cluster, endpoints := range c.Solana.Endpoints {
		if _, ok := constants.OfficialRPCEndpoints[cluster]; !ok {
			errs = append(errs, fmt.Errorf("solana.endpoints: unknown cluster %q", cluster))
		}
		for _, ep := range endpoints {
			if ep == "" {
				errs = append(errs, fmt.Errorf("solana.endpoints.%s: empty endpoint", cluster))
			} else if err := utils.ValidateRPCURL(ep); err != nil {
				errs = append(errs, fmt.Errorf("solana.endpoints.%s: %w", cluster, err))
			}
		}
	}

	if _, err := c.ChainTags(); err != nil {
		errs = append(errs, fmt.Errorf("view.chains: %w", err))
	}
	if c.View.Width < 0 || c.View.Height < 0 {
		errs = append(errs, errors.New("view size must not be negative"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ChainTags returns the chains listed under view.chains, all of them when empty
func (c *Config) ChainTags() ([]chains.ChainTag, error) {
	if len(c.View.Chains) == 0 {
		return []chains.ChainTag{chains.EVM, chains.Solana, chains.Tron}, nil
	}
	tags := make([]chains.ChainTag, 0, len(c.View.Chains))
	for _, name := range c.View.Chains {
		tag, err := chains.ParseChainTag(name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ChainConfig returns the wallet construction config, without transport or logger
func (c *Config) ChainConfig() chains.Config {
	return chains.Config{
		ChainType: c.Wallet.ChainType,
		ChainID:   c.Wallet.ChainID,
		RPCURL:    c.Wallet.RPCURL,
		Debug:     c.Debug,
	}
}

// HTTPClient returns the client used to reach the wallet agent
func (c *Config) HTTPClient() *http.Client {
	client := utils.CreateHTTPClientWithTimeouts()
	if c.Host.Timeout > 0 {
		client.Timeout = c.Host.Timeout
	}
	return client
}

// Transport connects a bridge transport to the configured agent. Debug adds
// request logging.
func (c *Config) Transport(logger *slog.Logger) (*bridge.Transport, error) {
	host, err := bridge.NewHTTPHost(c.Host.URL, c.HTTPClient(), c.Host.Headers)
	if err != nil {
		return nil, err
	}
	opts := []bridge.Option{bridge.WithLogger(logger)}
	if c.Debug {
		opts = append(opts, bridge.WithMiddleware(bridge.DebugMiddleware(logger)))
	}
	return bridge.New(host, opts...), nil
}

// Registry returns a chain registry honoring the configured endpoints and keys
func (c *Config) Registry(logger *slog.Logger) *chains.Registry {
	registry := chains.NewRegistry()
	if c.EVM.ChainList {
		evm.RegisterWithMetadata(registry, evm.NewChainListMetadataProvider(logger))
	} else {
		evm.Register(registry)
	}
	svm.RegisterWithEndpoints(registry, c.Solana.Endpoints)
	if c.Tron.APIKey != "" {
		tron.Register(registry, tron.WithGridOptions(tron.WithAPIKey(c.Tron.APIKey)))
	} else {
		tron.Register(registry)
	}
	return registry
}

// Factory returns a wallet factory over Registry
func (c *Config) Factory(logger *slog.Logger) *factory.Factory {
	return factory.New(factory.WithRegistry(c.Registry(logger)), factory.WithLogger(logger))
}

// NewLogger builds the slog logger described by the log section. Debug forces
// the debug level.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if c.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
