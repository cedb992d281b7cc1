package chains

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sigweihq/walletbridge/pkg/bridge"
	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/state"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

// ChainTag identifies a chain family
type ChainTag string

const (
	EVM    ChainTag = constants.ChainEVM
	Solana ChainTag = constants.ChainSolana
	Tron   ChainTag = constants.ChainTron
)

var tagAliases = map[string]ChainTag{
	"EVM":      EVM,
	"ETH":      EVM,
	"ETHEREUM": EVM,
	"SOLANA":   Solana,
	"SOL":      Solana,
	"TRON":     Tron,
	"TRX":      Tron,
}

// ParseChainTag normalizes a user supplied chain type (case-insensitive, common aliases)
func ParseChainTag(s string) (ChainTag, error) {
	tag, ok := tagAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", &UnsupportedChainError{ChainType: s}
	}
	return tag, nil
}

func (t ChainTag) String() string {
	return string(t)
}

// Wallet is the chain-agnostic contract every adapter implements
type Wallet interface {
	// ChainTag returns the chain family of this wallet
	ChainTag() ChainTag

	// Connect asks the host for authorization and returns the active address
	Connect(ctx context.Context) (string, error)

	// Disconnect resets the connection. In-flight calls are not aborted.
	Disconnect(ctx context.Context) error

	// PublicKey returns the active address or ErrNotConnected
	PublicKey() (string, error)

	// Connected reports whether at least one account is authorized
	Connected() bool

	// GetBalance returns the native balance of address, or of the active account when address is empty
	GetBalance(ctx context.Context, address string) (*Balance, error)

	// SignTransaction signs without broadcasting
	SignTransaction(ctx context.Context, tx *TxRequest) (*SignedTx, error)

	// SignMessage signs an arbitrary UTF-8 message with the active account
	SignMessage(ctx context.Context, message string) (*Signature, error)

	// SignAndSendTransaction signs and broadcasts tx
	SignAndSendTransaction(ctx context.Context, tx *TxRequest) (*SendResult, error)

	// State returns a snapshot of the wallet state
	State() state.Snapshot

	// On registers a change listener
	On(event string, h state.Handler) state.ListenerID

	// RemoveListener removes a listener registered with On
	RemoveListener(event string, id state.ListenerID) bool
}

// Config is the construction configuration shared by all adapters
type Config struct {
	ChainType string // EVM, SOLANA or TRON (case-insensitive)
	ChainID   string // EVM chain id (decimal or 0x-hex), Solana cluster, Tron network
	RPCURL    string // optional chain RPC endpoint
	Debug     bool

	Transport *bridge.Transport
	Logger    *slog.Logger
}

// Validate checks the fields shared by every chain
func (c Config) Validate() error {
	if _, err := ParseChainTag(c.ChainType); err != nil {
		return err
	}
	if err := utils.ValidateRPCURL(c.RPCURL); err != nil {
		return &InvalidParamsError{Field: "rpcUrl", Reason: err.Error()}
	}
	return nil
}

// TxRequest describes a transaction to sign. Chains read the fields they understand.
type TxRequest struct {
	From   string
	To     string
	Amount *big.Int // base units (wei, lamports, sun)
	Data   []byte
	Raw    []byte         // a chain-native serialized transaction, when the caller built one
	Extra  map[string]any // chain specific fields such as gas or feeLimit
}

// SignedTx is a signed, not yet broadcast, transaction
type SignedTx struct {
	Raw     []byte
	Encoded string // host encoding of Raw (0x-hex, base64)
	TxID    string
}

// Signature is a message signature
type Signature struct {
	Bytes   []byte
	Encoded string
	Signer  string
}

// SendResult is returned by SignAndSendTransaction
type SendResult struct {
	TxID      string
	Confirmed bool
}

// Balance is a native balance in base units
type Balance struct {
	Base     *big.Int
	Decimals int32
	Symbol   string
}

// NewBalance creates a balance; a nil base is treated as zero
func NewBalance(base *big.Int, decimals int32, symbol string) *Balance {
	if base == nil {
		base = new(big.Int)
	}
	return &Balance{Base: base, Decimals: decimals, Symbol: symbol}
}

// Amount returns the balance in display units
func (b *Balance) Amount() decimal.Decimal {
	return utils.FormatUnits(b.Base, b.Decimals)
}

func (b *Balance) String() string {
	return fmt.Sprintf("%s %s", b.Amount().String(), b.Symbol)
}
