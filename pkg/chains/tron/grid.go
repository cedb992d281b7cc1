package tron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/sigweihq/walletbridge/pkg/chains"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

// GridClient is a read-only TronWeb backed by the TronGrid HTTP API. It watches a
// single address and holds no keys, so it cannot send transactions.
type GridClient struct {
	baseURL string
	watch   *Address
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

// GridOption configures a GridClient
type GridOption func(*GridClient)

// WithAPIKey sets the TRON-PRO-API-KEY header
func WithAPIKey(key string) GridOption {
	return func(c *GridClient) {
		if key != "" {
			c.headers["TRON-PRO-API-KEY"] = key
		}
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) GridOption {
	return func(c *GridClient) {
		c.client = client
	}
}

// WithGridLogger sets the logger
func WithGridLogger(logger *slog.Logger) GridOption {
	return func(c *GridClient) {
		c.logger = logger
	}
}

// Verify GridClient implements the capabilities
var (
	_ TronWeb   = (*GridClient)(nil)
	_ TxBuilder = (*GridClient)(nil)
)

// NewGridClient creates a client for baseURL. watch is the address reported as the
// default address; it may be empty.
func NewGridClient(baseURL, watch string, opts ...GridOption) (*GridClient, error) {
	if err := utils.ValidateRPCURL(baseURL); err != nil || baseURL == "" {
		if err == nil {
			err = errors.New("TronGrid URL is required")
		}
		return nil, &chains.InvalidParamsError{Field: "rpcUrl", Reason: err.Error()}
	}

	c := &GridClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
		client:  utils.CreateHTTPClientWithTimeouts(),
		logger:  slog.Default(),
	}
	if watch != "" {
		addr, err := ValidateAddress("watch", watch)
		if err != nil {
			return nil, err
		}
		c.watch = &addr
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the TronGrid endpoint
func (c *GridClient) BaseURL() string {
	return c.baseURL
}

// DefaultAddress returns the watched address
func (c *GridClient) DefaultAddress() (Address, bool) {
	if c.watch == nil {
		return Address{}, false
	}
	return *c.watch, true
}

type accountResponse struct {
	Balance *big.Int `json:"balance"`
	Error   string   `json:"Error"`
}

// GetBalance reads the account balance in sun. Accounts that were never
// activated come back as an empty document and have a zero balance.
func (c *GridClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := ValidateAddress("address", address)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"address": addr.Base58, "visible": true}
	resp, err := utils.MakeJSONRequest[accountResponse](ctx, c.client, http.MethodPost, c.baseURL+"/wallet/getaccount", body, c.headers, "getaccount")
	if err != nil {
		c.logger.Warn("TronGrid request failed", "endpoint", "getaccount", "error", err)
		return nil, err
	}
	if resp.Error != "" {
		return nil, &GridError{Endpoint: "getaccount", Message: resp.Error}
	}
	if resp.Balance == nil {
		return new(big.Int), nil
	}
	return resp.Balance, nil
}

// SendTransaction is not available without custody
func (c *GridClient) SendTransaction(context.Context, string, *big.Int) (string, error) {
	return "", &chains.UnsupportedMethodError{Chain: chains.Tron, Method: "sendTransaction"}
}

// CreateTransaction builds an unsigned TRX transfer and returns the transaction
// document as TronGrid produced it
func (c *GridClient) CreateTransaction(ctx context.Context, from, to string, amount *big.Int) ([]byte, error) {
	owner, err := ValidateAddress("from", from)
	if err != nil {
		return nil, err
	}
	recipient, err := ValidateAddress("to", to)
	if err != nil {
		return nil, err
	}
	if err := chains.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	if !amount.IsInt64() {
		return nil, &chains.InvalidParamsError{Field: "amount", Reason: "exceeds the sun range"}
	}

	body := map[string]any{
		"owner_address": owner.Base58,
		"to_address":    recipient.Base58,
		"amount":        amount.Int64(),
		"visible":       true,
	}
	resp, err := utils.MakeJSONRequest[json.RawMessage](ctx, c.client, http.MethodPost, c.baseURL+"/wallet/createtransaction", body, c.headers, "createtransaction")
	if err != nil {
		c.logger.Warn("TronGrid request failed", "endpoint", "createtransaction", "error", err)
		return nil, err
	}

	var head struct {
		TxID  string `json:"txID"`
		Error string `json:"Error"`
	}
	if err := json.Unmarshal(*resp, &head); err != nil {
		return nil, fmt.Errorf("failed to decode createtransaction response: %w", err)
	}
	if head.Error != "" {
		return nil, &GridError{Endpoint: "createtransaction", Message: head.Error}
	}
	if !isTxID(head.TxID) {
		return nil, &GridError{Endpoint: "createtransaction", Message: "response has no txID"}
	}
	return *resp, nil
}
