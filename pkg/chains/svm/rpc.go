package svm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

// ChainRPC is the Solana chain capability the wallet reads and broadcasts through
type ChainRPC interface {
	GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
	GetTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error)
}

// TokenAccount is an SPL token account owned by a wallet
type TokenAccount struct {
	Address  string
	Mint     string
	Owner    string
	Amount   *big.Int
	Decimals int32
}

// RPCClient implements ChainRPC over Solana JSON-RPC
type RPCClient struct {
	endpoints    []string
	clients      []*rpc.Client
	pollInterval time.Duration
	maxPolls     int
}

// NewRPCClient creates a client for endpoints. Reads fail over between
// endpoints starting at a random one; broadcasts use the first endpoint.
func NewRPCClient(endpoints ...string) *RPCClient {
	clients := make([]*rpc.Client, 0, len(endpoints))
	for _, endpoint := range endpoints {
		clients = append(clients, rpc.New(endpoint))
	}
	return &RPCClient{
		endpoints:    endpoints,
		clients:      clients,
		pollInterval: constants.ConfirmPollInterval,
		maxPolls:     constants.MaxRetries * 6,
	}
}

// Verify RPCClient implements interface
var _ ChainRPC = (*RPCClient)(nil)

// Endpoints returns the configured endpoints
func (r *RPCClient) Endpoints() []string {
	return r.endpoints
}

// read runs fn against each endpoint until one succeeds
func (r *RPCClient) read(ctx context.Context, fn func(*rpc.Client) error) error {
	if len(r.clients) == 0 {
		return errors.New("no RPC endpoints configured")
	}

	startIdx := rand.Intn(len(r.clients))
	var lastErr error
	for i := 0; i < len(r.clients); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := (startIdx + i) % len(r.clients)
		err := fn(r.clients[idx])
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s: %w", r.endpoints[idx], err)
	}
	return lastErr
}

// GetBalance implements ChainRPC
func (r *RPCClient) GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := r.read(ctx, func(c *rpc.Client) error {
		out, err := c.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		lamports = out.Value
		return nil
	})
	return lamports, err
}

// GetLatestBlockhash implements ChainRPC
func (r *RPCClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := r.read(ctx, func(c *rpc.Client) error {
		out, err := c.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return errors.New("empty getLatestBlockhash result")
		}
		hash = out.Value.Blockhash
		return nil
	})
	return hash, err
}

// SendRawTransaction implements ChainRPC. Preflight runs.
func (r *RPCClient) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	if len(r.clients) == 0 {
		return solana.Signature{}, errors.New("no RPC endpoints configured")
	}
	return r.clients[0].SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
}

// ConfirmTransaction implements ChainRPC. It polls signature statuses until the
// transaction is confirmed, fails on chain, ctx ends, or polling gives up.
func (r *RPCClient) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	var lastErr error
	for attempt := 0; attempt < r.maxPolls; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
		}

		var status *rpc.SignatureStatusesResult
		err := r.read(ctx, func(c *rpc.Client) error {
			out, err := c.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if len(out.Value) > 0 {
				status = out.Value[0]
			}
			return nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if status == nil {
			continue
		}
		if status.Err != nil {
			return transactionError(status.Err)
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
	}

	if lastErr != nil {
		return fmt.Errorf("gave up after %d status checks: %w", r.maxPolls, lastErr)
	}
	return fmt.Errorf("gave up after %d status checks", r.maxPolls)
}

// parsedTokenAccount is the jsonParsed shape of an SPL token account
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals int32  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
}

// GetTokenAccounts implements ChainRPC
func (r *RPCClient) GetTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	programID := solana.MustPublicKeyFromBase58(constants.TokenProgramID)

	var result *rpc.GetTokenAccountsResult
	err := r.read(ctx, func(c *rpc.Client) error {
		out, err := c.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{ProgramId: &programID},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed, Commitment: rpc.CommitmentConfirmed},
		)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, ta := range result.Value {
		if ta == nil || ta.Account.Data == nil {
			continue
		}
		account, err := decodeTokenAccount(ta.Pubkey.String(), ta.Account.Data.GetRawJSON())
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func decodeTokenAccount(address string, raw json.RawMessage) (TokenAccount, error) {
	var parsed parsedTokenAccount
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return TokenAccount{}, fmt.Errorf("failed to decode token account %s: %w", address, err)
	}

	info := parsed.Parsed.Info
	amount, ok := new(big.Int).SetString(info.TokenAmount.Amount, 10)
	if !ok {
		return TokenAccount{}, fmt.Errorf("token account %s has invalid amount %q", address, info.TokenAmount.Amount)
	}

	return TokenAccount{
		Address:  address,
		Mint:     info.Mint,
		Owner:    info.Owner,
		Amount:   amount,
		Decimals: info.TokenAmount.Decimals,
	}, nil
}

// IsHealthy reports whether endpoint answers getHealth with "ok"
func (r *RPCClient) IsHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	health, err := rpc.New(endpoint).GetHealth(ctx)
	return err == nil && health == rpc.HealthOk
}
