package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/walletbridge/pkg/constants"
)

var errReceiptNotFound = errors.New("not found")

// ReceiptReader reads transaction receipts straight from chain RPC endpoints.
// The wallet host only signs and broadcasts; confirmation is observed here.
type ReceiptReader struct {
	endpoints []string
	delay     time.Duration
}

// NewReceiptReader creates a reader over endpoints
func NewReceiptReader(endpoints []string) *ReceiptReader {
	return &ReceiptReader{
		endpoints: endpoints,
		delay:     time.Duration(constants.DelayBetweenRPCCalls) * time.Millisecond,
	}
}

// Receipt fetches a receipt, trying each endpoint once starting at a random one.
// It returns errReceiptNotFound when every endpoint answered but none knew the transaction.
func (r *ReceiptReader) Receipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	if len(r.endpoints) == 0 {
		return nil, errors.New("no RPC endpoints configured")
	}

	// Start at a random position for load balancing
	startIdx := rand.Intn(len(r.endpoints))
	var lastErr error

	for i := 0; i < len(r.endpoints); i++ {
		// Wrap around using modulo for round-robin
		endpoint := r.endpoints[(startIdx+i)%len(r.endpoints)]

		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = &RPCError{Endpoint: endpoint, Err: err}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, constants.TransactionReceiptTimeout)
		receipt, err := patchedTransactionReceipt(callCtx, client, common.HexToHash(txHash))
		client.Close()
		cancel()

		if err != nil {
			if errors.Is(err, errReceiptNotFound) {
				lastErr = err
			} else {
				lastErr = &RPCError{Endpoint: endpoint, Err: err}
			}
			continue
		}

		return receipt, nil
	}

	return nil, lastErr
}

// WaitForReceipt polls until the receipt is available, ctx is done, or retries run out
func (r *ReceiptReader) WaitForReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	var lastErr error
	for attempt := 0; attempt < constants.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.delay):
			}
		}

		receipt, err := r.Receipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("receipt for %s not available after %d attempts: %w", txHash, constants.MaxRetries, lastErr)
}

// IsHealthy performs a health check on an RPC endpoint
func (r *ReceiptReader) IsHealthy(ctx context.Context, endpoint string) bool {
	return isEndpointHealthy(ctx, endpoint)
}

func isEndpointHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return false
	}
	defer client.Close()

	_, err = client.BlockNumber(ctx)
	return err == nil
}

// patchedTransactionReceipt gets a transaction receipt, dropping the log
// blockTimestamp field some RPC providers add in a format ethtypes rejects
func patchedTransactionReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errReceiptNotFound
	}

	cleaned, err := stripBlockTimestampFromLogs(raw)
	if err != nil {
		return nil, err
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(cleaned, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

// stripBlockTimestampFromLogs removes the blockTimestamp field from transaction logs
func stripBlockTimestampFromLogs(raw json.RawMessage) ([]byte, error) {
	var receiptMap map[string]interface{}
	if err := json.Unmarshal(raw, &receiptMap); err != nil {
		return nil, err
	}

	logs, ok := receiptMap["logs"].([]interface{})
	if ok {
		for _, log := range logs {
			logMap, ok := log.(map[string]interface{})
			if ok {
				delete(logMap, "blockTimestamp")
			}
		}
	}

	return json.Marshal(receiptMap)
}
