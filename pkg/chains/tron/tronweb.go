package tron

import (
	"context"
	"math/big"
)

// TronWeb is an injected Tron capability, as offered by TronLink style extensions.
// Its presence with a default address means the account is connected.
type TronWeb interface {
	// DefaultAddress returns the unlocked account, false when the wallet is locked
	DefaultAddress() (Address, bool)

	// GetBalance returns the balance of address in sun
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// SendTransaction transfers amount sun to to and returns the transaction id
	SendTransaction(ctx context.Context, to string, amount *big.Int) (string, error)
}

// TxBuilder creates unsigned transfer transactions for the host to sign
type TxBuilder interface {
	CreateTransaction(ctx context.Context, from, to string, amount *big.Int) ([]byte, error)
}
