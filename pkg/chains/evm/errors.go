package evm

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedChain is matched by UnrecognizedChainError
var ErrUnrecognizedChain = errors.New("unrecognized chain")

// UnrecognizedChainError is returned when the wallet does not know the requested chain.
// The caller may add it with AddChain and retry.
type UnrecognizedChainError struct {
	ChainID string
	Err     error
}

func (e *UnrecognizedChainError) Error() string {
	return fmt.Sprintf("unrecognized chain %s: %v", e.ChainID, e.Err)
}

func (e *UnrecognizedChainError) Unwrap() error {
	return e.Err
}

func (e *UnrecognizedChainError) Is(target error) bool {
	return target == ErrUnrecognizedChain
}

// RPCError represents an RPC-related error
type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
