package chains

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected      = errors.New("wallet not connected")
	ErrInvalidParams     = errors.New("invalid parameters")
	ErrUnsupportedChain  = errors.New("unsupported chain type")
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// InvalidParamsError is returned when arguments fail validation before reaching the host
type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidParamsError) Is(target error) bool {
	return target == ErrInvalidParams
}

// UnsupportedChainError is returned for chain types no adapter is registered for
type UnsupportedChainError struct {
	ChainType string
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chainType: %q", e.ChainType)
}

func (e *UnsupportedChainError) Is(target error) bool {
	return target == ErrUnsupportedChain
}

// UnsupportedMethodError is returned when a chain or provider does not offer an operation
type UnsupportedMethodError struct {
	Chain  ChainTag
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	if e.Chain == "" {
		return fmt.Sprintf("unsupported method: %s", e.Method)
	}
	return fmt.Sprintf("%s: unsupported method: %s", e.Chain, e.Method)
}

func (e *UnsupportedMethodError) Is(target error) bool {
	return target == ErrUnsupportedMethod
}

// UnexpectedResponseError is returned when a host response does not have the expected shape
type UnexpectedResponseError struct {
	Method string
	Err    error
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected %s response: %v", e.Method, e.Err)
}

func (e *UnexpectedResponseError) Unwrap() error {
	return e.Err
}
