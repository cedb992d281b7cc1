package tron

import (
	"errors"
	"fmt"
)

// ErrNoDefaultAddress is returned when an injected TronWeb has no unlocked account
var ErrNoDefaultAddress = errors.New("tronWeb has no default address")

// GridError is returned when TronGrid answers with an error document
type GridError struct {
	Endpoint string
	Message  string
}

func (e *GridError) Error() string {
	return fmt.Sprintf("trongrid %s: %s", e.Endpoint, e.Message)
}
