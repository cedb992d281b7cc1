package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrBridgeUnavailable is returned when no host is attached to the transport
	ErrBridgeUnavailable = errors.New("bridge unavailable: no host attached")

	// ErrUnknownRequest is returned by Deliver for responses nobody is waiting for
	ErrUnknownRequest = errors.New("bridge: no pending request")
)

// HostError is an error reported by the host inside a response payload
type HostError struct {
	Message string
	Code    int // 0 when the host sent no code
}

// Error returns the host's message verbatim
func (e *HostError) Error() string {
	return e.Message
}

// HasCode reports whether the host attached a numeric code
func (e *HostError) HasCode() bool {
	return e.Code != 0
}

// MalformedPayloadError is returned when the host answers with something that is not JSON
type MalformedPayloadError struct {
	Method  string
	Payload []byte
	Err     error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("bridge: malformed payload for %s: %v", e.Method, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// newHostError builds a HostError from the payload's error field, which hosts
// send either as a plain string or as an object with message and code.
func newHostError(raw json.RawMessage, code *int) *HostError {
	hostErr := &HostError{}
	if code != nil {
		hostErr.Code = *code
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		hostErr.Message = msg
		return hostErr
	}

	var obj struct {
		Message string `json:"message"`
		Code    *int   `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		hostErr.Message = obj.Message
		if obj.Code != nil && hostErr.Code == 0 {
			hostErr.Code = *obj.Code
		}
		return hostErr
	}

	hostErr.Message = string(raw)
	return hostErr
}
