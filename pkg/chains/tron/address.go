package tron

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

const (
	addressPrefix  = 0x41
	addressLength  = 21 // prefix + 20 byte account id
	checksumLength = 4
)

var (
	errAddressLength   = errors.New("address must decode to 25 bytes")
	errAddressPrefix   = errors.New("address must start with 0x41")
	errAddressChecksum = errors.New("address checksum mismatch")
)

// Address is a Tron account address in both of its common forms
type Address struct {
	Base58 string // T...
	Hex    string // 41 followed by 40 hex digits
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLength]
}

// EncodeAddress base58check-encodes a 21 byte address payload
func EncodeAddress(payload []byte) string {
	buf := make([]byte, 0, len(payload)+checksumLength)
	buf = append(buf, payload...)
	buf = append(buf, checksum(payload)...)
	return base58.Encode(buf)
}

// DecodeAddress returns the 21 byte payload of a base58check address
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, err
	}
	if len(raw) != addressLength+checksumLength {
		return nil, errAddressLength
	}
	payload, sum := raw[:addressLength], raw[addressLength:]
	if payload[0] != addressPrefix {
		return nil, errAddressPrefix
	}
	if !bytes.Equal(sum, checksum(payload)) {
		return nil, errAddressChecksum
	}
	return payload, nil
}

// ParseAddress accepts the base58 form or the 41-prefixed hex form (with or without 0x)
func ParseAddress(addr string) (Address, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Address{}, errors.New("address is empty")
	}

	var payload []byte
	if h := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"); len(h) == addressLength*2 {
		decoded, err := hex.DecodeString(h)
		if err != nil {
			return Address{}, fmt.Errorf("invalid hex address: %w", err)
		}
		if decoded[0] != addressPrefix {
			return Address{}, errAddressPrefix
		}
		payload = decoded
	} else {
		decoded, err := DecodeAddress(addr)
		if err != nil {
			return Address{}, err
		}
		payload = decoded
	}

	return Address{Base58: EncodeAddress(payload), Hex: hex.EncodeToString(payload)}, nil
}

// ValidateAddress parses addr and reports failures as InvalidParamsError on field
func ValidateAddress(field, addr string) (Address, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return Address{}, &chains.InvalidParamsError{Field: field, Reason: err.Error()}
	}
	return a, nil
}

// IsValidAddress reports whether addr is a well formed Tron address
func IsValidAddress(addr string) bool {
	_, err := ParseAddress(addr)
	return err == nil
}

// AddressesEqual compares two addresses in either form
func AddressesEqual(a, b string) bool {
	pa, err := ParseAddress(a)
	if err != nil {
		return false
	}
	pb, err := ParseAddress(b)
	if err != nil {
		return false
	}
	return pa.Hex == pb.Hex
}
