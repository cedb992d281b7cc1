package svm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// ValidatePublicKey parses a base58 Solana public key
func ValidatePublicKey(field, key string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(key))
	if err != nil {
		return solana.PublicKey{}, &chains.InvalidParamsError{Field: field, Reason: "invalid Solana public key"}
	}
	return pk, nil
}

// ValidateSignature checks the shape of a base58 transaction signature
func ValidateSignature(signature string) (solana.Signature, error) {
	// Base58 signatures are typically 87-88 characters
	if len(signature) < 80 || len(signature) > 90 {
		return solana.Signature{}, fmt.Errorf("invalid Solana transaction signature format: %s", signature)
	}
	if strings.HasPrefix(signature, "0x") {
		return solana.Signature{}, fmt.Errorf("invalid Solana transaction signature (has 0x prefix): %s", signature)
	}
	return solana.SignatureFromBase58(signature)
}

// AddressesEqual compares base58 addresses, which are case-sensitive
func AddressesEqual(addr1, addr2 string) bool {
	return addr1 == addr2
}

// DecodeTransaction decodes a wire-format transaction
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}

// DecodeSignedTransaction reads the host signTransaction answer: a base64 string
// or an object carrying it under transaction or signedTransaction
func DecodeSignedTransaction(result json.RawMessage) (*solana.Transaction, []byte, error) {
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		var obj struct {
			Transaction       string `json:"transaction"`
			SignedTransaction string `json:"signedTransaction"`
		}
		if err := json.Unmarshal(result, &obj); err != nil {
			return nil, nil, fmt.Errorf("expected signed transaction, got %s", string(result))
		}
		encoded = obj.Transaction
		if encoded == "" {
			encoded = obj.SignedTransaction
		}
	}
	if encoded == "" {
		return nil, nil, errors.New("empty signed transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("signed transaction is not base64: %w", err)
	}
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return nil, nil, errors.New("signed transaction carries no fee payer signature")
	}
	return tx, raw, nil
}
