package evm

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// ParseTypedData decodes EIP-712 typed data and checks it can be hashed.
// It returns the digest a wallet signs.
func ParseTypedData(typedDataJSON string) (*apitypes.TypedData, []byte, error) {
	var typedData apitypes.TypedData
	if err := json.Unmarshal([]byte(typedDataJSON), &typedData); err != nil {
		return nil, nil, &chains.InvalidParamsError{Field: "typedData", Reason: err.Error()}
	}
	if typedData.PrimaryType == "" {
		return nil, nil, &chains.InvalidParamsError{Field: "typedData", Reason: "primaryType is required"}
	}
	if _, ok := typedData.Types[typedData.PrimaryType]; !ok {
		return nil, nil, &chains.InvalidParamsError{Field: "typedData", Reason: fmt.Sprintf("primaryType %s is not declared in types", typedData.PrimaryType)}
	}
	if _, ok := typedData.Types["EIP712Domain"]; !ok {
		return nil, nil, &chains.InvalidParamsError{Field: "typedData", Reason: "EIP712Domain is not declared in types"}
	}

	digest, err := TypedDataDigest(&typedData)
	if err != nil {
		return nil, nil, &chains.InvalidParamsError{Field: "typedData", Reason: err.Error()}
	}
	return &typedData, digest, nil
}

// TypedDataDigest computes keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func TypedDataDigest(typedData *apitypes.TypedData) ([]byte, error) {
	hash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	return crypto.Keccak256([]byte("\x19\x01"), domainSeparator, hash), nil
}

// RecoverSigner recovers the address that produced a 65-byte signature over digest.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverPersonalSigner recovers the signer of a personal_sign signature
func RecoverPersonalSigner(message string, signature []byte) (common.Address, error) {
	return RecoverSigner(accounts.TextHash([]byte(message)), signature)
}
