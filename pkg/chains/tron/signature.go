package tron

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const messagePrefix = "\x19TRON Signed Message:\n"

// MessageHash is the digest TronLink signs for signMessageV2
func MessageHash(message string) []byte {
	return crypto.Keccak256([]byte(messagePrefix + strconv.Itoa(len(message)) + message))
}

// DecodeSignature decodes a 0x-hex 65 byte message signature
func DecodeSignature(encoded string) ([]byte, error) {
	sig, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	return sig, nil
}

// RecoverMessageSigner returns the address that signed message. Both 0/1 and
// 27/28 recovery ids are accepted.
func RecoverMessageSigner(message string, signature []byte) (Address, error) {
	if len(signature) != crypto.SignatureLength {
		return Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(MessageHash(message), sig)
	if err != nil {
		return Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return AddressFromEVM(crypto.PubkeyToAddress(*pub).Bytes()), nil
}

// AddressFromEVM prefixes a 20 byte account id with 0x41
func AddressFromEVM(id []byte) Address {
	payload := append([]byte{addressPrefix}, id...)
	return Address{Base58: EncodeAddress(payload), Hex: hexutil.Encode(payload)[2:]}
}
