package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// ValidateAddress checks a hex address and returns it in EIP-55 checksum form
func ValidateAddress(field, addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", &chains.InvalidParamsError{Field: field, Reason: fmt.Sprintf("%q is not a hex address", addr)}
	}
	return common.HexToAddress(addr).Hex(), nil
}

// NormalizeAccounts validates host supplied accounts
func NormalizeAccounts(accounts []string) ([]string, error) {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		addr, err := ValidateAddress("account", a)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// ValidateTxHash checks the 0x + 64 hex shape of a transaction hash
func ValidateTxHash(txHash string) (string, error) {
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}
	if len(txHash) != 66 { // 0x + 64 hex chars
		return "", fmt.Errorf("invalid transaction hash format: %s", txHash)
	}
	if _, err := hexutil.Decode(txHash); err != nil {
		return "", fmt.Errorf("invalid transaction hash format: %s: %w", txHash, err)
	}
	return strings.ToLower(txHash), nil
}

// AddressesEqual compares two addresses ignoring EIP-55 checksum casing
func AddressesEqual(addr1, addr2 string) bool {
	return strings.EqualFold(addr1, addr2)
}

// NormalizeChainID accepts a decimal or 0x-hex chain id and returns canonical 0x-hex
func NormalizeChainID(chainID string) (string, error) {
	id, err := ParseChainID(chainID)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(id), nil
}

// ParseChainID accepts a decimal or 0x-hex chain id
func ParseChainID(chainID string) (*big.Int, error) {
	s := strings.TrimSpace(chainID)
	invalid := &chains.InvalidParamsError{Field: "chainId", Reason: fmt.Sprintf("%q is not a chain id", chainID)}

	var id *big.Int
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, invalid
		}
		id = v
	} else {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, invalid
		}
		id = v
	}
	if id.Sign() <= 0 {
		return nil, invalid
	}
	return id, nil
}

// txObject builds the JSON transaction object understood by eth_sendTransaction and eth_signTransaction
func txObject(from string, tx *chains.TxRequest) (map[string]any, error) {
	obj := map[string]any{"from": from}

	if tx.To != "" {
		to, err := ValidateAddress("to", tx.To)
		if err != nil {
			return nil, err
		}
		obj["to"] = to
	} else if len(tx.Data) == 0 {
		return nil, &chains.InvalidParamsError{Field: "to", Reason: "required unless data deploys a contract"}
	}

	if tx.Amount != nil {
		if tx.Amount.Sign() < 0 {
			return nil, &chains.InvalidParamsError{Field: "amount", Reason: "must not be negative"}
		}
		obj["value"] = hexutil.EncodeBig(tx.Amount)
	}
	if len(tx.Data) > 0 {
		obj["data"] = hexutil.Encode(tx.Data)
	}

	for key, value := range tx.Extra {
		switch v := value.(type) {
		case *big.Int:
			obj[key] = hexutil.EncodeBig(v)
		case uint64:
			obj[key] = hexutil.EncodeUint64(v)
		case int:
			obj[key] = hexutil.EncodeUint64(uint64(v))
		default:
			obj[key] = v
		}
	}

	return obj, nil
}
