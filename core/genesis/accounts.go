package genesis

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// AccountHRP is the human-readable prefix of bech32 account strings.
const AccountHRP = "bean"

// ParseAccount accepts a 0x-prefixed hex address or a bech32 address with the
// bean prefix.
func ParseAccount(addr string) (common.Address, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return common.Address{}, fmt.Errorf("account must be provided")
	}
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		if !common.IsHexAddress(addr) {
			return common.Address{}, fmt.Errorf("invalid hex account %q", addr)
		}
		return common.HexToAddress(addr), nil
	}
	return ParseBech32Account(addr)
}

func ParseBech32Account(addr string) (common.Address, error) {
	var out common.Address
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if hrp != AccountHRP {
		return out, fmt.Errorf("decode bech32 account: unsupported hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("decode bech32 account: %w", err)
	}
	if len(decoded) != common.AddressLength {
		return out, fmt.Errorf("decode bech32 account: invalid address length %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// FormatBech32Account renders addr with the bean prefix.
func FormatBech32Account(addr common.Address) (string, error) {
	data, err := bech32.ConvertBits(addr[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(AccountHRP, data)
}
