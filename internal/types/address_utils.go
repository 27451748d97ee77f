package types

import (
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
)

// NormalizeAddress folds case and strips the 0x prefix and leading zero padding.
// "0x00ABc" and "0xabc" normalize to the same value; the zero address normalizes to "0".
func NormalizeAddress(address string) string {
	clean := strings.ToLower(strings.TrimSpace(address))
	clean = strings.TrimPrefix(clean, "0x")
	clean = strings.TrimLeft(clean, "0")
	if clean == "" {
		return "0"
	}
	return clean
}

// SameAddress compares two addresses after normalization
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ToStarknetAddress converts a string address to Starknet felt for operations like allowances
func ToStarknetAddress(address string) (*felt.Felt, error) {
	f, err := utils.HexToFelt(strings.TrimSpace(address))
	if err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("failed to convert address to felt: %w", err)
}

// FeltToAddress renders a felt as a 0x-prefixed, 64 digit hex address
func FeltToAddress(f *felt.Felt) string {
	if f == nil {
		return ""
	}
	b := f.Bytes()
	return fmt.Sprintf("0x%x", b[:])
}

// PadAddress returns the canonical 64 digit form of a hex address
func PadAddress(address string) (string, error) {
	f, err := ToStarknetAddress(address)
	if err != nil {
		return "", err
	}
	return FeltToAddress(f), nil
}

// ShortAddress abbreviates an address for display, e.g. 0x0123...cdef
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
