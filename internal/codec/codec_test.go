package codec

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Pow10(DefaultDecimals))
}

func TestDecodeEquivalentRepresentations(t *testing.T) {
	inputs := []struct {
		name string
		raw  any
		kind Kind
	}{
		{name: "native int", raw: 12345, kind: KindSingle},
		{name: "uint64", raw: uint64(12345), kind: KindSingle},
		{name: "decimal string", raw: "12345", kind: KindDecimalString},
		{name: "grouped string", raw: "12,345", kind: KindDecimalString},
		{name: "hex string", raw: "0x3039", kind: KindDecimalString},
		{name: "limb map", raw: map[string]any{"low": 12345, "high": 0}, kind: KindLimbPair},
		{name: "limb struct", raw: Limbs{Low: "12345", High: "0"}, kind: KindLimbPair},
		{name: "two element array", raw: []any{12345, 0}, kind: KindArray},
		{name: "felt pair", raw: []*felt.Felt{utils.Uint64ToFelt(12345), utils.Uint64ToFelt(0)}, kind: KindArray},
		{name: "big int", raw: big.NewInt(12345), kind: KindSingle},
		{name: "felt", raw: utils.Uint64ToFelt(12345), kind: KindSingle},
		{name: "uint256", raw: uint256.NewInt(12345), kind: KindSingle},
		{name: "uint256 value", raw: *uint256.NewInt(12345), kind: KindSingle},
		{name: "json number", raw: json.Number("12345"), kind: KindDecimalString},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode(tt.raw)
			require.True(t, d.OK())
			assert.Equal(t, "12345", d.Amount().String())
			assert.Equal(t, tt.kind, d.Kind())
		})
	}
}

func TestDecodeLimbPairUsesHighLimb(t *testing.T) {
	expected := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(2), 128), big.NewInt(7))

	assert.Equal(t, expected.String(), DecodeAmount(map[string]any{"low": 7, "high": 2}).String())
	assert.Equal(t, expected.String(), DecodeAmount([]string{"7", "2"}).String())
}

func TestDecodeWideUint256Value(t *testing.T) {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 70)
	expected := new(big.Int).Lsh(big.NewInt(1), 70)

	assert.Equal(t, expected.String(), DecodeAmount(*v).String())
	assert.Equal(t, expected.String(), DecodeAmount(v).String())
}

func TestDecodeObjectFallbacks(t *testing.T) {
	t.Run("broken limbs fall back to other fields", func(t *testing.T) {
		d := Decode(map[string]any{"low": "x", "high": 0, "balance": "7"})
		require.True(t, d.OK())
		assert.Equal(t, "7", d.Amount().String())
	})

	t.Run("balance field", func(t *testing.T) {
		d := Decode(map[string]any{"balance": "500", "other": 1})
		require.True(t, d.OK())
		assert.Equal(t, "500", d.Amount().String())
	})

	t.Run("balance as limb pair", func(t *testing.T) {
		d := Decode(map[string]any{"balance": map[string]any{"low": "9", "high": "0"}})
		assert.Equal(t, "9", d.Amount().String())
	})

	t.Run("first numeric field in key order", func(t *testing.T) {
		d := Decode(map[string]any{"zeta": 2, "alpha": "not a number", "beta": 42})
		require.True(t, d.OK())
		assert.Equal(t, "42", d.Amount().String())
		assert.Equal(t, KindObject, d.Kind())
	})

	t.Run("no numeric field", func(t *testing.T) {
		d := Decode(map[string]any{"name": "beaver"})
		assert.False(t, d.OK())
		assert.Equal(t, "0", d.Amount().String())
	})
}

func TestDecodeUnrecognized(t *testing.T) {
	inputs := map[string]any{
		"nil":            nil,
		"bool":           true,
		"float":          1.5,
		"garbage string": "12abc",
		"empty string":   "",
		"negative":       -5,
		"empty array":    []any{},
		"bad limbs":      map[string]any{"low": "x", "high": 0},
		"three elements": []any{1, 2, 3},
		"four felts":     []*felt.Felt{utils.Uint64ToFelt(1), utils.Uint64ToFelt(2), utils.Uint64ToFelt(3), utils.Uint64ToFelt(4)},
		"nil big int":    (*big.Int)(nil),
		"nil felt":       (*felt.Felt)(nil),
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			d := Decode(raw)
			assert.False(t, d.OK())
			assert.Equal(t, Unrecognized, d)
			assert.Equal(t, "0", d.Amount().String())
			assert.Equal(t, "0", FormatDecoded(d, DefaultDecimals))
		})
	}
}

func TestDecodeSingleElementArray(t *testing.T) {
	d := Decode([]any{"77"})
	require.True(t, d.OK())
	assert.Equal(t, "77", d.Amount().String())
}

func TestDecodedAmountIsCopy(t *testing.T) {
	d := Value(big.NewInt(10))
	d.Amount().SetInt64(99)
	assert.Equal(t, "10", d.Amount().String())
}

func TestFormatBoundaries(t *testing.T) {
	half := new(big.Int).Quo(tokens(1), big.NewInt(2))
	oneAndHalf := new(big.Int).Add(tokens(1), half)
	oneAndHalfK := new(big.Int).Mul(big.NewInt(1500), Pow10(DefaultDecimals))

	tests := []struct {
		name     string
		amount   *big.Int
		expected string
	}{
		{name: "zero", amount: big.NewInt(0), expected: "0"},
		{name: "nil", amount: nil, expected: "0"},
		{name: "half", amount: half, expected: "0.5000"},
		{name: "one and a half", amount: oneAndHalf, expected: "1.50"},
		{name: "1500", amount: oneAndHalfK, expected: "1.5K"},
		{name: "one million", amount: tokens(1_000_000), expected: "1.0M"},
		{name: "two billion", amount: tokens(2_100_000_000), expected: "2.1B"},
		{name: "trillions", amount: tokens(3_000_000_000_000), expected: "3.0T"},
		{name: "one wei", amount: big.NewInt(1), expected: "0.0000"},
		{name: "rounds to one", amount: new(big.Int).Sub(tokens(1), big.NewInt(1)), expected: "1.00"},
		{name: "rounds to 1000", amount: new(big.Int).Sub(tokens(1000), big.NewInt(1)), expected: "1.0K"},
		{name: "rounds into next suffix", amount: new(big.Int).Sub(tokens(1_000_000), big.NewInt(1)), expected: "1.0M"},
		{name: "999.99", amount: new(big.Int).Sub(tokens(1000), new(big.Int).Quo(tokens(1), big.NewInt(100))), expected: "999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.amount, DefaultDecimals))
		})
	}
}

func TestFormatPreservesPrecision(t *testing.T) {
	amount := new(big.Int).Add(Pow10(30), big.NewInt(7))

	whole, rem := SplitUnits(amount, DefaultDecimals)
	assert.Equal(t, "1000000000000", whole.String())
	assert.Equal(t, "7", rem.String())

	reconstructed := new(big.Int).Mul(whole, Pow10(DefaultDecimals))
	reconstructed.Add(reconstructed, rem)
	assert.Equal(t, amount.String(), reconstructed.String())

	claim := FormatClaim(amount, DefaultDecimals)
	assert.Equal(t, "1,000,000,000,000", claim)
	parsed, ok := new(big.Int).SetString(strings.ReplaceAll(claim, ",", ""), 10)
	require.True(t, ok)
	assert.Equal(t, whole.String(), parsed.String())

	assert.Equal(t, "1000000000000.000000000000000007", FormatUnits(amount, DefaultDecimals))
	assert.Equal(t, "1.0T", Format(amount, DefaultDecimals))
}

func TestFormatClaim(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890123", 10)

	tests := []struct {
		name     string
		amount   *big.Int
		expected string
	}{
		{name: "zero", amount: big.NewInt(0), expected: "0"},
		{name: "sub one", amount: new(big.Int).Quo(tokens(1), big.NewInt(4)), expected: "0.2500"},
		{name: "whole", amount: tokens(1500), expected: "1,500"},
		{name: "one decimal", amount: new(big.Int).Add(tokens(2), new(big.Int).Quo(tokens(1), big.NewInt(2))), expected: "2.5"},
		{name: "two decimals", amount: new(big.Int).Add(tokens(2), new(big.Int).Quo(tokens(1), big.NewInt(4))), expected: "2.25"},
		{name: "huge", amount: huge, expected: "123,456,789,012,345.68"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatClaim(tt.amount, DefaultDecimals))
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		hasError bool
	}{
		{input: "50", expected: tokens(50).String()},
		{input: "1.25", expected: "1250000000000000000"},
		{input: ".5", expected: "500000000000000000"},
		{input: "1,000", expected: tokens(1000).String()},
		{input: "", hasError: true},
		{input: "-1", hasError: true},
		{input: "abc", hasError: true},
		{input: "1.0000000000000000001", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseUnits(tt.input, DefaultDecimals)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "0", FormatUnits(nil, 18))
	assert.Equal(t, "1.5", FormatUnits(new(big.Int).Add(tokens(1), new(big.Int).Quo(tokens(1), big.NewInt(2))), 18))
	assert.Equal(t, "42", FormatUnits(tokens(42), 18))
	assert.Equal(t, "0.000000000000000001", FormatUnits(big.NewInt(1), 18))
}
