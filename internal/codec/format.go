package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultDecimals is the fractional precision of BURR and STRK
const DefaultDecimals = 18

var suffixes = []struct {
	exp    int64
	suffix string
}{
	{12, "T"},
	{9, "B"},
	{6, "M"},
	{3, "K"},
}

// Pow10 returns 10^n
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// SplitUnits divides a raw amount into whole tokens and the smallest-unit remainder
func SplitUnits(amount *big.Int, decimals int) (whole, remainder *big.Int) {
	if amount == nil {
		return new(big.Int), new(big.Int)
	}
	return new(big.Int).QuoRem(amount, Pow10(decimals), new(big.Int))
}

// roundTo returns amount*scale/divisor rounded half up
func roundTo(amount, divisor, scale *big.Int) *big.Int {
	n := new(big.Int).Mul(amount, scale)
	n.Add(n, new(big.Int).Rsh(divisor, 1))
	return n.Quo(n, divisor)
}

// Format renders an amount compactly: "0", "0.5000", "1.50", "1.5K", "1.0M".
// Values below one show four decimals, values below 1000 show two, larger
// values use a K/M/B/T suffix with one decimal.
func Format(amount *big.Int, decimals int) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Warn("⚠️  amount formatting panicked")
			out = "0"
		}
	}()

	if amount == nil || amount.Sign() <= 0 {
		return "0"
	}
	divisor := Pow10(decimals)

	whole, _ := SplitUnits(amount, decimals)
	if whole.Sign() == 0 {
		units := roundTo(amount, divisor, big.NewInt(10_000))
		if units.Cmp(big.NewInt(10_000)) < 0 {
			return fmt.Sprintf("0.%04d", units.Int64())
		}
		// rounds up to one
	}

	if whole.Cmp(big.NewInt(1000)) < 0 {
		hundredths := roundTo(amount, divisor, big.NewInt(100))
		if hundredths.Cmp(big.NewInt(100_000)) < 0 {
			q, r := new(big.Int).QuoRem(hundredths, big.NewInt(100), new(big.Int))
			return fmt.Sprintf("%s.%02d", q.String(), r.Int64())
		}
		// rounds up to 1000
	}

	idx := len(suffixes) - 1
	for i, s := range suffixes {
		if whole.Cmp(Pow10(int(s.exp))) >= 0 {
			idx = i
			break
		}
	}
	tenths := compactTenths(amount, divisor, suffixes[idx].exp)
	// 999.96K rounds into the next suffix
	if idx > 0 && tenths.Cmp(big.NewInt(10_000)) >= 0 {
		idx--
		tenths = compactTenths(amount, divisor, suffixes[idx].exp)
	}
	q, r := new(big.Int).QuoRem(tenths, big.NewInt(10), new(big.Int))
	return fmt.Sprintf("%s.%d%s", q.String(), r.Int64(), suffixes[idx].suffix)
}

func compactTenths(amount, divisor *big.Int, exp int64) *big.Int {
	return roundTo(amount, new(big.Int).Mul(divisor, Pow10(int(exp))), big.NewInt(10))
}

// FormatClaim never abbreviates. Amounts of one token or more show every
// whole digit grouped by thousands with at most two rounded decimals;
// smaller amounts show four decimals.
func FormatClaim(amount *big.Int, decimals int) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Warn("⚠️  claim formatting panicked")
			out = "0"
		}
	}()

	if amount == nil || amount.Sign() <= 0 {
		return "0"
	}
	divisor := Pow10(decimals)

	whole, _ := SplitUnits(amount, decimals)
	if whole.Sign() == 0 {
		units := roundTo(amount, divisor, big.NewInt(10_000))
		if units.Cmp(big.NewInt(10_000)) < 0 {
			return fmt.Sprintf("0.%04d", units.Int64())
		}
	}

	hundredths := roundTo(amount, divisor, big.NewInt(100))
	q, r := new(big.Int).QuoRem(hundredths, big.NewInt(100), new(big.Int))
	out = groupThousands(q.String())
	switch frac := r.Int64(); {
	case frac == 0:
	case frac%10 == 0:
		out += fmt.Sprintf(".%d", frac/10)
	default:
		out += fmt.Sprintf(".%02d", frac)
	}
	return out
}

// FormatUnits renders the exact decimal value with trailing zeros trimmed
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}
	whole, rem := SplitUnits(amount, decimals)
	if rem.Sign() == 0 || decimals == 0 {
		return whole.String()
	}
	digits := rem.String()
	frac := strings.Repeat("0", decimals-len(digits)) + digits
	return whole.String() + "." + strings.TrimRight(frac, "0")
}

// ParseUnits converts a decimal token quantity such as "50" or "1.25" to smallest units
func ParseUnits(s string, decimals int) (*big.Int, error) {
	clean := strings.NewReplacer(",", "", "_", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(clean, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, _ := strings.Cut(clean, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))

	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// FormatDecoded formats a decode result, rendering Unrecognized as "0"
func FormatDecoded(d Decoded, decimals int) string {
	return Format(d.Amount(), decimals)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
