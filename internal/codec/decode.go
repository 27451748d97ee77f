package codec

import (
	"math/big"

	"github.com/sirupsen/logrus"
)

const limbBits = 128

// Decoded is either a recognized Amount or Unrecognized. The zero value is Unrecognized.
type Decoded struct {
	value *big.Int
	kind  Kind
}

// Value wraps a recognized amount
func Value(a *big.Int) Decoded {
	if a == nil || a.Sign() < 0 {
		return Decoded{}
	}
	return Decoded{value: new(big.Int).Set(a), kind: KindSingle}
}

// Unrecognized is returned when no numeric interpretation exists
var Unrecognized = Decoded{}

// OK reports whether the input was recognized
func (d Decoded) OK() bool { return d.value != nil }

// Kind reports the shape the value was decoded from
func (d Decoded) Kind() Kind { return d.kind }

// Amount collapses Unrecognized to zero. The result is a fresh copy.
func (d Decoded) Amount() *big.Int {
	if d.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.value)
}

func (d Decoded) String() string {
	if d.value == nil {
		return "unrecognized"
	}
	return d.value.String()
}

// Decode classifies v and decodes it into an Amount. It never panics.
func Decode(v any) (d Decoded) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Warn("⚠️  numeric decode panicked, treating as unrecognized")
			d = Unrecognized
		}
	}()
	return DecodeRaw(Classify(v))
}

// DecodeAmount decodes v and substitutes zero when it is unrecognized
func DecodeAmount(v any) *big.Int {
	return Decode(v).Amount()
}

// DecodeRaw decodes an already classified value
func DecodeRaw(r Raw) Decoded {
	switch r.Kind {
	case KindSingle:
		return tagged(r.Single, KindSingle)

	case KindDecimalString:
		n, err := parseNumeric(r.Text)
		if err != nil {
			return Unrecognized
		}
		return tagged(n, KindDecimalString)

	case KindLimbPair:
		return tagged(joinLimbs(r.Low, r.High), KindLimbPair)

	case KindArray:
		switch {
		case len(r.Elems) > 2:
			logrus.WithField("elements", len(r.Elems)).Warn("⚠️  array longer than a limb pair, treating as unrecognized")
			return Unrecognized
		case len(r.Elems) == 2:
			lo, okLo := singleInt(r.Elems[0])
			hi, okHi := singleInt(r.Elems[1])
			if !okLo || !okHi {
				return Unrecognized
			}
			return tagged(joinLimbs(lo, hi), KindArray)
		case len(r.Elems) == 1:
			d := DecodeRaw(r.Elems[0])
			if d.OK() {
				d.kind = KindArray
			}
			return d
		}
		return Unrecognized

	case KindObject:
		if bal, ok := r.Fields["balance"]; ok {
			if d := DecodeRaw(bal); d.OK() {
				return d
			}
		}
		for _, k := range r.keys {
			f := r.Fields[k]
			if f.Kind != KindSingle && f.Kind != KindDecimalString {
				continue
			}
			if d := DecodeRaw(f); d.OK() {
				d.kind = KindObject
				return d
			}
		}
		return Unrecognized
	}

	return Unrecognized
}

func tagged(n *big.Int, kind Kind) Decoded {
	if n == nil || n.Sign() < 0 {
		return Unrecognized
	}
	return Decoded{value: n, kind: kind}
}

func joinLimbs(low, high *big.Int) *big.Int {
	if low.Sign() < 0 || high.Sign() < 0 {
		return nil
	}
	out := new(big.Int).Lsh(high, limbBits)
	return out.Add(out, low)
}
