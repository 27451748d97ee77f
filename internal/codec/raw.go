package codec

// Module: Numeric Codec
// - Classifies heterogeneous chain results into a closed set of shapes
// - Decodes every shape into an exact, non-negative Amount
// - Formats Amounts for display using integer arithmetic only

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/holiman/uint256"
)

// Kind tags the shape of a raw chain value
type Kind int

const (
	KindUnknown Kind = iota
	KindSingle
	KindLimbPair
	KindArray
	KindDecimalString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindLimbPair:
		return "limb-pair"
	case KindArray:
		return "array"
	case KindDecimalString:
		return "decimal-string"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Limbs is a u256 split into 128-bit halves. Low and High may hold any
// value Classify understands as a single integer.
type Limbs struct {
	Low  any
	High any
}

// Raw is a classified chain value. Only the fields matching Kind are set.
type Raw struct {
	Kind Kind

	Single *big.Int       // KindSingle
	Low    *big.Int       // KindLimbPair
	High   *big.Int       // KindLimbPair
	Elems  []Raw          // KindArray
	Text   string         // KindDecimalString
	Fields map[string]Raw // KindObject
	keys   []string       // KindObject, sorted
	source reflect.Kind   // KindUnknown diagnostics
}

// Classify inspects v once and returns its tagged shape
func Classify(v any) Raw {
	switch x := v.(type) {
	case nil:
		return Raw{Kind: KindUnknown}
	case Raw:
		return x
	case *big.Int:
		if x == nil {
			return Raw{Kind: KindUnknown}
		}
		return Raw{Kind: KindSingle, Single: new(big.Int).Set(x)}
	case *felt.Felt:
		if x == nil {
			return Raw{Kind: KindUnknown}
		}
		return Raw{Kind: KindSingle, Single: utils.FeltToBigInt(x)}
	case *uint256.Int:
		if x == nil {
			return Raw{Kind: KindUnknown}
		}
		return Raw{Kind: KindSingle, Single: x.ToBig()}
	case uint256.Int:
		return Raw{Kind: KindSingle, Single: x.ToBig()}
	case string:
		return Raw{Kind: KindDecimalString, Text: x}
	case Limbs:
		return limbPair(x.Low, x.High)
	case []*felt.Felt:
		elems := make([]Raw, len(x))
		for i, f := range x {
			elems[i] = Classify(f)
		}
		return Raw{Kind: KindArray, Elems: elems}
	case map[string]any:
		return classifyMap(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Raw{Kind: KindSingle, Single: big.NewInt(rv.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Raw{Kind: KindSingle, Single: new(big.Int).SetUint64(rv.Uint())}
	case reflect.String:
		return Raw{Kind: KindDecimalString, Text: rv.String()}
	case reflect.Slice, reflect.Array:
		elems := make([]Raw, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems[i] = Classify(rv.Index(i).Interface())
		}
		return Raw{Kind: KindArray, Elems: elems}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return classifyMap(m)
	}

	return Raw{Kind: KindUnknown, source: rv.Kind()}
}

func classifyMap(m map[string]any) Raw {
	low, hasLow := m["low"]
	high, hasHigh := m["high"]
	limbs := hasLow && hasHigh
	if limbs {
		if r := limbPair(low, high); r.Kind == KindLimbPair {
			return r
		}
	}

	// a broken limb pair falls back to the remaining fields
	fields := make(map[string]Raw, len(m))
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if limbs && (k == "low" || k == "high") {
			continue
		}
		fields[k] = Classify(v)
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Raw{Kind: KindObject, Fields: fields, keys: keys}
}

func limbPair(low, high any) Raw {
	lo, okLo := singleInt(Classify(low))
	hi, okHi := singleInt(Classify(high))
	if !okLo || !okHi {
		return Raw{Kind: KindUnknown, source: reflect.Map}
	}
	return Raw{Kind: KindLimbPair, Low: lo, High: hi}
}

// singleInt resolves a raw that denotes one integer (a number or numeric string)
func singleInt(r Raw) (*big.Int, bool) {
	switch r.Kind {
	case KindSingle:
		return r.Single, true
	case KindDecimalString:
		n, err := parseNumeric(r.Text)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return nil, false
}

// parseNumeric accepts decimal strings with grouping commas or spaces and 0x hex strings
func parseNumeric(s string) (*big.Int, error) {
	clean := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("empty numeric string")
	}

	n := new(big.Int)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		if _, ok := n.SetString(clean[2:], 16); !ok {
			return nil, fmt.Errorf("invalid hex string %q", s)
		}
		return n, nil
	}
	if _, ok := n.SetString(clean, 10); !ok {
		return nil, fmt.Errorf("invalid decimal string %q", s)
	}
	return n, nil
}
