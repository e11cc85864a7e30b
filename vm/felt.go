package vm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ---------------------------------------------------------------------------
// Felt: field elements over the Cairo prime
// ---------------------------------------------------------------------------

// feltPrime is the Cairo field prime: 2^251 + 17*2^192 + 1.
const feltPrimeHex = "800000000000011000000000000000000000000000000000000000000000001"

var feltPrime *big.Int

func init() {
	p, ok := new(big.Int).SetString(feltPrimeHex, 16)
	if !ok {
		panic("vm: invalid felt prime constant")
	}
	feltPrime = p
}

// Felt is an immutable field element in the range [0, P).
// The zero value is the field's zero element.
type Felt struct {
	val *big.Int
}

// NewFelt creates a Felt from a signed machine integer.
// Negative inputs wrap into the field (e.g. -1 becomes P-1).
func NewFelt(v int64) Felt {
	return feltFromBig(big.NewInt(v))
}

// feltFromBig reduces v modulo the prime. The argument is not retained.
func feltFromBig(v *big.Int) Felt {
	r := new(big.Int).Mod(v, feltPrime)
	return Felt{val: r}
}

// FeltFromString parses a felt from its textual form. Hex values carry a
// "0x" prefix and must have an even number of digits; anything else is
// parsed as decimal. Values are reduced modulo the prime.
func FeltFromString(s string) (Felt, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		if len(rest) == 0 {
			return Felt{}, fmt.Errorf("empty hex literal %q", s)
		}
		if len(rest)%2 != 0 {
			return Felt{}, fmt.Errorf("odd-length hex literal %q", s)
		}
		raw, err := hex.DecodeString(rest)
		if err != nil {
			return Felt{}, fmt.Errorf("invalid hex literal %q: %w", s, err)
		}
		return feltFromBig(new(big.Int).SetBytes(raw)), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Felt{}, fmt.Errorf("invalid decimal literal %q", s)
	}
	return feltFromBig(v), nil
}

// big returns the underlying integer, materializing the zero value lazily.
func (f Felt) big() *big.Int {
	if f.val == nil {
		return new(big.Int)
	}
	return f.val
}

// Add returns f + g in the field.
func (f Felt) Add(g Felt) Felt {
	return feltFromBig(new(big.Int).Add(f.big(), g.big()))
}

// Sub returns f - g in the field.
func (f Felt) Sub(g Felt) Felt {
	return feltFromBig(new(big.Int).Sub(f.big(), g.big()))
}

// Mul returns f * g in the field.
func (f Felt) Mul(g Felt) Felt {
	return feltFromBig(new(big.Int).Mul(f.big(), g.big()))
}

// Div returns f / g in the field (multiplication by the modular inverse).
func (f Felt) Div(g Felt) (Felt, error) {
	if g.IsZero() {
		return Felt{}, fmt.Errorf("felt division by zero")
	}
	inv := new(big.Int).ModInverse(g.big(), feltPrime)
	return feltFromBig(inv.Mul(inv, f.big())), nil
}

// Cmp compares the canonical representatives: -1 if f < g, 0 if equal, 1 if f > g.
func (f Felt) Cmp(g Felt) int {
	return f.big().Cmp(g.big())
}

// Equal reports whether f and g are the same field element.
func (f Felt) Equal(g Felt) bool {
	return f.Cmp(g) == 0
}

// IsZero reports whether f is the zero element.
func (f Felt) IsZero() bool {
	return f.val == nil || f.val.Sign() == 0
}

// Uint64 returns the canonical representative as a uint64.
// Fails if the value does not fit.
func (f Felt) Uint64() (uint64, error) {
	v := f.big()
	if !v.IsUint64() {
		return 0, fmt.Errorf("felt %s does not fit in uint64", v)
	}
	return v.Uint64(), nil
}

// RelOffset interprets f as a signed pc/ap displacement: values above P/2
// count down from the prime. Fails if the magnitude exceeds int64.
func (f Felt) RelOffset() (int64, error) {
	v := f.big()
	half := new(big.Int).Rsh(feltPrime, 1)
	if v.Cmp(half) > 0 {
		neg := new(big.Int).Sub(v, feltPrime)
		if !neg.IsInt64() {
			return 0, fmt.Errorf("felt %s is out of displacement range", f)
		}
		return neg.Int64(), nil
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("felt %s is out of displacement range", f)
	}
	return v.Int64(), nil
}

// String renders the canonical decimal form.
func (f Felt) String() string {
	return f.big().Text(10)
}
