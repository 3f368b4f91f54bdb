package common

import (
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPoints is the fixed-point denominator for every ratio in the protocol.
const BasisPoints = 10_000

var (
	// MaxAmount bounds every stored amount to the signed 128-bit range.
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

	bpsDenominator = big.NewInt(BasisPoints)
)

// MulDiv returns floor(a*b/c). The operands are widened to 256-bit unsigned
// integers before multiplying and the quotient is narrowed back to the amount
// range. Negative operands, a zero denominator, or a result outside the
// amount range yield ErrOverflow.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if a == nil || b == nil || c == nil {
		return nil, ErrOverflow
	}
	x, overflow := uint256.FromBig(a)
	if overflow || a.Sign() < 0 {
		return nil, ErrOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, ErrOverflow
	}
	z, overflow := uint256.FromBig(c)
	if overflow || c.Sign() < 0 || z.IsZero() {
		return nil, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	quotient := new(uint256.Int).Div(product, z).ToBig()
	if quotient.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	return quotient, nil
}

// MulDivBps returns floor(amount*bps/10000).
func MulDivBps(amount *big.Int, bps uint64) (*big.Int, error) {
	return MulDiv(amount, new(big.Int).SetUint64(bps), bpsDenominator)
}

// RatioBps returns floor(numerator*10000/denominator).
func RatioBps(numerator, denominator *big.Int) (*big.Int, error) {
	return MulDiv(numerator, bpsDenominator, denominator)
}

// CheckedAdd returns a+b or ErrOverflow when the sum leaves the amount range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(Amount(a), Amount(b))
	if sum.Sign() < 0 || sum.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrOverflow when the difference would be negative.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(Amount(a), Amount(b))
	if diff.Sign() < 0 || diff.Cmp(MaxAmount) > 0 {
		return nil, ErrOverflow
	}
	return diff, nil
}

// SaturatingSub returns max(a-b, 0).
func SaturatingSub(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(Amount(a), Amount(b))
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	return diff
}

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	a, b = Amount(a), Amount(b)
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Amount returns v, or zero when v is nil.
func Amount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// CopyAmount returns an independent copy of v, treating nil as zero.
func CopyAmount(v *big.Int) *big.Int {
	return new(big.Int).Set(Amount(v))
}

// ValidAmount reports whether v is non-nil, strictly positive, and within the
// amount range.
func ValidAmount(v *big.Int) bool {
	return v != nil && v.Sign() > 0 && v.Cmp(MaxAmount) <= 0
}
