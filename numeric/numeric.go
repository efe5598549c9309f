// Package numeric provides the fixed-point arithmetic core used by all
// digit engines. A Real is an unbounded integer mantissa scaled by
// base^prec, where prec is the number of fractional digits guaranteed
// correct. Higher layers request a precision budget up front and must
// not consume digits beyond what the budget guarantees.
package numeric

import (
	"fmt"
	"math"
	"math/big"
)

// DefaultGuard is the default number of extra fractional digits carried
// beyond the requested output length to absorb rounding in intermediate
// operations. See Budget.
const DefaultGuard = 15

// MinBase and MaxBase bound the digit bases representable by a Real.
// The pipeline restricts requests to bases 10 and 16; the arithmetic
// core itself is base-agnostic within this range.
const (
	MinBase = 2
	MaxBase = 36
)

// Budget captures how much working precision an engine must carry to
// deliver n correct fractional digits in a base. A Budget is derived
// from a request and never silently reused across a different request.
type Budget struct {
	// Digits is the number of requested fractional digits.
	Digits int
	// Base is the output digit base.
	Base int
	// Guard is the number of extra working digits.
	Guard int
}

// NewBudget validates and constructs a precision budget. A guard of
// zero selects DefaultGuard.
func NewBudget(digits, base, guard int) (Budget, error) {
	if digits < 0 {
		return Budget{}, fmt.Errorf("numeric: digit count must be >= 0, got %d", digits)
	}
	if base < MinBase || base > MaxBase {
		return Budget{}, fmt.Errorf("numeric: base must be in [%d,%d], got %d", MinBase, MaxBase, base)
	}
	if guard < 0 {
		return Budget{}, fmt.Errorf("numeric: guard must be >= 0, got %d", guard)
	}
	if guard == 0 {
		guard = DefaultGuard
	}
	return Budget{Digits: digits, Base: base, Guard: guard}, nil
}

// Working returns the total fractional digits an engine must compute:
// the requested digits plus the guard margin.
func (b Budget) Working() int { return b.Digits + b.Guard }

// Widen returns a budget with twice the guard margin. Used for the
// single retry after a precision-exhaustion failure.
func (b Budget) Widen() Budget {
	w := b
	w.Guard *= 2
	if w.Guard == 0 {
		w.Guard = 2 * DefaultGuard
	}
	return w
}

// DecimalDigits returns the number of decimal digits equivalent to the
// working precision, rounded up. Series whose convergence is stated in
// decimal digits per term (Chudnovsky) size their term count from this.
func (b Budget) DecimalDigits() int {
	return int(math.Ceil(float64(b.Working())*math.Log10(float64(b.Base)))) + 1
}

// Scale returns base^prec.
func Scale(base, prec int) *big.Int {
	return new(big.Int).Exp(big.NewInt(int64(base)), big.NewInt(int64(prec)), nil)
}

// Real is a fixed-point real value: mant / base^prec. The zero value is
// not usable; construct through FromInt, FromRat, or engine outputs.
//
// All binary operations require both operands to share base and prec.
// Engines evaluate everything at a single working scale, so mixed-scale
// arithmetic indicates a programming error and panics.
type Real struct {
	mant *big.Int
	base int
	prec int
}

// FromInt returns v as a Real at the given scale.
func FromInt(v int64, base, prec int) Real {
	m := new(big.Int).Mul(big.NewInt(v), Scale(base, prec))
	return Real{mant: m, base: base, prec: prec}
}

// FromMant wraps an already-scaled mantissa. The caller must guarantee
// mant is the floor of value*base^prec.
func FromMant(mant *big.Int, base, prec int) Real {
	return Real{mant: new(big.Int).Set(mant), base: base, prec: prec}
}

// FromRat returns floor(num/den * base^prec) as a Real.
func FromRat(num, den *big.Int, base, prec int) (Real, error) {
	if den.Sign() == 0 {
		return Real{}, fmt.Errorf("numeric: zero denominator")
	}
	m := new(big.Int).Mul(num, Scale(base, prec))
	floorQuo(m, m, den)
	return Real{mant: m, base: base, prec: prec}, nil
}

// Base returns the digit base of the scale.
func (x Real) Base() int { return x.base }

// Prec returns the number of correct fractional digits.
func (x Real) Prec() int { return x.prec }

// Mant returns a copy of the scaled mantissa.
func (x Real) Mant() *big.Int { return new(big.Int).Set(x.mant) }

// Sign returns -1, 0, or +1.
func (x Real) Sign() int { return x.mant.Sign() }

func (x Real) check(y Real) {
	if x.base != y.base || x.prec != y.prec {
		panic(fmt.Sprintf("numeric: mixed scales: %d^-%d vs %d^-%d", x.base, x.prec, y.base, y.prec))
	}
}

// Add returns x + y.
func (x Real) Add(y Real) Real {
	x.check(y)
	return Real{mant: new(big.Int).Add(x.mant, y.mant), base: x.base, prec: x.prec}
}

// Sub returns x - y.
func (x Real) Sub(y Real) Real {
	x.check(y)
	return Real{mant: new(big.Int).Sub(x.mant, y.mant), base: x.base, prec: x.prec}
}

// Mul returns x * y at the shared scale. The product loses at most one
// unit in the last place to the final floor.
func (x Real) Mul(y Real) Real {
	x.check(y)
	m := new(big.Int).Mul(x.mant, y.mant)
	floorQuo(m, m, Scale(x.base, x.prec))
	return Real{mant: m, base: x.base, prec: x.prec}
}

// Quo returns x / y at the shared scale.
func (x Real) Quo(y Real) (Real, error) {
	x.check(y)
	if y.mant.Sign() == 0 {
		return Real{}, fmt.Errorf("numeric: division by zero")
	}
	m := new(big.Int).Mul(x.mant, Scale(x.base, x.prec))
	floorQuo(m, m, y.mant)
	return Real{mant: m, base: x.base, prec: x.prec}, nil
}

// MulInt returns x * k.
func (x Real) MulInt(k int64) Real {
	return Real{mant: new(big.Int).Mul(x.mant, big.NewInt(k)), base: x.base, prec: x.prec}
}

// QuoInt returns x / k.
func (x Real) QuoInt(k int64) (Real, error) {
	if k == 0 {
		return Real{}, fmt.Errorf("numeric: division by zero")
	}
	m := new(big.Int).Set(x.mant)
	floorQuo(m, m, big.NewInt(k))
	return Real{mant: m, base: x.base, prec: x.prec}, nil
}

// Split separates x into its integer part (floored) and the scaled
// non-negative fractional remainder, 0 <= frac < base^prec.
func (x Real) Split() (ip *big.Int, frac *big.Int) {
	ip = new(big.Int)
	frac = new(big.Int)
	ip.DivMod(x.mant, Scale(x.base, x.prec), frac)
	return ip, frac
}

// Truncate returns x reduced to a smaller precision. Truncating to a
// larger precision than x carries is an error: the extra digits would
// be fabricated.
func (x Real) Truncate(prec int) (Real, error) {
	if prec > x.prec {
		return Real{}, fmt.Errorf("numeric: cannot extend precision from %d to %d digits", x.prec, prec)
	}
	if prec == x.prec {
		return Real{mant: new(big.Int).Set(x.mant), base: x.base, prec: x.prec}, nil
	}
	m := new(big.Int).Set(x.mant)
	floorQuo(m, m, Scale(x.base, x.prec-prec))
	return Real{mant: m, base: x.base, prec: prec}, nil
}

// SqrtInt returns sqrt(n) as a Real at the given scale, for n >= 0.
// The result is floor-exact: mant = floor(sqrt(n) * base^prec).
func SqrtInt(n int64, base, prec int) Real {
	s := Scale(base, prec)
	m := new(big.Int).Mul(s, s)
	m.Mul(m, big.NewInt(n))
	m.Sqrt(m)
	return Real{mant: m, base: base, prec: prec}
}

// floorQuo sets z = floor(a/b) with sign-correct flooring (big.Int.Quo
// truncates toward zero, which is wrong for negative operands here).
func floorQuo(z, a, b *big.Int) {
	m := new(big.Int)
	z.DivMod(a, b, m)
	if b.Sign() < 0 {
		// DivMod is Euclidean (0 <= m < |b|); for negative divisors
		// the floor is one less whenever a remainder exists.
		if m.Sign() != 0 {
			z.Sub(z, big.NewInt(1))
		}
	}
}
