// Package series evaluates the supported constants as convergent
// series (or closed algebraic forms) to a requested precision budget.
// Each engine carries its own closed-form tail bound and stops only
// when the remaining tail is provably below one unit in the last
// working digit; the budget's guard margin absorbs the accumulated
// floor-rounding of intermediate fixed-point steps.
package series

import (
	"fmt"
	"math"
	"math/big"

	"github.com/digitloom/digitloom/chudnovsky"
	"github.com/digitloom/digitloom/constant"
	"github.com/digitloom/digitloom/numeric"
)

// Engine computes one constant to a precision budget.
type Engine func(numeric.Budget) (numeric.Real, error)

// engines maps each supported constant to its evaluator. The tail
// bound is part of each evaluator, not a shared policy: every series
// documents and enforces its own bound.
var engines = map[constant.Constant]Engine{
	constant.Pi:         piSeq,
	constant.Tau:        tau,
	constant.E:          expOne,
	constant.Sqrt2:      sqrtTwo,
	constant.Phi:        goldenRatio,
	constant.Ln2:        lnTwo,
	constant.EulerGamma: eulerGamma,
	constant.Catalan:    catalan,
	constant.Zeta2:      zetaTwo,
	constant.Zeta3:      zetaThree,
}

// Compute evaluates a constant to the budget's working precision.
func Compute(c constant.Constant, budget numeric.Budget) (numeric.Real, error) {
	eng, ok := engines[c]
	if !ok {
		return numeric.Real{}, fmt.Errorf("%w: %s", constant.ErrUnsupportedConstant, c)
	}
	return eng(budget)
}

// widen returns a copy of the budget carrying extra working digits.
// Engines whose per-term rounding loss grows with the term count widen
// internally and truncate back to the requested precision at the end.
func widen(b numeric.Budget, extra int) numeric.Budget {
	w := b
	w.Guard += extra
	return w
}

// termGuard returns the extra digits needed to absorb one ulp of floor
// error per term over the given term count.
func termGuard(terms int, base int) int {
	if terms < 2 {
		terms = 2
	}
	return int(math.Log(float64(terms))/math.Log(float64(base))) + 3
}

// piSeq is the series-engine path for π: the same Chudnovsky series
// the binary-splitting engine evaluates, reduced by a sequential fold.
// The two paths are digit-identical because the merge rule is exact.
func piSeq(b numeric.Budget) (numeric.Real, error) {
	return chudnovsky.PiSequential(b)
}

func tau(b numeric.Budget) (numeric.Real, error) {
	pi, err := piSeq(b)
	if err != nil {
		return numeric.Real{}, err
	}
	return pi.MulInt(2), nil
}

// expOne evaluates e = Σ 1/k!. Tail bound: after term k the remainder
// is < 2/(k+1)!, already below one working ulp when the scaled term
// underflows to zero.
func expOne(b numeric.Budget) (numeric.Real, error) {
	prec := b.Working()
	scale := numeric.Scale(b.Base, prec)
	sum := new(big.Int).Set(scale) // k = 0 term
	term := new(big.Int).Set(scale)
	for k := int64(1); ; k++ {
		term.Quo(term, big.NewInt(k))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}
	return numeric.FromMant(sum, b.Base, prec), nil
}

func sqrtTwo(b numeric.Budget) (numeric.Real, error) {
	return numeric.SqrtInt(2, b.Base, b.Working()), nil
}

// goldenRatio evaluates φ = (1+√5)/2 in closed form.
func goldenRatio(b numeric.Budget) (numeric.Real, error) {
	prec := b.Working()
	root := numeric.SqrtInt(5, b.Base, prec)
	m := root.Mant()
	m.Add(m, numeric.Scale(b.Base, prec))
	m.Quo(m, big.NewInt(2))
	return numeric.FromMant(m, b.Base, prec), nil
}

// lnTwo evaluates ln 2 = Σ_{k>=1} 1/(k·2^k). Tail after k terms is
// < 2^-k, below one ulp once the halved power underflows. Each term
// contributes at most one ulp of floor error, so the evaluation runs
// at a widened scale sized to the term count and truncates back.
func lnTwo(b numeric.Budget) (numeric.Real, error) {
	terms := int(float64(b.Working())*math.Log(float64(b.Base))/math.Ln2) + 2
	w := widen(b, termGuard(terms, b.Base))
	prec := w.Working()
	pow := numeric.Scale(w.Base, prec) // 2^-k scaled, starts at 1
	sum := new(big.Int)
	q := new(big.Int)
	for k := int64(1); ; k++ {
		pow.Rsh(pow, 1)
		if pow.Sign() == 0 {
			break
		}
		q.Quo(pow, big.NewInt(k))
		sum.Add(sum, q)
	}
	return numeric.FromMant(sum, w.Base, prec).Truncate(b.Working())
}

func zetaTwo(b numeric.Budget) (numeric.Real, error) {
	w := widen(b, 5)
	pi, err := piSeq(w)
	if err != nil {
		return numeric.Real{}, err
	}
	sq := pi.Mul(pi)
	sixth, err := sq.QuoInt(6)
	if err != nil {
		return numeric.Real{}, err
	}
	return sixth.Truncate(b.Working())
}

// zetaThree evaluates Apéry's constant via the central-binomial series
//
//	ζ(3) = 5/2 · Σ_{n>=1} (-1)^{n-1} / (n³·C(2n,n))
//
// which gains log10(4) ≈ 0.6 decimal digits per term; the tail after
// term n is below the first omitted term, so summation stops when the
// scaled term floors to zero.
func zetaThree(b numeric.Budget) (numeric.Real, error) {
	estTerms := int(float64(b.Working())*math.Log(float64(b.Base))/math.Log(4)) + 2
	w := widen(b, termGuard(estTerms, b.Base))
	prec := w.Working()
	scale := numeric.Scale(w.Base, prec)

	binom := big.NewInt(2) // C(2n,n), n = 1
	nCubed := new(big.Int)
	den := new(big.Int)
	termVal := new(big.Int)
	sum := new(big.Int)
	for n := int64(1); ; n++ {
		if n > 1 {
			// C(2n,n) = C(2n-2,n-1)·(2n)(2n-1)/n².
			binom.Mul(binom, big.NewInt(2*n))
			binom.Mul(binom, big.NewInt(2*n-1))
			den.Mul(big.NewInt(n), big.NewInt(n))
			binom.Quo(binom, den)
		}
		nCubed.Mul(big.NewInt(n), big.NewInt(n))
		nCubed.Mul(nCubed, big.NewInt(n))
		den.Mul(nCubed, binom)
		termVal.Quo(scale, den)
		if termVal.Sign() == 0 {
			break
		}
		if n&1 == 1 {
			sum.Add(sum, termVal)
		} else {
			sum.Sub(sum, termVal)
		}
	}
	sum.Mul(sum, big.NewInt(5))
	sum.Quo(sum, big.NewInt(2))
	return numeric.FromMant(sum, w.Base, prec).Truncate(b.Working())
}

// catalan evaluates Catalan's constant with the accelerated identity
//
//	G = (π/8)·ln(2+√3) + (3/8)·Σ_{n>=0} (n!)² / ((2n)!·(2n+1)²)
//
// whose sum converges at log10(4) decimal digits per term; the log
// factor is evaluated by lnReal's argument-reduced atanh series.
func catalan(b numeric.Budget) (numeric.Real, error) {
	estTerms := int(float64(b.Working())*math.Log(float64(b.Base))/math.Log(4)) + 2
	w := widen(b, termGuard(estTerms, b.Base)+5)
	prec := w.Working()
	scale := numeric.Scale(w.Base, prec)

	// Σ (n!)²/((2n)!(2n+1)²): ratio term_n/term_{n-1} = n/(2(2n-1))
	// scaled by the (2n+1)² factor handled per term.
	frac := new(big.Int).Set(scale) // (n!)²/(2n)! scaled, n = 0
	den := new(big.Int)
	termVal := new(big.Int)
	sum := new(big.Int)
	for n := int64(0); ; n++ {
		if n > 0 {
			frac.Mul(frac, big.NewInt(n))
			frac.Quo(frac, big.NewInt(2*(2*n-1)))
		}
		den.Mul(big.NewInt(2*n+1), big.NewInt(2*n+1))
		termVal.Quo(frac, den)
		if termVal.Sign() == 0 && n > 0 {
			break
		}
		sum.Add(sum, termVal)
	}
	sum.Mul(sum, big.NewInt(3))
	sum.Quo(sum, big.NewInt(8))

	pi, err := piSeq(w)
	if err != nil {
		return numeric.Real{}, err
	}
	// 2+√3 at the working scale.
	arg := numeric.SqrtInt(3, w.Base, prec)
	argM := arg.Mant()
	argM.Add(argM, new(big.Int).Mul(big.NewInt(2), scale))
	logPart, err := lnReal(numeric.FromMant(argM, w.Base, prec))
	if err != nil {
		return numeric.Real{}, err
	}
	cross := pi.Mul(logPart)
	crossM := cross.Mant()
	crossM.Quo(crossM, big.NewInt(8))
	sum.Add(sum, crossM)
	return numeric.FromMant(sum, w.Base, prec).Truncate(b.Working())
}

// eulerGamma evaluates the Euler–Mascheroni constant with the
// Brent–McMillan acceleration of the slowly convergent defining
// series:
//
//	γ ≈ A(n)/B(n) − ln n,   A = Σ H_k·(n^k/k!)²,  B = Σ (n^k/k!)²
//
// with n = 2^m chosen so the O(e^{-4n}) truncation error is below one
// working ulp; ln n = m·ln 2 reuses the ln 2 series. Terms decay once
// k exceeds ~4n; summation stops when both scaled terms floor to zero.
func eulerGamma(b numeric.Budget) (numeric.Real, error) {
	digitsNat := float64(b.Working()) * math.Log(float64(b.Base))
	n := int64(1)
	m := 0
	for float64(4*n) < digitsNat+3 {
		n <<= 1
		m++
	}
	estTerms := int(5*n) + 20
	w := widen(b, termGuard(estTerms, b.Base)+5)
	prec := w.Working()
	scale := numeric.Scale(w.Base, prec)

	nSq := new(big.Int).Mul(big.NewInt(n), big.NewInt(n))
	bTerm := new(big.Int).Set(scale) // (n^k/k!)² scaled, k = 0
	aTerm := new(big.Int)            // H_k·(n^k/k!)² scaled, k = 0 → 0
	sumA := new(big.Int)
	sumB := new(big.Int).Set(scale)
	kSq := new(big.Int)
	tmp := new(big.Int)
	for k := int64(1); ; k++ {
		kSq.Mul(big.NewInt(k), big.NewInt(k))
		// A_k = A_{k-1}·n²/k² + B_k/k, B_k = B_{k-1}·n²/k².
		bTerm.Mul(bTerm, nSq)
		bTerm.Quo(bTerm, kSq)
		aTerm.Mul(aTerm, nSq)
		aTerm.Quo(aTerm, kSq)
		tmp.Quo(bTerm, big.NewInt(k))
		aTerm.Add(aTerm, tmp)
		if bTerm.Sign() == 0 && aTerm.Sign() == 0 {
			break
		}
		sumA.Add(sumA, aTerm)
		sumB.Add(sumB, bTerm)
	}
	ratio, err := numeric.FromMant(sumA, w.Base, prec).Quo(numeric.FromMant(sumB, w.Base, prec))
	if err != nil {
		return numeric.Real{}, err
	}
	ln2, err := lnTwo(w)
	if err != nil {
		return numeric.Real{}, err
	}
	return ratio.Sub(ln2.MulInt(int64(m))).Truncate(b.Working())
}

// lnReal computes the natural logarithm of x > 0 at x's scale. The
// argument is range-reduced by powers of two into [0.75, 1.5), then
//
//	ln m = 2·atanh(y),  y = (m−1)/(m+1),  |y| ≤ 0.2
//
// converges at ≥ 1.39 decimal digits per term; the tail after term k
// is below the first omitted term divided by 1−y².
func lnReal(x numeric.Real) (numeric.Real, error) {
	if x.Sign() <= 0 {
		return numeric.Real{}, fmt.Errorf("series: log of non-positive value")
	}
	base, prec := x.Base(), x.Prec()
	scale := numeric.Scale(base, prec)

	// Reduce m into [0.75, 1.5) tracking the shed power of two.
	m := x.Mant()
	e := 0
	lower := new(big.Int).Mul(big.NewInt(3), scale)
	lower.Quo(lower, big.NewInt(4))
	upper := new(big.Int).Mul(big.NewInt(3), scale)
	upper.Quo(upper, big.NewInt(2))
	for m.Cmp(upper) >= 0 {
		m.Rsh(m, 1)
		e++
	}
	for m.Cmp(lower) < 0 {
		m.Lsh(m, 1)
		e--
	}

	// y = (m-1)/(m+1) scaled.
	num := new(big.Int).Sub(m, scale)
	den := new(big.Int).Add(m, scale)
	y := new(big.Int).Mul(num, scale)
	y.Quo(y, den)

	ySq := new(big.Int).Mul(y, y)
	ySq.Quo(ySq, scale)
	pow := new(big.Int).Set(y) // y^(2k+1) scaled
	sum := new(big.Int)
	q := new(big.Int)
	for k := int64(0); ; k++ {
		q.Quo(pow, big.NewInt(2*k+1))
		if q.Sign() == 0 {
			break
		}
		sum.Add(sum, q)
		pow.Mul(pow, ySq)
		pow.Quo(pow, scale)
	}
	sum.Mul(sum, big.NewInt(2))

	if e != 0 {
		ln2, err := lnTwo(numeric.Budget{Digits: prec, Base: base})
		if err != nil {
			return numeric.Real{}, err
		}
		sum.Add(sum, new(big.Int).Mul(big.NewInt(int64(e)), ln2.Mant()))
	}
	return numeric.FromMant(sum, base, prec), nil
}
