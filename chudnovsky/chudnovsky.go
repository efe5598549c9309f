// Package chudnovsky evaluates the Chudnovsky hypergeometric series
// for π by binary splitting. The range [a,b) is split recursively into
// exact (P,Q,T) triples combined with the merge rule
//
//	P = Pl·Pr   Q = Ql·Qr   T = Tl·Qr + Pl·Tr
//
// which is lossless in integer arithmetic; the only inexact step is
// the single fixed-point division at the top. Subranges are
// independent, so the split is evaluated across a bounded worker pool,
// with cancellation checked at every merge barrier.
package chudnovsky

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/digitloom/digitloom/numeric"
)

const (
	seriesA = 13591409
	seriesB = 545140134
	seriesC = 640320
	// DigitsPerTerm is the decimal digits contributed by each series
	// term: log10(C^3/24) - log10(72) ... the standard Chudnovsky rate.
	DigitsPerTerm = 14.181647462725477

	// splitThreshold is the range width below which the recursion
	// bottoms out into direct term computation.
	splitThreshold = 32
)

var c3Over24 = new(big.Int).Div(
	new(big.Int).Exp(big.NewInt(seriesC), big.NewInt(3), nil),
	big.NewInt(24),
)

// Triple is the exact (P,Q,T) state of a summation range.
type Triple struct {
	P, Q, T *big.Int
}

// term computes the triple for the single range [k, k+1).
func term(k int64) Triple {
	if k == 0 {
		return Triple{P: big.NewInt(1), Q: big.NewInt(1), T: big.NewInt(seriesA)}
	}
	p := new(big.Int).Mul(big.NewInt(6*k-5), big.NewInt(2*k-1))
	p.Mul(p, big.NewInt(6*k-1))
	q := new(big.Int).Mul(big.NewInt(k), big.NewInt(k))
	q.Mul(q, big.NewInt(k))
	q.Mul(q, c3Over24)
	t := new(big.Int).Mul(big.NewInt(seriesB), big.NewInt(k))
	t.Add(t, big.NewInt(seriesA))
	t.Mul(t, p)
	if k&1 == 1 {
		t.Neg(t)
	}
	return Triple{P: p, Q: q, T: t}
}

// Merge combines the triples of two adjacent ranges. The left operand
// owns the result's buffers afterwards; callers hand off ownership of
// both inputs.
func Merge(left, right Triple) Triple {
	t := new(big.Int).Mul(left.T, right.Q)
	t.Add(t, new(big.Int).Mul(left.P, right.T))
	return Triple{
		P: new(big.Int).Mul(left.P, right.P),
		Q: new(big.Int).Mul(left.Q, right.Q),
		T: t,
	}
}

// Sum evaluates [a,b) sequentially.
func Sum(a, b int64) Triple {
	if b-a <= splitThreshold {
		acc := term(a)
		for k := a + 1; k < b; k++ {
			acc = Merge(acc, term(k))
		}
		return acc
	}
	m := (a + b) / 2
	return Merge(Sum(a, m), Sum(m, b))
}

// TermsFor returns the number of series terms needed for the given
// number of equivalent decimal digits.
func TermsFor(decimalDigits int) int64 {
	return int64(float64(decimalDigits)/DigitsPerTerm) + 2
}

// SumParallel evaluates [0,terms) across at most workers goroutines.
// The range is cut into contiguous chunks, each reduced sequentially
// by binary splitting, and the chunk triples are folded in order. The
// fold is the same merge rule, so the result is bit-identical to the
// sequential evaluation. Cancellation is observed at chunk granularity
// and at the fold barrier.
func SumParallel(ctx context.Context, terms int64, workers int) (Triple, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || terms < 2*splitThreshold {
		return Sum(0, terms), nil
	}
	chunks := int64(workers)
	if chunks > terms {
		chunks = terms
	}
	results := make([]Triple, chunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := int64(0); i < chunks; i++ {
		i := i
		lo := terms * i / chunks
		hi := terms * (i + 1) / chunks
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Sum(lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Triple{}, err
	}
	acc := results[0]
	for _, r := range results[1:] {
		if err := ctx.Err(); err != nil {
			return Triple{}, err
		}
		acc = Merge(acc, r)
	}
	return acc, nil
}

// Pi computes π to the budget's working precision using at most
// workers goroutines.
func Pi(ctx context.Context, budget numeric.Budget, workers int) (numeric.Real, error) {
	terms := TermsFor(budget.DecimalDigits())
	acc, err := SumParallel(ctx, terms, workers)
	if err != nil {
		return numeric.Real{}, err
	}
	return assemble(acc, budget)
}

// PiSequential computes π with a plain sequential reduction. Used by
// the series engine and as the cross-check reference for the parallel
// path: both produce identical digits because the merge rule is exact.
func PiSequential(budget numeric.Budget) (numeric.Real, error) {
	terms := TermsFor(budget.DecimalDigits())
	return assemble(Sum(0, terms), budget)
}

// assemble performs the single top-level inexact step:
//
//	π = 426880·√10005·Q / T
//
// evaluated at the fixed-point working scale.
func assemble(acc Triple, budget numeric.Budget) (numeric.Real, error) {
	if acc.T.Sign() == 0 {
		return numeric.Real{}, fmt.Errorf("chudnovsky: degenerate zero denominator")
	}
	prec := budget.Working()
	root := numeric.SqrtInt(10005, budget.Base, prec)
	num := root.Mant()
	num.Mul(num, big.NewInt(426880))
	num.Mul(num, acc.Q)
	num.Quo(num, acc.T)
	return numeric.FromMant(num, budget.Base, prec), nil
}

// TailBound returns an upper bound on the absolute truncation error,
// in decimal digits, of stopping after n terms. Exposed for the series
// engine's pluggable tail-bound contract.
func TailBound(n int64) float64 {
	return -(float64(n) * DigitsPerTerm) + math.Log10(DigitsPerTerm)
}
