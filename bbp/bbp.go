// Package bbp computes isolated hexadecimal digits of π at arbitrary
// offsets with the Bailey–Borwein–Plouffe digit-extraction series,
// without materializing any preceding digits. The head of each partial
// series is evaluated with modular exponentiation by repeated
// squaring; the fractional remainders accumulate in a big.Float whose
// precision carries a fixed guard beyond the offset's requirement.
// Results whose fractional part lands too close to a digit boundary
// are recomputed at doubled precision before being trusted.
package bbp

import (
	"context"
	"fmt"
	"math"
	"math/big"
)

// HexAlphabet is the uppercase digit alphabet used for extracted
// slices.
const HexAlphabet = "0123456789ABCDEF"

// guardBits is the precision margin carried beyond log2 of the offset.
// Generous on purpose; boundary ambiguity triggers a recompute
// regardless.
const guardBits = 128

// boundaryMargin is the minimum distance of the scaled fractional part
// from an integer boundary for a digit to be trusted without a
// higher-precision recompute.
const boundaryMargin = 1.0 / 1024

// Result is an extracted hexadecimal digit slice with the algorithm's
// confidence margin: the smallest distance (in units of one digit) any
// sampled fractional part had from a digit boundary after the final
// accepted computation.
type Result struct {
	Digits string
	Margin float64
}

// Digit returns the hexadecimal digit of π at 0-based fractional
// offset n (offset 0 is the first digit after the hexadecimal point),
// along with its boundary margin.
func Digit(n int) (int, float64, error) {
	if n < 0 {
		return 0, 0, fmt.Errorf("bbp: offset must be >= 0, got %d", n)
	}
	prec := precBits(n)
	for {
		d, margin := digitAt(n, prec)
		if margin >= boundaryMargin {
			return d, margin, nil
		}
		// Ambiguous near-boundary result: recompute wider.
		prec *= 2
		if prec > 1<<22 {
			return d, margin, fmt.Errorf("bbp: offset %d did not stabilize at %d bits", n, prec)
		}
	}
}

// Digits extracts the digit range [start, start+count). Each digit is
// an independent evaluation, so the routine honors cancellation
// between digits. The result margin is the minimum across the range.
func Digits(ctx context.Context, start, count int) (Result, error) {
	if start < 0 {
		return Result{}, fmt.Errorf("bbp: start must be >= 0, got %d", start)
	}
	if count < 0 {
		return Result{}, fmt.Errorf("bbp: count must be >= 0, got %d", count)
	}
	out := make([]byte, 0, count)
	margin := math.Inf(1)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		d, m, err := Digit(start + i)
		if err != nil {
			return Result{}, err
		}
		if m < margin {
			margin = m
		}
		out = append(out, HexAlphabet[d])
	}
	if count == 0 {
		margin = 1
	}
	return Result{Digits: string(out), Margin: margin}, nil
}

func precBits(n int) uint {
	if n < 1 {
		return guardBits
	}
	return uint(math.Log2(float64(n+1))) + guardBits
}

// digitAt evaluates the BBP identity
//
//	π = Σ 16^-k (4/(8k+1) − 2/(8k+4) − 1/(8k+5) − 1/(8k+6))
//
// shifted by 16^n, modulo 1.
func digitAt(n int, prec uint) (int, float64) {
	s1 := series(1, n, prec)
	s4 := series(4, n, prec)
	s5 := series(5, n, prec)
	s6 := series(6, n, prec)

	x := new(big.Float).SetPrec(prec)
	x.Mul(new(big.Float).SetPrec(prec).SetInt64(4), s1)
	t := new(big.Float).SetPrec(prec)
	t.Mul(new(big.Float).SetPrec(prec).SetInt64(2), s4)
	x.Sub(x, t)
	x.Sub(x, s5)
	x.Sub(x, s6)
	fracMod(x)

	x.Mul(x, big.NewFloat(16).SetPrec(prec))
	d64, _ := x.Int64()
	frac := new(big.Float).SetPrec(prec).Sub(x, new(big.Float).SetInt64(d64))
	f, _ := frac.Float64()
	margin := f
	if 1-f < margin {
		margin = 1 - f
	}
	d := int(d64) & 0xF
	return d, margin
}

// series evaluates Σ_k 16^{n-k}/(8k+j) mod 1: exact modular powers for
// k <= n, then the rapidly vanishing tail until it drops below the
// working epsilon.
func series(j, n int, prec uint) *big.Float {
	sum := new(big.Float).SetPrec(prec)
	sixteen := big.NewInt(16)
	e := new(big.Int)
	r := new(big.Int)
	pw := new(big.Int)
	term := new(big.Float).SetPrec(prec)
	den := new(big.Float).SetPrec(prec)
	for k := 0; k <= n; k++ {
		r.SetInt64(int64(8*k + j))
		e.SetInt64(int64(n - k))
		pw.Exp(sixteen, e, r)
		term.SetInt(pw)
		den.SetInt(r)
		term.Quo(term, den)
		sum.Add(sum, term)
		fracMod(sum)
	}

	// Tail: Σ_{k>n} 16^{n-k}/(8k+j).
	eps := new(big.Float).SetPrec(prec).SetMantExp(big.NewFloat(1).SetPrec(prec), -int(prec)+16)
	pow16 := new(big.Float).SetPrec(prec).SetFloat64(1.0 / 16)
	den16 := big.NewFloat(16).SetPrec(prec)
	for k := n + 1; ; k++ {
		den.SetInt64(int64(8*k + j))
		term.Quo(pow16, den)
		if term.Cmp(eps) < 0 {
			break
		}
		sum.Add(sum, term)
		pow16.Quo(pow16, den16)
	}
	fracMod(sum)
	return sum
}

// fracMod reduces x into [0, 1) in place.
func fracMod(x *big.Float) {
	i64 := new(big.Int)
	x.Int(i64)
	x.Sub(x, new(big.Float).SetPrec(x.Prec()).SetInt(i64))
	if x.Sign() < 0 {
		x.Add(x, big.NewFloat(1).SetPrec(x.Prec()))
	}
}
