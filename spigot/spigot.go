// Package spigot streams decimal digits of π one at a time with the
// Rabinowitz–Wagon streaming algorithm. The generator holds a small
// tuple of unbounded integers that advances by bounded steps per
// emitted digit and never retains the produced digit history, so an
// unbounded stream runs in memory proportional to the digit position's
// integer sizes rather than the full output.
package spigot

import (
	"context"
	"math/big"
)

// Stream is the generator state. The zero value is not usable; call
// New. A Stream is owned by a single producer: it is advanced one
// digit per Next call and is not safe for concurrent use.
type Stream struct {
	q, r, t *big.Int
	k, n, l *big.Int
	emitted uint64
}

// New returns a stream positioned before the first digit of π. The
// first Next call yields the integer digit 3, subsequent calls yield
// the fractional digits 1, 4, 1, 5, ...
func New() *Stream {
	return &Stream{
		q: big.NewInt(1),
		r: big.NewInt(0),
		t: big.NewInt(1),
		k: big.NewInt(1),
		n: big.NewInt(3),
		l: big.NewInt(3),
	}
}

// Emitted returns how many digits Next has produced so far.
func (s *Stream) Emitted() uint64 { return s.emitted }

// Next advances the state until the next digit is confirmed and
// returns it. A digit is confirmed only when the carry test
// 4q+r−t < n·t holds; until then the state absorbs further terms,
// which is the algorithm's bounded look-ahead for pending carries.
func (s *Stream) Next() int {
	four := big.NewInt(4)
	ten := big.NewInt(10)
	tmp := new(big.Int)
	cmp := new(big.Int)
	for {
		// 4q + r - t < n*t: digit confirmed.
		tmp.Mul(four, s.q)
		tmp.Add(tmp, s.r)
		tmp.Sub(tmp, s.t)
		cmp.Mul(s.n, s.t)
		if tmp.Cmp(cmp) < 0 {
			d := int(s.n.Int64())

			// q,r,n ← 10q, 10(r−n·t), ⌊10(3q+r)/t⌋ − 10n.
			nextN := new(big.Int).Mul(big.NewInt(3), s.q)
			nextN.Add(nextN, s.r)
			nextN.Mul(nextN, ten)
			nextN.Div(nextN, s.t)
			nextN.Sub(nextN, new(big.Int).Mul(ten, s.n))

			s.r.Sub(s.r, new(big.Int).Mul(s.n, s.t))
			s.r.Mul(s.r, ten)
			s.q.Mul(s.q, ten)
			s.n = nextN

			s.emitted++
			return d
		}

		// Absorb the next series term:
		// q,r,t,k,n,l ← qk, (2q+r)l, tl, k+1, ⌊(q(7k+2)+rl)/(tl)⌋, l+2.
		nextN := new(big.Int).Mul(big.NewInt(7), s.k)
		nextN.Add(nextN, big.NewInt(2))
		nextN.Mul(nextN, s.q)
		nextN.Add(nextN, new(big.Int).Mul(s.r, s.l))
		den := new(big.Int).Mul(s.t, s.l)
		nextN.Div(nextN, den)

		s.r.Add(new(big.Int).Lsh(s.q, 1), s.r)
		s.r.Mul(s.r, s.l)
		s.q.Mul(s.q, s.k)
		s.t.Mul(s.t, s.l)
		s.k.Add(s.k, big.NewInt(1))
		s.n = nextN
		s.l.Add(s.l, big.NewInt(2))
	}
}

// Emit produces up to count digits (count < 0 means unbounded),
// invoking fn for each. Cancellation is checked between digit
// emissions; digits already delivered to fn are never retracted. Emit
// returns the context error on cancellation and any error fn returns.
func (s *Stream) Emit(ctx context.Context, count int64, fn func(digit int) error) error {
	for i := int64(0); count < 0 || i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s.Next()); err != nil {
			return err
		}
	}
	return nil
}
