// Package digits defines the digit sequence model and the
// multiply-and-subtract extractor that turns a fixed-point real into
// base-b digit characters.
package digits

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/digitloom/digitloom/numeric"
)

// Alphabet maps digit values to their lowercase character forms for
// bases up to 36.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GuardFloor is the minimum guard margin that must remain unconsumed
// for an extraction to be trusted. If a value's precision leaves less
// than this beyond the requested digits, extraction fails with
// ErrRecomputeRequired instead of emitting an uncertain tail digit.
const GuardFloor = 5

// ErrRecomputeRequired reports that the guard margin was consumed
// before the requested digits could all be produced. The caller should
// recompute once with a wider guard before treating this as fatal.
var ErrRecomputeRequired = errors.New("digits: guard margin exhausted, recompute at higher precision")

// Sequence is an extracted digit sequence: an integer part plus an
// ordered run of fractional digit characters in the given base.
// Sequences are produced by exactly one computation path and are never
// mutated after extraction.
type Sequence struct {
	// Base is the digit base, 2..36.
	Base int
	// IntPart is the floored integer part.
	IntPart *big.Int
	// Frac holds the fractional digit characters (Alphabet forms).
	Frac []byte
	// Truncated marks a sequence cut short by cancellation. A
	// truncated sequence is valid up to len(Frac) but must never be
	// presented as the complete requested output.
	Truncated bool
}

// String renders the sequence as "<int>.<frac>" in its base.
func (s *Sequence) String() string {
	if len(s.Frac) == 0 {
		return FormatInt(s.IntPart, s.Base)
	}
	return FormatInt(s.IntPart, s.Base) + "." + string(s.Frac)
}

// FracString returns the fractional digits only.
func (s *Sequence) FracString() string { return string(s.Frac) }

// FormatInt renders n in the given base using the lowercase alphabet.
func FormatInt(n *big.Int, base int) string {
	return n.Text(base)
}

// DigitValue returns the numeric value of a digit character, or -1 if
// the character is not a digit in the given base.
func DigitValue(c byte, base int) int {
	var v int
	switch {
	case c >= '0' && c <= '9':
		v = int(c - '0')
	case c >= 'a' && c <= 'z':
		v = int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		v = int(c-'A') + 10
	default:
		return -1
	}
	if v >= base {
		return -1
	}
	return v
}

// Extract produces exactly n fractional digits of x via the recurrence
// d_k = floor(b*f), f' = b*f - d_k, starting from the fractional part
// of x. The recurrence is evaluated in strides of several digits per
// big-integer step for throughput; the emitted digits are identical to
// the digit-at-a-time recurrence.
//
// Extraction refuses to consume the guard margin: x must carry at
// least n+GuardFloor correct fractional digits, otherwise
// ErrRecomputeRequired is returned and no sequence is produced.
func Extract(x numeric.Real, n int) (*Sequence, error) {
	if n < 0 {
		return nil, fmt.Errorf("digits: digit count must be >= 0, got %d", n)
	}
	if x.Prec() < n+GuardFloor {
		return nil, fmt.Errorf("digits: need %d+%d correct digits, have %d: %w",
			n, GuardFloor, x.Prec(), ErrRecomputeRequired)
	}
	base := x.Base()
	ip, frac := x.Split()

	out := make([]byte, 0, n)
	scale := numeric.Scale(base, x.Prec())
	stride, strideScale := strideFor(base)
	step := new(big.Int)
	d := new(big.Int)
	for len(out) < n {
		// f *= base^stride; emit the integer part as stride digits.
		step.Mul(frac, strideScale)
		d.DivMod(step, scale, frac)
		v := d.Uint64()
		var buf [64]byte
		for i := stride - 1; i >= 0; i-- {
			buf[i] = Alphabet[v%uint64(base)]
			v /= uint64(base)
		}
		take := stride
		if rem := n - len(out); rem < take {
			take = rem
		}
		out = append(out, buf[:take]...)
	}
	return &Sequence{Base: base, IntPart: ip, Frac: out, Truncated: false}, nil
}

// strideFor picks the largest digit stride whose base^stride fits well
// inside a uint64, so each big-integer step yields several digits.
func strideFor(base int) (int, *big.Int) {
	stride := 1
	limit := uint64(1) << 62
	v := uint64(base)
	for v <= limit/uint64(base) {
		v *= uint64(base)
		stride++
	}
	return stride, new(big.Int).SetUint64(v)
}
