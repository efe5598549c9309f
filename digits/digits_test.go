package digits

import (
	"errors"
	"math/big"
	"testing"

	"github.com/digitloom/digitloom/numeric"
)

func TestExtractRational(t *testing.T) {
	// 22/7 = 3.142857142857...
	x, err := numeric.FromRat(big.NewInt(22), big.NewInt(7), 10, 30)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := Extract(x, 12)
	if err != nil {
		t.Fatal(err)
	}
	if seq.IntPart.Int64() != 3 {
		t.Errorf("integer part = %v", seq.IntPart)
	}
	if got := seq.FracString(); got != "142857142857" {
		t.Errorf("frac = %q", got)
	}
	if seq.String() != "3.142857142857" {
		t.Errorf("String = %q", seq.String())
	}
}

func TestExtractHex(t *testing.T) {
	// 1/16 + 2/256 + 10/4096 = 0x0.12a
	num := big.NewInt(0x12a)
	x, err := numeric.FromRat(num, big.NewInt(1<<12), 16, 20)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := Extract(x, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := seq.FracString(); got != "12a" {
		t.Errorf("hex frac = %q", got)
	}
}

func TestExtractMatchesSingleDigitRecurrence(t *testing.T) {
	x, err := numeric.FromRat(big.NewInt(355), big.NewInt(113), 10, 60)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := Extract(x, 40)
	if err != nil {
		t.Fatal(err)
	}

	// Reference: one digit per step straight off the mantissa.
	_, frac := x.Split()
	scale := numeric.Scale(10, x.Prec())
	d := new(big.Int)
	for i := 0; i < 40; i++ {
		frac.Mul(frac, big.NewInt(10))
		d.DivMod(frac, scale, frac)
		if want := Alphabet[d.Int64()]; seq.Frac[i] != want {
			t.Fatalf("digit %d = %c, want %c", i, seq.Frac[i], want)
		}
	}
}

func TestExtractGuardFloor(t *testing.T) {
	x := numeric.FromInt(1, 10, 10)
	if _, err := Extract(x, 10); !errors.Is(err, ErrRecomputeRequired) {
		t.Errorf("expected ErrRecomputeRequired, got %v", err)
	}
	if _, err := Extract(x, 10-GuardFloor); err != nil {
		t.Errorf("extraction within guard floor failed: %v", err)
	}
	if _, err := Extract(x, -1); err == nil {
		t.Error("negative count should fail")
	}
}

func TestDigitValue(t *testing.T) {
	cases := []struct {
		c    byte
		base int
		want int
	}{
		{'0', 10, 0},
		{'9', 10, 9},
		{'a', 16, 10},
		{'F', 16, 15},
		{'g', 16, -1},
		{'z', 36, 35},
		{'.', 10, -1},
	}
	for _, tc := range cases {
		if got := DigitValue(tc.c, tc.base); got != tc.want {
			t.Errorf("DigitValue(%q, %d) = %d, want %d", tc.c, tc.base, got, tc.want)
		}
	}
}

func TestFormatInt(t *testing.T) {
	if got := FormatInt(big.NewInt(255), 16); got != "ff" {
		t.Errorf("FormatInt(255, 16) = %q", got)
	}
	if got := FormatInt(big.NewInt(-3), 10); got != "-3" {
		t.Errorf("FormatInt(-3, 10) = %q", got)
	}
}
