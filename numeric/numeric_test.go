package numeric

import (
	"math/big"
	"testing"
)

func TestNewBudget(t *testing.T) {
	b, err := NewBudget(100, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Guard != DefaultGuard {
		t.Errorf("zero guard should select default, got %d", b.Guard)
	}
	if b.Working() != 100+DefaultGuard {
		t.Errorf("Working = %d", b.Working())
	}

	for _, bad := range []struct{ digits, base, guard int }{
		{-1, 10, 0},
		{10, 1, 0},
		{10, 37, 0},
		{10, 10, -1},
	} {
		if _, err := NewBudget(bad.digits, bad.base, bad.guard); err == nil {
			t.Errorf("NewBudget(%d,%d,%d) should fail", bad.digits, bad.base, bad.guard)
		}
	}
}

func TestBudgetWiden(t *testing.T) {
	b, _ := NewBudget(50, 10, 8)
	if w := b.Widen(); w.Guard != 16 || w.Digits != 50 {
		t.Errorf("Widen = %+v", w)
	}
}

func TestBudgetDecimalDigits(t *testing.T) {
	b, _ := NewBudget(100, 16, 10)
	// 110 hex digits need ceil(110*log10(16)) ~ 133 decimal digits.
	if got := b.DecimalDigits(); got < 133 || got > 135 {
		t.Errorf("DecimalDigits = %d", got)
	}
}

func TestArithmetic(t *testing.T) {
	const prec = 20
	two := FromInt(2, 10, prec)
	three := FromInt(3, 10, prec)

	if got := two.Add(three); got.Mant().Cmp(FromInt(5, 10, prec).Mant()) != 0 {
		t.Errorf("2+3 mant = %v", got.Mant())
	}
	if got := two.Sub(three); got.Mant().Cmp(FromInt(-1, 10, prec).Mant()) != 0 {
		t.Errorf("2-3 mant = %v", got.Mant())
	}
	if got := two.Mul(three); got.Mant().Cmp(FromInt(6, 10, prec).Mant()) != 0 {
		t.Errorf("2*3 mant = %v", got.Mant())
	}

	q, err := two.Quo(three)
	if err != nil {
		t.Fatal(err)
	}
	// 2/3 = 0.666... so mant = 66666666666666666666 at 20 digits.
	want, _ := new(big.Int).SetString("66666666666666666666", 10)
	if q.Mant().Cmp(want) != 0 {
		t.Errorf("2/3 mant = %v, want %v", q.Mant(), want)
	}

	if _, err := two.Quo(FromInt(0, 10, prec)); err == nil {
		t.Error("division by zero should fail")
	}
}

func TestFromRat(t *testing.T) {
	x, err := FromRat(big.NewInt(1), big.NewInt(7), 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	// 1/7 = 0.1428571428...
	if got := x.Mant().String(); got != "1428571428" {
		t.Errorf("1/7 mant = %s", got)
	}
	if _, err := FromRat(big.NewInt(1), big.NewInt(0), 10, 10); err == nil {
		t.Error("zero denominator should fail")
	}
}

func TestFloorSemanticsForNegatives(t *testing.T) {
	// floor(-1/3) at 4 digits is -0.3334 (floored, not truncated).
	x, err := FromRat(big.NewInt(-1), big.NewInt(3), 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.Mant().String(); got != "-3334" {
		t.Errorf("floor(-1/3) mant = %s", got)
	}

	ip, frac := x.Split()
	if ip.String() != "-1" {
		t.Errorf("integer part = %s, want -1", ip)
	}
	// -0.3334 = -1 + 0.6666
	if frac.String() != "6666" {
		t.Errorf("frac = %s, want 6666", frac)
	}
}

func TestSqrtInt(t *testing.T) {
	x := SqrtInt(2, 10, 20)
	if got := x.Mant().String(); got != "141421356237309504880" {
		t.Errorf("sqrt(2) mant = %s", got)
	}
	if SqrtInt(0, 10, 5).Sign() != 0 {
		t.Error("sqrt(0) should be zero")
	}
}

func TestTruncate(t *testing.T) {
	x := SqrtInt(2, 10, 20)
	y, err := x.Truncate(10)
	if err != nil {
		t.Fatal(err)
	}
	if got := y.Mant().String(); got != "14142135623" {
		t.Errorf("truncated mant = %s", got)
	}
	if _, err := x.Truncate(30); err == nil {
		t.Error("extending precision should fail")
	}
}

func TestMixedScalePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("mixed-scale Add should panic")
		}
	}()
	FromInt(1, 10, 10).Add(FromInt(1, 10, 20))
}
