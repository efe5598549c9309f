package series

import (
	"errors"
	"testing"

	"github.com/digitloom/digitloom/constant"
	"github.com/digitloom/digitloom/digits"
	"github.com/digitloom/digitloom/numeric"
)

// Thirty fractional digits of each constant, base 10.
var wantFrac = map[constant.Constant]struct {
	intPart string
	frac    string
}{
	constant.Pi:         {"3", "141592653589793238462643383279"},
	constant.Tau:        {"6", "283185307179586476925286766559"},
	constant.E:          {"2", "718281828459045235360287471352"},
	constant.Sqrt2:      {"1", "414213562373095048801688724209"},
	constant.Phi:        {"1", "618033988749894848204586834365"},
	constant.Ln2:        {"0", "693147180559945309417232121458"},
	constant.EulerGamma: {"0", "577215664901532860606512090082"},
	constant.Catalan:    {"0", "915965594177219015054603514932"},
	constant.Zeta2:      {"1", "644934066848226436472415166646"},
	constant.Zeta3:      {"1", "202056903159594285399738161511"},
}

func budget(t *testing.T, n, base int) numeric.Budget {
	t.Helper()
	b, err := numeric.NewBudget(n, base, 0)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestComputeThirtyDigits(t *testing.T) {
	for _, c := range constant.All() {
		want, ok := wantFrac[c]
		if !ok {
			t.Fatalf("no reference digits for %s", c)
		}
		x, err := Compute(c, budget(t, 30, 10))
		if err != nil {
			t.Errorf("%s: %v", c, err)
			continue
		}
		seq, err := digits.Extract(x, 30)
		if err != nil {
			t.Errorf("%s: extract: %v", c, err)
			continue
		}
		if got := digits.FormatInt(seq.IntPart, 10); got != want.intPart {
			t.Errorf("%s integer part = %s, want %s", c, got, want.intPart)
		}
		if got := seq.FracString(); got != want.frac {
			t.Errorf("%s digits = %s\nwant       %s", c, got, want.frac)
		}
	}
}

func TestComputeHex(t *testing.T) {
	x, err := Compute(constant.E, budget(t, 12, 16))
	if err != nil {
		t.Fatal(err)
	}
	seq, err := digits.Extract(x, 12)
	if err != nil {
		t.Fatal(err)
	}
	// e = 2.B7E151628AED...
	if got := seq.FracString(); got != "b7e151628aed" {
		t.Errorf("e hex digits = %q", got)
	}
}

func TestComputeLongerRun(t *testing.T) {
	// A longer run exercises the per-term guard sizing.
	x, err := Compute(constant.Ln2, budget(t, 300, 10))
	if err != nil {
		t.Fatal(err)
	}
	seq, err := digits.Extract(x, 300)
	if err != nil {
		t.Fatal(err)
	}
	if got := seq.FracString()[:30]; got != wantFrac[constant.Ln2].frac {
		t.Errorf("ln2 prefix = %s", got)
	}
}

func TestComputeUnknown(t *testing.T) {
	if _, err := Compute(constant.Unknown, budget(t, 10, 10)); !errors.Is(err, constant.ErrUnsupportedConstant) {
		t.Errorf("err = %v", err)
	}
}

func TestEvalExpr(t *testing.T) {
	cases := []struct {
		expr string
		want string // integer part "." 30 fractional digits
	}{
		{"pi/2 + pi/2", "3.141592653589793238462643383279"},
		{"zeta2 * 6", "9.869604401089358618834490999876"},
		{"2 * pi", "6.283185307179586476925286766559"},
		{"e - ln2", "2.025134647899099925943055349894"},
	}
	for _, tc := range cases {
		node, err := constant.ParseExpr(tc.expr)
		if err != nil {
			t.Fatalf("%s: %v", tc.expr, err)
		}
		x, err := EvalExpr(node, budget(t, 30, 10))
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}
		seq, err := digits.Extract(x, 30)
		if err != nil {
			t.Errorf("%s: extract: %v", tc.expr, err)
			continue
		}
		if got := seq.String(); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.expr, got, tc.want)
		}
	}
}

func TestEvalExprDivisionByZero(t *testing.T) {
	node, err := constant.ParseExpr("pi / (pi - pi)")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := EvalExpr(node, budget(t, 10, 10)); err == nil {
		t.Error("division by zero should fail")
	}
}
