package constant

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Constant
	}{
		{"pi", Pi},
		{"π", Pi},
		{"tau", Tau},
		{"e", E},
		{"sqrt2", Sqrt2},
		{"sqrt(2)", Sqrt2},
		{"phi", Phi},
		{"golden", Phi},
		{"ln2", Ln2},
		{"gamma", EulerGamma},
		{"euler-mascheroni", EulerGamma},
		{"catalan", Catalan},
		{"zeta2", Zeta2},
		{"zeta(3)", Zeta3},
		{"apery", Zeta3},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := Parse("omega"); !errors.Is(err, ErrUnsupportedConstant) {
		t.Errorf("Parse(omega) err = %v", err)
	}
}

func TestCheckBase(t *testing.T) {
	if err := CheckBase(10); err != nil {
		t.Error(err)
	}
	if err := CheckBase(16); err != nil {
		t.Error(err)
	}
	for _, b := range []int{2, 8, 12, 36} {
		if err := CheckBase(b); !errors.Is(err, ErrUnsupportedBase) {
			t.Errorf("CheckBase(%d) err = %v", b, err)
		}
	}
}

func TestAllHaveNames(t *testing.T) {
	for _, c := range All() {
		back, err := Parse(c.String())
		if err != nil || back != c {
			t.Errorf("round trip for %v: got %v, %v", c, back, err)
		}
	}
}

func TestParseExpr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pi", "pi"},
		{"pi/2", "(pi / 2)"},
		{"pi/2 + pi/2", "((pi / 2) + (pi / 2))"},
		{"2*zeta2 - pi", "((2 * zeta2) - pi)"},
		{"(e + phi) * 3", "((e + phi) * 3)"},
		{"-pi", "(-1 * pi)"},
		{"1.5 * ln2", "(3/2 * ln2)"},
		{"22/7", "(22 / 7)"},
		{"PI", "pi"},
	}
	for _, tc := range cases {
		n, err := ParseExpr(tc.in)
		if err != nil {
			t.Errorf("ParseExpr(%q): %v", tc.in, err)
			continue
		}
		if got := n.String(); got != tc.want {
			t.Errorf("ParseExpr(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, in := range []string{"", "pi +", "(pi", "pi)", "foo + 1", "2 ** 3", "1..5"} {
		if _, err := ParseExpr(in); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("ParseExpr(%q) err = %v, want ErrInvalidExpression", in, err)
		}
	}
}

func TestExprPrecedence(t *testing.T) {
	n, err := ParseExpr("pi + e * 2")
	if err != nil {
		t.Fatal(err)
	}
	if n.Op != '+' || n.Right.Op != '*' {
		t.Errorf("precedence wrong: %s", n.String())
	}
	if n.Depth() != 3 {
		t.Errorf("Depth = %d", n.Depth())
	}
}
