// Package constant names the supported mathematical constants and the
// closed expression grammar over them. The grammar is deliberately
// fixed: a tagged node variant (constant, rational literal, or binary
// operator) with no free-form symbolic evaluation.
package constant

import (
	"errors"
	"fmt"
)

// Constant identifies a supported constant.
type Constant int

const (
	Unknown Constant = iota
	Pi
	Tau
	E
	Sqrt2
	Phi
	Ln2
	EulerGamma
	Catalan
	Zeta2
	Zeta3
)

var names = map[Constant]string{
	Pi:         "pi",
	Tau:        "tau",
	E:          "e",
	Sqrt2:      "sqrt2",
	Phi:        "phi",
	Ln2:        "ln2",
	EulerGamma: "gamma",
	Catalan:    "catalan",
	Zeta2:      "zeta2",
	Zeta3:      "zeta3",
}

// Sentinel errors for request validation. These are fatal and reported
// before any computation starts.
var (
	ErrUnsupportedConstant = errors.New("constant: unsupported constant")
	ErrUnsupportedBase     = errors.New("constant: unsupported base")
	ErrInvalidExpression   = errors.New("constant: invalid expression")
)

// String returns the canonical lowercase name.
func (c Constant) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// Parse resolves a constant by canonical name or common alias.
func Parse(name string) (Constant, error) {
	switch name {
	case "pi", "π":
		return Pi, nil
	case "tau", "τ":
		return Tau, nil
	case "e":
		return E, nil
	case "sqrt2", "sqrt(2)":
		return Sqrt2, nil
	case "phi", "φ", "golden":
		return Phi, nil
	case "ln2", "log2":
		return Ln2, nil
	case "gamma", "γ", "euler-mascheroni":
		return EulerGamma, nil
	case "catalan", "G":
		return Catalan, nil
	case "zeta2", "zeta(2)":
		return Zeta2, nil
	case "zeta3", "zeta(3)", "apery":
		return Zeta3, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedConstant, name)
}

// All lists every supported constant in canonical order.
func All() []Constant {
	return []Constant{Pi, Tau, E, Sqrt2, Phi, Ln2, EulerGamma, Catalan, Zeta2, Zeta3}
}

// CheckBase validates a requested digit base against the canonical
// supported set.
func CheckBase(base int) error {
	switch base {
	case 10, 16:
		return nil
	}
	return fmt.Errorf("%w: %d (supported: 10, 16)", ErrUnsupportedBase, base)
}
