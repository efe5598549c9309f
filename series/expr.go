package series

import (
	"fmt"

	"github.com/digitloom/digitloom/constant"
	"github.com/digitloom/digitloom/numeric"
)

// nodeGuard is the extra working digits granted per level of
// expression nesting, so rounding introduced at a leaf cannot reach
// the requested digits after propagating through the operators above
// it.
const nodeGuard = 5

// EvalExpr evaluates a parsed constant expression by structural
// recursion. The whole tree is evaluated at the budget's working
// precision widened by nodeGuard digits per nesting level, then
// truncated back to the budget.
func EvalExpr(n *constant.Node, budget numeric.Budget) (numeric.Real, error) {
	if n == nil {
		return numeric.Real{}, fmt.Errorf("%w: nil expression", constant.ErrInvalidExpression)
	}
	w := widen(budget, nodeGuard*n.Depth())
	v, err := evalNode(n, w)
	if err != nil {
		return numeric.Real{}, err
	}
	return v.Truncate(budget.Working())
}

func evalNode(n *constant.Node, budget numeric.Budget) (numeric.Real, error) {
	switch n.Kind {
	case constant.NodeConst:
		return Compute(n.Const, budget)
	case constant.NodeLit:
		return numeric.FromRat(n.Lit.Num(), n.Lit.Denom(), budget.Base, budget.Working())
	case constant.NodeBinary:
		left, err := evalNode(n.Left, budget)
		if err != nil {
			return numeric.Real{}, err
		}
		right, err := evalNode(n.Right, budget)
		if err != nil {
			return numeric.Real{}, err
		}
		switch n.Op {
		case '+':
			return left.Add(right), nil
		case '-':
			return left.Sub(right), nil
		case '*':
			return left.Mul(right), nil
		case '/':
			if right.Sign() == 0 {
				return numeric.Real{}, fmt.Errorf("%w: division by zero", constant.ErrInvalidExpression)
			}
			return left.Quo(right)
		}
		return numeric.Real{}, fmt.Errorf("%w: operator %q", constant.ErrInvalidExpression, string(n.Op))
	}
	return numeric.Real{}, fmt.Errorf("%w: unknown node kind", constant.ErrInvalidExpression)
}
