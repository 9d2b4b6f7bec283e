// Package degree evaluates degree constraints and prefix degree expressions
// against a variable binding.
//
// Constraint evaluation treats an unbound variable as a failed constraint.
// Expression evaluation treats it as a hard error. Only the outermost
// expression result is clamped into [0,1]; nested results are not.
package degree

import (
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// EvalConstraint reports whether c holds under b.
//
// The operand is resolved through b when it is a variable; an unbound
// variable fails the constraint without error. Ordered comparisons need a
// numeric operand and threshold and fail otherwise. An operator outside the
// closed set is an UNKNOWN_OPERATOR error.
func EvalConstraint(c ir.Constraint, b ir.Binding) (bool, error) {
	value, ok := b.Lookup(c.Operand)
	if !ok {
		return false, nil
	}

	switch c.Op {
	case ir.OpEQ:
		return ir.AtomsEqual(value, c.Threshold), nil
	case ir.OpNE:
		return !ir.AtomsEqual(value, c.Threshold), nil
	case ir.OpGT, ir.OpLT, ir.OpGE, ir.OpLE:
	default:
		return false, NewUnknownOperatorError(string(c.Op))
	}

	v, vok := value.(ir.Number)
	t, tok := c.Threshold.(ir.Number)
	if !vok || !tok {
		return false, nil
	}

	switch c.Op {
	case ir.OpGT:
		return v > t, nil
	case ir.OpLT:
		return v < t, nil
	case ir.OpGE:
		return v >= t, nil
	default:
		return v <= t, nil
	}
}

// Eval evaluates e under b and clamps the result into [0,1].
// A nil expression evaluates to ir.DefaultDegree.
func Eval(e ir.DegreeExpr, b ir.Binding) (float64, error) {
	if e == nil {
		return ir.DefaultDegree, nil
	}
	v, err := evalRaw(e, b)
	if err != nil {
		return 0, err
	}
	return ir.ClampDegree(v), nil
}

// evalRaw evaluates without clamping.
func evalRaw(e ir.DegreeExpr, b ir.Binding) (float64, error) {
	switch expr := e.(type) {
	case ir.Literal:
		return float64(expr), nil

	case ir.VarRef:
		bound, ok := b[string(expr)]
		if !ok {
			return 0, NewUnboundVariableError(string(expr))
		}
		n, ok := bound.(ir.Number)
		if !ok {
			return 0, &DegreeError{
				Code:     ErrCodeNonNumeric,
				Message:  fmt.Sprintf("variable %s is bound to non-numeric value %s", expr, ir.FormatAtom(bound)),
				Variable: string(expr),
			}
		}
		return float64(n), nil

	case ir.Apply:
		if len(expr.Operands) == 0 {
			return 0, &DegreeError{Code: ErrCodeArity, Message: fmt.Sprintf("operator %s has no operands", expr.Op)}
		}
		vals := make([]float64, len(expr.Operands))
		for i, operand := range expr.Operands {
			v, err := evalRaw(operand, b)
			if err != nil {
				return 0, err
			}
			vals[i] = v
		}
		return apply(expr.Op, vals)

	default:
		return 0, &DegreeError{Code: ErrCodeUnknownOperator, Message: fmt.Sprintf("unsupported expression %T", e)}
	}
}

func apply(op ir.ArithOp, vals []float64) (float64, error) {
	switch op {
	case ir.OpMul:
		out := vals[0]
		for _, v := range vals[1:] {
			out *= v
		}
		return out, nil
	case ir.OpAdd:
		var out float64
		for _, v := range vals {
			out += v
		}
		return out, nil
	case ir.OpSub:
		out := vals[0]
		for _, v := range vals[1:] {
			out -= v
		}
		return out, nil
	case ir.OpDiv:
		if len(vals) < 2 {
			return 0, &DegreeError{Code: ErrCodeArity, Message: "operator / needs two operands"}
		}
		if vals[1] == 0 {
			return 0, nil
		}
		return vals[0] / vals[1], nil
	case ir.OpMin:
		out := vals[0]
		for _, v := range vals[1:] {
			out = min(out, v)
		}
		return out, nil
	case ir.OpMax:
		out := vals[0]
		for _, v := range vals[1:] {
			out = max(out, v)
		}
		return out, nil
	default:
		return 0, NewUnknownOperatorError(string(op))
	}
}
