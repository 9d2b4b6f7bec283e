package ir

import (
	"fmt"
	"math"
)

// CompareOp is a degree-constraint comparison operator.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpLT CompareOp = "<"
	OpGE CompareOp = ">="
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

var compareOps = map[CompareOp]bool{
	OpGT: true, OpLT: true, OpGE: true, OpLE: true, OpEQ: true, OpNE: true,
}

// ParseCompareOp rejects anything outside the closed operator set.
func ParseCompareOp(s string) (CompareOp, error) {
	op := CompareOp(s)
	if !compareOps[op] {
		return "", fmt.Errorf("unknown comparison operator %q", s)
	}
	return op, nil
}

// Ordered reports whether op needs numeric operands.
func (op CompareOp) Ordered() bool {
	return op != OpEQ && op != OpNE
}

// Constraint is a degree constraint [op, operand, threshold].
// Operand is usually a variable; Threshold is always a literal.
type Constraint struct {
	Op        CompareOp
	Operand   Atom
	Threshold Atom
}

func (c Constraint) validate() []ValidationError {
	var errs []ValidationError
	if !compareOps[c.Op] {
		errs = append(errs, ValidationError{Field: "op", Message: fmt.Sprintf("unknown comparison operator %q", c.Op)})
	}
	if c.Operand == nil {
		errs = append(errs, ValidationError{Field: "operand", Message: "operand is required"})
	}
	if c.Threshold == nil {
		errs = append(errs, ValidationError{Field: "threshold", Message: "threshold is required"})
	} else if IsVariable(c.Threshold) {
		errs = append(errs, ValidationError{Field: "threshold", Message: "threshold must be a literal"})
	} else if _, isNum := c.Threshold.(Number); c.Op.Ordered() && !isNum {
		errs = append(errs, ValidationError{Field: "threshold", Message: fmt.Sprintf("operator %s needs a numeric threshold", c.Op)})
	}
	return errs
}

// ParseConstraint converts a decoded [op, operand, threshold] list.
func ParseConstraint(v any) (Constraint, error) {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return Constraint{}, fmt.Errorf("constraint must be a list [op, operand, threshold], got %v", v)
	}
	opStr, ok := list[0].(string)
	if !ok {
		return Constraint{}, fmt.Errorf("constraint operator must be a string, got %T", list[0])
	}
	op, err := ParseCompareOp(opStr)
	if err != nil {
		return Constraint{}, err
	}
	operand, err := AtomFromAny(list[1])
	if err != nil {
		return Constraint{}, fmt.Errorf("constraint operand: %w", err)
	}
	threshold, err := AtomFromAny(list[2])
	if err != nil {
		return Constraint{}, fmt.Errorf("constraint threshold: %w", err)
	}
	c := Constraint{Op: op, Operand: operand, Threshold: threshold}
	if errs := c.validate(); len(errs) > 0 {
		return Constraint{}, ValidationErrors(errs)
	}
	return c, nil
}

// Value returns the wire form of c.
func (c Constraint) Value() []any {
	return []any{string(c.Op), AtomValue(c.Operand), AtomValue(c.Threshold)}
}

// ArithOp is a degree-expression operator.
type ArithOp string

const (
	OpMul ArithOp = "*"
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpDiv ArithOp = "/"
	OpMin ArithOp = "min"
	OpMax ArithOp = "max"
)

var arithOps = map[ArithOp]bool{
	OpMul: true, OpAdd: true, OpSub: true, OpDiv: true, OpMin: true, OpMax: true,
}

// ParseArithOp rejects anything outside the closed operator set.
func ParseArithOp(s string) (ArithOp, error) {
	op := ArithOp(s)
	if !arithOps[op] {
		return "", fmt.Errorf("unknown arithmetic operator %q", s)
	}
	return op, nil
}

// DegreeExpr is a sealed interface for prefix degree expressions.
// Only Literal, VarRef and Apply implement it.
type DegreeExpr interface {
	degreeExpr() // Sealed
}

// Literal is a constant degree expression.
type Literal float64

func (Literal) degreeExpr() {}

// VarRef reads a bound variable. The name includes the sigil.
type VarRef string

func (VarRef) degreeExpr() {}

// Apply is [op, operand, ...] with at least two operands.
type Apply struct {
	Op       ArithOp
	Operands []DegreeExpr
}

func (Apply) degreeExpr() {}

// Mul is shorthand for [*, operands...].
func Mul(operands ...DegreeExpr) Apply {
	return Apply{Op: OpMul, Operands: operands}
}

// ParseDegreeExpr converts a decoded degree value.
//
//	0.8                 → Literal
//	"?d"                → VarRef
//	["*", 0.9, "?d"]    → Apply (operands parsed recursively)
func ParseDegreeExpr(v any) (DegreeExpr, error) {
	switch val := v.(type) {
	case string:
		if !IsVariable(String(val)) {
			return nil, fmt.Errorf("degree expression string %q is not a variable", val)
		}
		return VarRef(val), nil
	case []any:
		if len(val) < 3 {
			return nil, fmt.Errorf("degree expression needs an operator and at least two operands, got %v", val)
		}
		opStr, ok := val[0].(string)
		if !ok {
			return nil, fmt.Errorf("degree expression operator must be a string, got %T", val[0])
		}
		op, err := ParseArithOp(opStr)
		if err != nil {
			return nil, err
		}
		if op == OpDiv && len(val) != 3 {
			return nil, fmt.Errorf("operator / takes exactly two operands, got %d", len(val)-1)
		}
		operands := make([]DegreeExpr, 0, len(val)-1)
		for i, raw := range val[1:] {
			e, err := ParseDegreeExpr(raw)
			if err != nil {
				return nil, fmt.Errorf("operand %d: %w", i+1, err)
			}
			operands = append(operands, e)
		}
		return Apply{Op: op, Operands: operands}, nil
	default:
		a, err := AtomFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("degree expression: %w", err)
		}
		n, ok := a.(Number)
		if !ok {
			return nil, fmt.Errorf("degree expression must be a number, variable or list, got %T", v)
		}
		return Literal(n), nil
	}
}

// ExprValue returns the wire form of e.
func ExprValue(e DegreeExpr) any {
	switch val := e.(type) {
	case Literal:
		return float64(val)
	case VarRef:
		return string(val)
	case Apply:
		out := make([]any, 0, len(val.Operands)+1)
		out = append(out, string(val.Op))
		for _, operand := range val.Operands {
			out = append(out, ExprValue(operand))
		}
		return out
	default:
		return nil
	}
}

// ExprVariables lists the variables referenced by e in order of appearance.
func ExprVariables(e DegreeExpr) []string {
	var out []string
	var walk func(DegreeExpr)
	walk = func(e DegreeExpr) {
		switch val := e.(type) {
		case VarRef:
			out = append(out, string(val))
		case Apply:
			for _, operand := range val.Operands {
				walk(operand)
			}
		}
	}
	walk(e)
	return out
}

func validateExpr(e DegreeExpr) []ValidationError {
	switch val := e.(type) {
	case Literal:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return []ValidationError{{Message: "literal must be finite"}}
		}
		return nil
	case VarRef:
		if !IsVariable(String(val)) {
			return []ValidationError{{Message: fmt.Sprintf("variable %q must start with %s", val, VariableSigil)}}
		}
		return nil
	case Apply:
		var errs []ValidationError
		if !arithOps[val.Op] {
			errs = append(errs, ValidationError{Field: "op", Message: fmt.Sprintf("unknown arithmetic operator %q", val.Op)})
		}
		if len(val.Operands) < 2 {
			errs = append(errs, ValidationError{Field: "operands", Message: "at least two operands are required"})
		}
		if val.Op == OpDiv && len(val.Operands) > 2 {
			errs = append(errs, ValidationError{Field: "operands", Message: "operator / takes exactly two operands"})
		}
		for i, operand := range val.Operands {
			errs = append(errs, prefixed(fmt.Sprintf("operands[%d]", i), validateExpr(operand))...)
		}
		return errs
	case nil:
		return []ValidationError{{Message: "expression is nil"}}
	default:
		return []ValidationError{{Message: fmt.Sprintf("unsupported expression type %T", e)}}
	}
}
