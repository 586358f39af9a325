package ledger

// Restricted guard/where-clause expressions. This is a closed variant
// type, not a reflection-based expression evaluator: the node types are a
// fixed set of Go structs. CompilePolicyPack does not inspect guard or
// where-clause trees, so a pack carrying some other GuardExpr
// implementation is not rejected. Grounded on the teacher's ComplianceRule field-comparison
// checks in compliance.go, generalized into a small typed AST so guard
// and where-clause logic is data (came from a compiled configuration
// pack) rather than Go code.

import (
	"fmt"
	"strconv"
	"strings"
)

// GuardExpr is any node in the restricted expression language: <, <=, >,
// >=, ==, !=, and, or, not, in, not_in, abs, len, field access on
// payload.*, and literals.
type GuardExpr interface {
	Eval(payload map[string]interface{}) (interface{}, error)
}

// Literal is a constant value (string, float64, bool, or []interface{}).
type Literal struct {
	Value interface{}
}

func (l Literal) Eval(map[string]interface{}) (interface{}, error) { return l.Value, nil }

// FieldAccess resolves a dotted path rooted at payload, e.g. "payload.amount.currency".
type FieldAccess struct {
	Path string
}

func (f FieldAccess) Eval(payload map[string]interface{}) (interface{}, error) {
	parts := strings.Split(f.Path, ".")
	if len(parts) == 0 || parts[0] != "payload" {
		return nil, fmt.Errorf("field access must be rooted at payload.*, got %q", f.Path)
	}
	var cur interface{} = payload
	for _, p := range parts[1:] {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: not an object at %q", f.Path, p)
		}
		v, ok := m[p]
		if !ok {
			return nil, fmt.Errorf("field %q: %q not present", f.Path, p)
		}
		cur = v
	}
	return cur, nil
}

// CompareOp is one of <, <=, >, >=, ==, !=.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

// Compare is a binary comparison node.
type Compare struct {
	Op    CompareOp
	Left  GuardExpr
	Right GuardExpr
}

func (c Compare) Eval(payload map[string]interface{}) (interface{}, error) {
	lv, err := c.Left.Eval(payload)
	if err != nil {
		return nil, err
	}
	rv, err := c.Right.Eval(payload)
	if err != nil {
		return nil, err
	}
	if c.Op == OpEQ {
		return looseEqual(lv, rv), nil
	}
	if c.Op == OpNE {
		return !looseEqual(lv, rv), nil
	}
	// Payload amounts arrive as decimal strings ("1500.00"); ordered
	// comparisons read such strings as numbers.
	toNumber := func(v interface{}) (float64, bool) {
		if f, ok := asFloat(v); ok {
			return f, true
		}
		s, ok := v.(string)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	lf, lok := toNumber(lv)
	rf, rok := toNumber(rv)
	if !lok || !rok {
		return nil, fmt.Errorf("ordered comparison %s requires numeric operands, got %T and %T", c.Op, lv, rv)
	}
	switch c.Op {
	case OpLT:
		return lf < rf, nil
	case OpLE:
		return lf <= rf, nil
	case OpGT:
		return lf > rf, nil
	case OpGE:
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("unknown comparison operator %q", c.Op)
	}
}

// And/Or/Not are the logical connectives.
type And struct{ Terms []GuardExpr }
type Or struct{ Terms []GuardExpr }
type Not struct{ Term GuardExpr }

func (a And) Eval(payload map[string]interface{}) (interface{}, error) {
	for _, t := range a.Terms {
		v, err := t.Eval(payload)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("and: operand is not boolean: %v", v)
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

func (o Or) Eval(payload map[string]interface{}) (interface{}, error) {
	for _, t := range o.Terms {
		v, err := t.Eval(payload)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("or: operand is not boolean: %v", v)
		}
		if b {
			return true, nil
		}
	}
	return false, nil
}

func (n Not) Eval(payload map[string]interface{}) (interface{}, error) {
	v, err := n.Term.Eval(payload)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("not: operand is not boolean: %v", v)
	}
	return !b, nil
}

// In/NotIn test set membership: Left in Right (Right must evaluate to a slice).
type In struct {
	Left  GuardExpr
	Right GuardExpr
}
type NotIn struct {
	Left  GuardExpr
	Right GuardExpr
}

func (i In) Eval(payload map[string]interface{}) (interface{}, error) {
	return evalMembership(payload, i.Left, i.Right)
}

func (n NotIn) Eval(payload map[string]interface{}) (interface{}, error) {
	v, err := evalMembership(payload, n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return !v.(bool), nil
}

func evalMembership(payload map[string]interface{}, left, right GuardExpr) (interface{}, error) {
	lv, err := left.Eval(payload)
	if err != nil {
		return nil, err
	}
	rv, err := right.Eval(payload)
	if err != nil {
		return nil, err
	}
	set, ok := rv.([]interface{})
	if !ok {
		return nil, fmt.Errorf("in/not_in: right operand must be a list, got %T", rv)
	}
	for _, e := range set {
		if looseEqual(lv, e) {
			return true, nil
		}
	}
	return false, nil
}

// Abs computes the absolute value of a numeric operand.
type Abs struct{ Operand GuardExpr }

func (a Abs) Eval(payload map[string]interface{}) (interface{}, error) {
	v, err := a.Operand.Eval(payload)
	if err != nil {
		return nil, err
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("abs: operand is not numeric: %v", v)
	}
	if f < 0 {
		f = -f
	}
	return f, nil
}

// Len computes the length of a string or list operand.
type Len struct{ Operand GuardExpr }

func (l Len) Eval(payload map[string]interface{}) (interface{}, error) {
	v, err := l.Operand.Eval(payload)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case string:
		return float64(len(val)), nil
	case []interface{}:
		return float64(len(val)), nil
	default:
		return nil, fmt.Errorf("len: operand is not a string or list: %T", v)
	}
}

// EvalBool evaluates expr and requires a boolean result, the shape every
// guard and where-clause root must have.
func EvalBool(expr GuardExpr, payload map[string]interface{}) (bool, error) {
	v, err := expr.Eval(payload)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("guard expression did not evaluate to a boolean: %v", v)
	}
	return b, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func looseEqual(a, b interface{}) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}
