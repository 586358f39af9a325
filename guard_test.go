package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() map[string]interface{} {
	return map[string]interface{}{
		"amount":     150.0,
		"vendor_id":  "vendor-acme",
		"department": "OPS",
		"tags":       []interface{}{"urgent", "reviewed"},
	}
}

func TestFieldAccessResolvesDottedPath(t *testing.T) {
	v, err := FieldAccess{Path: "payload.vendor_id"}.Eval(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "vendor-acme", v)
}

func TestFieldAccessRejectsPathNotRootedAtPayload(t *testing.T) {
	_, err := FieldAccess{Path: "vendor_id"}.Eval(samplePayload())
	assert.Error(t, err)
}

func TestCompareOrderedOperators(t *testing.T) {
	payload := samplePayload()
	cases := []struct {
		op   CompareOp
		want bool
	}{
		{OpLT, false},
		{OpLE, true},
		{OpGT, false},
		{OpGE, true},
		{OpEQ, true},
		{OpNE, false},
	}
	for _, c := range cases {
		expr := Compare{Op: c.op, Left: FieldAccess{Path: "payload.amount"}, Right: Literal{Value: 150.0}}
		got, err := EvalBool(expr, payload)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "op %s", c.op)
	}
}

func TestAndOrNotShortCircuitCorrectly(t *testing.T) {
	payload := samplePayload()
	trueExpr := Compare{Op: OpEQ, Left: FieldAccess{Path: "payload.department"}, Right: Literal{Value: "OPS"}}
	falseExpr := Compare{Op: OpEQ, Left: FieldAccess{Path: "payload.department"}, Right: Literal{Value: "SALES"}}

	and, err := EvalBool(And{Terms: []GuardExpr{trueExpr, falseExpr}}, payload)
	require.NoError(t, err)
	assert.False(t, and)

	or, err := EvalBool(Or{Terms: []GuardExpr{trueExpr, falseExpr}}, payload)
	require.NoError(t, err)
	assert.True(t, or)

	not, err := EvalBool(Not{Term: falseExpr}, payload)
	require.NoError(t, err)
	assert.True(t, not)

	// A term that would error if evaluated is never reached once the
	// result is decided.
	missing := Compare{Op: OpEQ, Left: FieldAccess{Path: "payload.no_such_field"}, Right: Literal{Value: "x"}}
	shortAnd, err := EvalBool(And{Terms: []GuardExpr{falseExpr, missing}}, payload)
	require.NoError(t, err)
	assert.False(t, shortAnd)

	shortOr, err := EvalBool(Or{Terms: []GuardExpr{trueExpr, missing}}, payload)
	require.NoError(t, err)
	assert.True(t, shortOr)
}

func TestInAndNotIn(t *testing.T) {
	payload := samplePayload()
	in := In{Left: FieldAccess{Path: "payload.department"}, Right: Literal{Value: []interface{}{"OPS", "ENG"}}}
	got, err := EvalBool(in, payload)
	require.NoError(t, err)
	assert.True(t, got)

	notIn := NotIn{Left: FieldAccess{Path: "payload.department"}, Right: Literal{Value: []interface{}{"SALES"}}}
	got, err = EvalBool(notIn, payload)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestAbsAndLen(t *testing.T) {
	payload := map[string]interface{}{"amount": -42.0, "tags": []interface{}{"a", "b", "c"}}

	abs := Abs{Operand: FieldAccess{Path: "payload.amount"}}
	v, err := abs.Eval(payload)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	length := Len{Operand: FieldAccess{Path: "payload.tags"}}
	v, err = length.Eval(payload)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestEvalBoolRejectsNonBooleanResult(t *testing.T) {
	_, err := EvalBool(Literal{Value: "not a bool"}, samplePayload())
	assert.Error(t, err)
}
