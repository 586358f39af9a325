package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePolicyPackRejectsAmbiguousPrecedence(t *testing.T) {
	precedence := PolicyPrecedence{OverrideDepth: 0, ScopeSpecificity: 0, Priority: 0, StableKey: "same"}
	a := Policy{ID: "a", EventType: "ap.invoice.received", Precedence: precedence}
	b := Policy{ID: "b", EventType: "ap.invoice.received", Precedence: precedence}

	_, err := CompilePolicyPack("bad-pack", "v1", []Policy{a, b}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestCompilePolicyPackAllowsNonOverlappingWindows(t *testing.T) {
	precedence := PolicyPrecedence{StableKey: "same"}
	a := Policy{ID: "a", EventType: "ap.invoice.received", Precedence: precedence, EffectiveUntil: "2026-01-01"}
	b := Policy{ID: "b", EventType: "ap.invoice.received", Precedence: precedence, EffectiveFrom: "2026-01-01"}

	pack, err := CompilePolicyPack("pack", "v1", []Policy{a, b}, nil, map[string]LedgerDef{}, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, pack.Checksum)
}

func TestPolicySelectorPicksHigherPrecedence(t *testing.T) {
	low := Policy{
		ID: "low", EventType: "ap.invoice.received",
		Precedence: PolicyPrecedence{OverrideDepth: 0, StableKey: "low"},
	}
	high := Policy{
		ID: "high", EventType: "ap.invoice.received",
		Precedence: PolicyPrecedence{OverrideDepth: 1, StableKey: "high"},
	}
	pack, err := CompilePolicyPack("pack", "v1", []Policy{low, high}, nil, map[string]LedgerDef{}, nil, nil)
	require.NoError(t, err)

	selector := NewPolicySelector(pack)
	event := &BusinessEvent{EventType: "ap.invoice.received", Payload: []byte(`{}`)}
	result, err := selector.Select(event, map[string]bool{}, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, SelectMatched, result.Status)
	assert.Equal(t, "high", result.Policy.ID)
}

func TestPolicySelectorNoMatchForUnknownEventType(t *testing.T) {
	pack, err := CompilePolicyPack("pack", "v1", nil, nil, map[string]LedgerDef{}, nil, nil)
	require.NoError(t, err)
	selector := NewPolicySelector(pack)
	event := &BusinessEvent{EventType: "unknown.event", Payload: []byte(`{}`)}
	result, err := selector.Select(event, map[string]bool{}, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, SelectNoMatch, result.Status)
}

func TestPolicySelectorRespectsWhereClauseAndCapabilities(t *testing.T) {
	gated := Policy{
		ID:        "gated",
		EventType: "ap.invoice.received",
		Where:     Compare{Op: OpGT, Left: FieldAccess{Path: "payload.amount"}, Right: Literal{Value: 1000.0}},
		RequiredTags: []string{"large_invoice_review"},
		Precedence:   PolicyPrecedence{StableKey: "gated"},
	}
	pack, err := CompilePolicyPack("pack", "v1", []Policy{gated}, nil, map[string]LedgerDef{}, nil, nil)
	require.NoError(t, err)
	selector := NewPolicySelector(pack)

	event := &BusinessEvent{EventType: "ap.invoice.received", Payload: []byte(`{"amount": 1500}`)}

	result, err := selector.Select(event, map[string]bool{}, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, SelectNoMatch, result.Status, "missing required capability should exclude the policy")

	result, err = selector.Select(event, map[string]bool{"large_invoice_review": true}, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, SelectMatched, result.Status)
}

func TestResolveRoleRequiresUniqueActiveBinding(t *testing.T) {
	pack := &CompiledPolicyPack{
		RoleBindings: []RoleBinding{
			{Role: "CONTROL_AP", LedgerID: "GL", COAVersion: "v1", AccountID: "2000-AP"},
		},
	}
	accountID, ok := pack.ResolveRole("CONTROL_AP", "GL", "v1", "2026-07-30")
	require.True(t, ok)
	assert.Equal(t, "2000-AP", accountID)

	_, ok = pack.ResolveRole("CONTROL_AP", "GL", "v2", "2026-07-30")
	assert.False(t, ok)
}

func TestResolveRoleAmbiguousOnOverlappingBindings(t *testing.T) {
	pack := &CompiledPolicyPack{
		RoleBindings: []RoleBinding{
			{Role: "CONTROL_AP", LedgerID: "GL", COAVersion: "v1", AccountID: "2000-AP"},
			{Role: "CONTROL_AP", LedgerID: "GL", COAVersion: "v1", AccountID: "2001-AP"},
		},
	}
	_, ok := pack.ResolveRole("CONTROL_AP", "GL", "v1", "2026-07-30")
	assert.False(t, ok)
}
