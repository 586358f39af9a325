package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeaningBuilderBuildsLedgerIntent(t *testing.T) {
	pack, err := BuildExamplePack()
	require.NoError(t, err)
	mb := NewMeaningBuilder(BuildExampleDimensionSchema(), DefaultCurrencyRegistry())

	payload, _ := json.Marshal(map[string]interface{}{
		"amount": "1500.00", "vendor_id": "vendor-acme", "department": "OPS",
	})
	event := &BusinessEvent{
		EventID: "evt-1", EventType: "ap.invoice.received",
		Payload: payload, EffectiveDate: mustParseDate(t, "2026-07-30"),
	}
	policy := findPolicy(t, pack, "pol-ap-invoice-received-v1")

	result, err := mb.Build(policy, event, ReferenceSnapshot{COAVersion: ExampleCOAVersion})
	require.NoError(t, err)
	require.Equal(t, MeaningPosting, result.Status)
	require.Len(t, result.Intent.Ledgers, 1)
	require.Len(t, result.Intent.Ledgers[0].Lines, 2)
	assert.Equal(t, int64(150000), result.Intent.Ledgers[0].Lines[0].Amount.Minor)
}

func TestMeaningBuilderRejectsOnGuardMatch(t *testing.T) {
	pack, err := BuildExamplePack()
	require.NoError(t, err)
	mb := NewMeaningBuilder(BuildExampleDimensionSchema(), DefaultCurrencyRegistry())

	payload, _ := json.Marshal(map[string]interface{}{
		"amount": 0.0, "vendor_id": "vendor-acme", "department": "OPS",
	})
	event := &BusinessEvent{
		EventID: "evt-2", EventType: "ap.invoice.received",
		Payload: payload, EffectiveDate: mustParseDate(t, "2026-07-30"),
	}
	policy := findPolicy(t, pack, "pol-ap-invoice-received-v1")

	result, err := mb.Build(policy, event, ReferenceSnapshot{COAVersion: ExampleCOAVersion})
	require.NoError(t, err)
	assert.Equal(t, MeaningRejected, result.Status)
	assert.Equal(t, CodeSchemaInvalid, result.ReasonCode)
}

func findPolicy(t *testing.T, pack *CompiledPolicyPack, id string) *Policy {
	t.Helper()
	for i := range pack.Policies {
		if pack.Policies[i].ID == id {
			return &pack.Policies[i]
		}
	}
	t.Fatalf("policy %s not found in pack", id)
	return nil
}
