package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(eventID, eventType string, payload map[string]interface{}) Envelope {
	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		EffectiveDate: time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
		ActorID:       "actor-1",
		Producer:      "ap-service",
		Payload:       payload,
	}
}

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	storage := newTestStorage(t)
	schemas := BuildExampleSchemaRegistry()
	audit := NewAuditLog(storage)
	return NewEventStore(storage, schemas, audit)
}

func TestEventStoreIngestAcceptsNewEvent(t *testing.T) {
	es := newTestEventStore(t)
	result, err := es.Ingest(testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "100.00", "vendor_id": "v1", "department": "OPS",
	}))
	require.NoError(t, err)
	assert.Equal(t, IngestAcceptedNew, result.Status)
	assert.NotEmpty(t, result.Event.PayloadHash)
}

func TestEventStoreIngestIsIdempotentOnSamePayload(t *testing.T) {
	es := newTestEventStore(t)
	env := testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "100.00", "vendor_id": "v1", "department": "OPS",
	})
	first, err := es.Ingest(env)
	require.NoError(t, err)
	second, err := es.Ingest(env)
	require.NoError(t, err)
	assert.Equal(t, IngestAcceptedNew, first.Status)
	assert.Equal(t, IngestAcceptedDuplicate, second.Status)
}

func TestEventStoreIngestRejectsReplayWithDifferentPayload(t *testing.T) {
	es := newTestEventStore(t)
	_, err := es.Ingest(testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "100.00", "vendor_id": "v1", "department": "OPS",
	}))
	require.NoError(t, err)

	result, err := es.Ingest(testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "200.00", "vendor_id": "v1", "department": "OPS",
	}))
	require.NoError(t, err)
	assert.Equal(t, IngestRejected, result.Status)
	assert.Equal(t, CodeProtocolViolation, result.Code)
}

func TestEventStoreIngestRejectsMissingRequiredField(t *testing.T) {
	es := newTestEventStore(t)
	result, err := es.Ingest(testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "100.00",
	}))
	require.NoError(t, err)
	assert.Equal(t, IngestRejected, result.Status)
	assert.Equal(t, CodeSchemaInvalid, result.Code)
}

func TestEventStoreIngestRejectsUnknownEventType(t *testing.T) {
	es := newTestEventStore(t)
	result, err := es.Ingest(testEnvelope("evt-1", "nonexistent.event", map[string]interface{}{}))
	require.NoError(t, err)
	assert.Equal(t, IngestRejected, result.Status)
	assert.Equal(t, CodeUnknownEventType, result.Code)
}

func TestEventStoreReplayOrdersByIngestedAt(t *testing.T) {
	es := newTestEventStore(t)
	_, err := es.Ingest(testEnvelope("evt-1", "ap.invoice.received", map[string]interface{}{
		"amount": "100.00", "vendor_id": "v1", "department": "OPS",
	}))
	require.NoError(t, err)
	_, err = es.Ingest(testEnvelope("evt-2", "ap.invoice.received", map[string]interface{}{
		"amount": "200.00", "vendor_id": "v2", "department": "SALES",
	}))
	require.NoError(t, err)

	var seen []string
	err = es.Replay(func(e *BusinessEvent) error {
		seen = append(seen, e.EventID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-1", "evt-2"}, seen)
}
