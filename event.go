package ledger

// Event ingestion: idempotent acceptance of inbound facts into a
// tamper-evident, hash-chained log. Grounded on the teacher's
// event_store.go (CreateEvent/GetEvents/ReplayEvents), generalized from
// the teacher's append-only JournalEvent log to a BusinessEvent contract
// that deduplicates by event_id and detects replayed-with-different-
// payload submissions as protocol violations.

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// BusinessEvent is an immutable fact accepted from an upstream module.
type BusinessEvent struct {
	EventID        string          `json:"event_id"`
	EventKey       string          `json:"event_key,omitempty"`
	EventType      string          `json:"event_type"`
	SchemaVersion  uint            `json:"schema_version"`
	OccurredAt     time.Time       `json:"occurred_at"`
	IngestedAt     time.Time       `json:"ingested_at"`
	EffectiveDate  time.Time       `json:"effective_date"`
	ActorID        string          `json:"actor_id"`
	Producer       string          `json:"producer"`
	Payload        json.RawMessage `json:"payload"`
	PayloadHash    string          `json:"payload_hash"`
	PrevHash       string          `json:"prev_hash"`
	Hash           string          `json:"hash"`
}

// Envelope is the inbound, not-yet-validated event submission.
type Envelope struct {
	EventID       string
	EventKey      string
	EventType     string
	SchemaVersion uint
	OccurredAt    time.Time
	EffectiveDate time.Time
	ActorID       string
	Producer      string
	Payload       interface{}
}

// IngestStatus is the outcome of EventStore.Ingest.
type IngestStatus string

const (
	IngestAcceptedNew       IngestStatus = "ACCEPTED_NEW"
	IngestAcceptedDuplicate IngestStatus = "ACCEPTED_DUPLICATE"
	IngestRejected          IngestStatus = "REJECTED"
)

// IngestResult is EventStore.Ingest's return value.
type IngestResult struct {
	Status IngestStatus
	Event  *BusinessEvent
	Code   string // set when Status == IngestRejected
}

// SchemaValidator validates a decoded payload for one (event_type,
// schema_version) pair. The kernel does not prescribe a schema language —
// callers register whatever validator fits (JSON Schema, a Go struct
// decode-and-check, etc).
type SchemaValidator func(payload json.RawMessage) error

// SchemaRegistry resolves (event_type, schema_version) to an active
// validator. A type/version absent from the registry is UNKNOWN_EVENT_TYPE.
type SchemaRegistry struct {
	validators map[string]map[uint]SchemaValidator
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{validators: make(map[string]map[uint]SchemaValidator)}
}

// Register activates a validator for (eventType, version).
func (r *SchemaRegistry) Register(eventType string, version uint, v SchemaValidator) {
	if r.validators[eventType] == nil {
		r.validators[eventType] = make(map[uint]SchemaValidator)
	}
	r.validators[eventType][version] = v
}

// Resolve returns the active validator, or false if none is registered.
func (r *SchemaRegistry) Resolve(eventType string, version uint) (SchemaValidator, bool) {
	byVersion, ok := r.validators[eventType]
	if !ok {
		return nil, false
	}
	v, ok := byVersion[version]
	return v, ok
}

// EventStore persists BusinessEvents with idempotent acceptance and a
// tamper-evident hash chain over the acceptance order.
type EventStore struct {
	storage  *Storage
	schemas  *SchemaRegistry
	audit    *AuditLog
	chainKey string
}

// NewEventStore builds an EventStore. When audit is set, IngestTx appends
// the ingestion audit record inside the caller's transaction; when audit
// is nil, ingestion appends no audit record.
func NewEventStore(storage *Storage, schemas *SchemaRegistry, audit *AuditLog) *EventStore {
	return &EventStore{storage: storage, schemas: schemas, audit: audit, chainKey: "events"}
}

// Ingest validates, deduplicates and chains one inbound event. It opens
// its own bbolt transaction unless called via IngestTx from within a
// larger one (the coordinator does the latter so ingestion commits
// atomically with posting).
func (es *EventStore) Ingest(env Envelope) (IngestResult, error) {
	var result IngestResult
	err := es.storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := es.IngestTx(tx, env)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// IngestTx is Ingest's transactional core, usable from within an existing
// bbolt.Tx (the coordinator's one-transaction-per-event contract).
func (es *EventStore) IngestTx(tx *bbolt.Tx, env Envelope) (IngestResult, error) {
	if es.schemas != nil {
		if _, ok := es.schemas.Resolve(env.EventType, env.SchemaVersion); !ok {
			return IngestResult{Status: IngestRejected, Code: CodeUnknownEventType}, nil
		}
	}

	payloadBytes, err := canonicalize(env.Payload)
	if err != nil {
		return IngestResult{Status: IngestRejected, Code: CodeSchemaInvalid}, nil
	}
	if es.schemas != nil {
		if v, ok := es.schemas.Resolve(env.EventType, env.SchemaVersion); ok && v != nil {
			if err := v(payloadBytes); err != nil {
				return IngestResult{Status: IngestRejected, Code: CodeSchemaInvalid}, nil
			}
		}
	}

	payloadHash, err := CanonicalPayloadHash(env.Payload)
	if err != nil {
		return IngestResult{Status: IngestRejected, Code: CodeSchemaInvalid}, nil
	}

	// Existing row with this event_id? Idempotency check.
	var existing BusinessEvent
	if err := getJSON(tx, bucketEvents, env.EventID, &existing); err == nil {
		if existing.PayloadHash == payloadHash {
			return IngestResult{Status: IngestAcceptedDuplicate, Event: &existing}, nil
		}
		if es.audit != nil {
			_, _ = es.audit.appendTx(tx, "BusinessEvent", env.EventID, "PROTOCOL_VIOLATION", env.ActorID, map[string]string{
				"existing_payload_hash": existing.PayloadHash,
				"submitted_payload_hash": payloadHash,
			})
		}
		return IngestResult{Status: IngestRejected, Code: CodeProtocolViolation}, nil
	}

	prevHash, err := chainHead(tx, es.chainKey)
	if err != nil {
		return IngestResult{}, err
	}
	hash := ChainHash(payloadHash, prevHash)

	event := &BusinessEvent{
		EventID:       env.EventID,
		EventKey:      env.EventKey,
		EventType:     env.EventType,
		SchemaVersion: env.SchemaVersion,
		OccurredAt:    env.OccurredAt,
		IngestedAt:    time.Now().UTC(),
		EffectiveDate: env.EffectiveDate,
		ActorID:       env.ActorID,
		Producer:      env.Producer,
		Payload:       json.RawMessage(payloadBytes),
		PayloadHash:   payloadHash,
		PrevHash:      prevHash,
		Hash:          hash,
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	if err := putJSON(tx, bucketEvents, event.EventID, event); err != nil {
		return IngestResult{}, fmt.Errorf("persist event: %w", err)
	}
	if err := setChainHead(tx, es.chainKey, hash); err != nil {
		return IngestResult{}, err
	}
	if es.audit != nil {
		if _, err := es.audit.appendTx(tx, "BusinessEvent", event.EventID, "INGESTED", event.ActorID, map[string]string{
			"event_type": event.EventType,
		}); err != nil {
			return IngestResult{}, err
		}
	}

	return IngestResult{Status: IngestAcceptedNew, Event: event}, nil
}

// Get retrieves a BusinessEvent by ID.
func (es *EventStore) Get(eventID string) (*BusinessEvent, error) {
	var event BusinessEvent
	err := es.storage.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketEvents, eventID, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Replay calls fn for every accepted event in ingestion order, enabling
// deterministic reconstruction of downstream state. bbolt iterates bucket
// keys in byte order; keys are event IDs (UUIDs), so Replay instead sorts
// by IngestedAt to guarantee acceptance order.
func (es *EventStore) Replay(fn func(*BusinessEvent) error) error {
	var events []*BusinessEvent
	err := es.storage.db.View(func(tx *bbolt.Tx) error {
		return iterate(tx, bucketEvents, func(_, v []byte) error {
			var e BusinessEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, &e)
			return nil
		})
	})
	if err != nil {
		return err
	}
	sortEventsByIngestOrder(events)
	for _, e := range events {
		if err := fn(e); err != nil {
			return fmt.Errorf("replay event %s: %w", e.EventID, err)
		}
	}
	return nil
}

func sortEventsByIngestOrder(events []*BusinessEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].IngestedAt.Before(events[j-1].IngestedAt); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// chainHead/setChainHead maintain the tail hash of a named hash chain
// (the event chain, the audit chain, or any future per-entity chain —
// the contract is the same regardless of which chain it backs).
func chainHead(tx *bbolt.Tx, chain string) (string, error) {
	var head string
	err := getJSON(tx, bucketChainHeads, chain, &head)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return head, nil
}

func setChainHead(tx *bbolt.Tx, chain, hash string) error {
	return putJSON(tx, bucketChainHeads, chain, hash)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
