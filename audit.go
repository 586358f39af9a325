package ledger

// Audit log: an append-only, hash-chained record of every state-affecting
// action, independently verifiable end-to-end. Grounded on the teacher's
// event-sourcing approach in event_store.go, generalized from a single
// JournalEvent log into a separate AuditEvent chain, and on the hash-chain
// technique the jordigilh-kubernaut audit package (other_examples)
// documents for tamper-evident audit trails.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// AuditEvent is one append-only node in the global audit chain.
type AuditEvent struct {
	ID          string `json:"id"`
	Seq         uint64 `json:"seq"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Action      string `json:"action"`
	ActorID     string `json:"actor_id"`
	OccurredAt  string `json:"occurred_at"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	Hash        string `json:"hash"`
}

// AuditLog is the single global hash chain over AuditEvents. Per-entity
// chains, if ever needed, reuse chainHead/setChainHead under a different
// chain name.
type AuditLog struct {
	storage *Storage
}

// NewAuditLog constructs an AuditLog bound to storage.
func NewAuditLog(storage *Storage) *AuditLog {
	return &AuditLog{storage: storage}
}

// Append adds one AuditEvent in its own transaction.
func (a *AuditLog) Append(entityType, entityID, action, actorID string, payload interface{}) (*AuditEvent, error) {
	var event *AuditEvent
	err := a.storage.db.Update(func(tx *bbolt.Tx) error {
		e, err := a.appendTx(tx, entityType, entityID, action, actorID, payload)
		if err != nil {
			return err
		}
		event = e
		return nil
	})
	return event, err
}

// appendTx is Append's transactional core, callable from within a larger
// bbolt.Tx so an audit record commits atomically with the action it
// describes (the coordinator's one-transaction contract).
func (a *AuditLog) appendTx(tx *bbolt.Tx, entityType, entityID, action, actorID string, payload interface{}) (*AuditEvent, error) {
	payloadHash, err := CanonicalPayloadHash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash audit payload: %w", err)
	}

	seq, err := nextAuditSeq(tx)
	if err != nil {
		return nil, err
	}

	prevHash, err := chainHead(tx, "audit")
	if err != nil {
		return nil, err
	}
	hash := ChainHash(payloadHash, prevHash)

	event := &AuditEvent{
		ID:          uuid.New().String(),
		Seq:         seq,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		ActorID:     actorID,
		OccurredAt:  nowUTCString(),
		PayloadHash: payloadHash,
		PrevHash:    prevHash,
		Hash:        hash,
	}

	if err := putJSON(tx, bucketAuditEvents, seqKey(seq), event); err != nil {
		return nil, fmt.Errorf("persist audit event: %w", err)
	}
	if err := setChainHead(tx, "audit", hash); err != nil {
		return nil, err
	}
	return event, nil
}

// VerifyResult is AuditLog.Verify's outcome.
type VerifyResult struct {
	Ok        bool
	BrokenSeq uint64 // meaningful only when !Ok
}

// Verify walks [from, to] recomputing each node's hash from its recorded
// payload_hash and prev_hash. The first mismatch is reported via
// BrokenSeq; a broken chain never incorrectly reports Ok.
func (a *AuditLog) Verify(from, to uint64) (VerifyResult, error) {
	prevHash := ""
	if from > 0 {
		prior, err := a.Get(from - 1)
		if err == nil {
			prevHash = prior.Hash
		}
	}
	for seq := from; seq <= to; seq++ {
		event, err := a.Get(seq)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("load audit event %d: %w", seq, err)
		}
		if event.PrevHash != prevHash {
			return VerifyResult{Ok: false, BrokenSeq: seq}, nil
		}
		recomputed := ChainHash(event.PayloadHash, event.PrevHash)
		if recomputed != event.Hash {
			return VerifyResult{Ok: false, BrokenSeq: seq}, nil
		}
		prevHash = event.Hash
	}
	return VerifyResult{Ok: true}, nil
}

// Get retrieves the audit event at seq.
func (a *AuditLog) Get(seq uint64) (*AuditEvent, error) {
	var event AuditEvent
	err := a.storage.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketAuditEvents, seqKey(seq), &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Range returns every audit event with seq in [from, to], in order.
func (a *AuditLog) Range(from, to uint64) ([]*AuditEvent, error) {
	var events []*AuditEvent
	for seq := from; seq <= to; seq++ {
		e, err := a.Get(seq)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func nextAuditSeq(tx *bbolt.Tx) (uint64, error) {
	b := tx.Bucket(bucketAuditSeq)
	const key = "global"
	raw := b.Get([]byte(key))
	var next uint64 = 1
	if raw != nil {
		next = binary.BigEndian.Uint64(raw) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := b.Put([]byte(key), buf); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSeqAllocFailed, err)
	}
	return next, nil
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func nowUTCString() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// decodeAuditEventJSON is used by selectors that need raw bucket scans
// without going through Storage's typed Get methods.
func decodeAuditEventJSON(data []byte) (*AuditEvent, error) {
	var e AuditEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
