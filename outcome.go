package ledger

// Outcome recorder: the terminal disposition of every accepted event,
// written exactly once per source_event_id. Grounded on the teacher's
// PostingError/ValidationResult shapes (posting_engine.go), generalized
// from a transient validation result into a durable, queryable record —
// the outcome is itself the audit trail for rejections and failures that
// never produce journal rows.

import (
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// OutcomeStatus is an InterpretationOutcome's terminal (or, for BLOCKED,
// resumable) status.
type OutcomeStatus string

const (
	OutcomePosted     OutcomeStatus = "POSTED"
	OutcomeBlocked    OutcomeStatus = "BLOCKED"
	OutcomeRejected   OutcomeStatus = "REJECTED"
	OutcomeNonPosting OutcomeStatus = "NON_POSTING"
	OutcomeProvisional OutcomeStatus = "PROVISIONAL"
	OutcomeFailed     OutcomeStatus = "FAILED"
	OutcomeRetrying   OutcomeStatus = "RETRYING"
	OutcomeAbandoned  OutcomeStatus = "ABANDONED"
)

// InterpretationOutcome is the single row recording what ultimately
// happened to one accepted BusinessEvent.
type InterpretationOutcome struct {
	ID              string        `json:"id"`
	SourceEventID   string        `json:"source_event_id"`
	Status          OutcomeStatus `json:"status"`
	JournalEntryIDs []string      `json:"journal_entry_ids,omitempty"`
	EconEventID     string        `json:"econ_event_id,omitempty"`
	ReasonCode      string        `json:"reason_code,omitempty"`
	ReasonDetail    string        `json:"reason_detail,omitempty"`
	FailureType     FailureType   `json:"failure_type,omitempty"`
	RetryCount      int           `json:"retry_count"`
	PolicyID        string        `json:"policy_id,omitempty"`
	PolicyVersion   uint          `json:"policy_version,omitempty"`
	DecisionLog     []string      `json:"decision_log,omitempty"`
}

// OutcomeRecorder owns the interpretation_outcomes bucket and its
// unique-per-source-event-id constraint.
type OutcomeRecorder struct {
	storage *Storage
}

// NewOutcomeRecorder binds an OutcomeRecorder to storage.
func NewOutcomeRecorder(storage *Storage) *OutcomeRecorder {
	return &OutcomeRecorder{storage: storage}
}

// RecordTx writes or updates the outcome for sourceEventID within tx. A
// first write inserts a fresh row. The only permitted update path is
// BLOCKED -> POSTED resumption: the existing row's status, journal_entry_ids
// and econ_event_id are updated; no other field changes, and any other
// attempted transition is rejected.
func (or *OutcomeRecorder) RecordTx(tx *bbolt.Tx, sourceEventID string, next InterpretationOutcome) (*InterpretationOutcome, error) {
	var existing InterpretationOutcome
	err := getJSON(tx, bucketOutcomes, sourceEventID, &existing)
	switch {
	case err != nil && isNotFound(err):
		next.SourceEventID = sourceEventID
		if next.ID == "" {
			next.ID = uuid.New().String()
		}
		if err := putJSON(tx, bucketOutcomes, sourceEventID, &next); err != nil {
			return nil, err
		}
		return &next, nil
	case err != nil:
		return nil, err
	default:
		if existing.Status != OutcomeBlocked || next.Status != OutcomePosted {
			return nil, fmt.Errorf("%w: outcome %s already recorded with status %s", ErrImmutable, sourceEventID, existing.Status)
		}
		existing.Status = OutcomePosted
		existing.JournalEntryIDs = append(existing.JournalEntryIDs, next.JournalEntryIDs...)
		if next.EconEventID != "" {
			existing.EconEventID = next.EconEventID
		}
		if err := putJSON(tx, bucketOutcomes, sourceEventID, &existing); err != nil {
			return nil, err
		}
		return &existing, nil
	}
}

// Get loads the outcome for sourceEventID, if any.
func (or *OutcomeRecorder) Get(sourceEventID string) (*InterpretationOutcome, error) {
	var o InterpretationOutcome
	err := or.storage.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketOutcomes, sourceEventID, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetTx is Get's transactional form.
func (or *OutcomeRecorder) GetTx(tx *bbolt.Tx, sourceEventID string) (*InterpretationOutcome, error) {
	var o InterpretationOutcome
	if err := getJSON(tx, bucketOutcomes, sourceEventID, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
