package ledger

// Interpretation coordinator: the single transactional orchestrator that
// runs ingest -> period-check -> snapshot -> policy-select -> meaning-
// build -> journal-write -> outcome-record atomically, in one bbolt
// transaction. Grounded on the teacher's AccountingEngine (engine.go) as
// the top-level wiring point, generalized from a grab-bag of independent
// service calls into one all-or-nothing pipeline per event.

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// EconomicEvent is the interpreted fact derived from a BusinessEvent and
// the policy that matched it — the durable record of "what this event
// meant," independent of how it was eventually journaled.
type EconomicEvent struct {
	ID            string   `json:"id"`
	SourceEventID string   `json:"source_event_id"`
	EconomicType  string   `json:"economic_type"`
	Quantity      *float64 `json:"quantity,omitempty"`
	Value         *Money   `json:"value,omitempty"`
	Dimensions    Dimensions `json:"dimensions,omitempty"`
	EffectiveDate string   `json:"effective_date"`
	PolicyID      string   `json:"policy_id"`
	PolicyVersion uint     `json:"policy_version"`
	PolicyHash    string   `json:"policy_hash"`
	Snapshot      ReferenceSnapshot `json:"snapshot"`
	PrevHash      string   `json:"prev_hash"`
	Hash          string   `json:"hash"`
}

// CoordinatorResultStatus mirrors the external response's status field.
type CoordinatorResultStatus string

const (
	ResultPosted       CoordinatorResultStatus = "POSTED"
	ResultAlreadyPosted CoordinatorResultStatus = "ALREADY_POSTED"
	ResultBlocked      CoordinatorResultStatus = "BLOCKED"
	ResultRejected     CoordinatorResultStatus = "REJECTED"
	ResultFailed       CoordinatorResultStatus = "FAILED"
)

// CoordinatorResult is interpret_and_post's external response shape.
type CoordinatorResult struct {
	Status          CoordinatorResultStatus
	OutcomeID       string
	JournalEntryIDs []string
	ReasonCode      string
	ReasonDetail    string
}

// InterpretationCoordinator wires every subsystem into the one
// transactional entrypoint upstream modules call.
type InterpretationCoordinator struct {
	storage    *Storage
	events     *EventStore
	audit      *AuditLog
	periods    *PeriodService
	snapshots  *ReferenceSnapshotService
	selector   *PolicySelector
	meaning    *MeaningBuilder
	journal    *JournalWriter
	outcomes   *OutcomeRecorder
	capabilities map[string]bool
}

// NewInterpretationCoordinator assembles a coordinator from its
// collaborators. Callers construct each collaborator once at startup
// from a single Storage and CompiledPolicyPack.
func NewInterpretationCoordinator(
	storage *Storage,
	events *EventStore,
	audit *AuditLog,
	periods *PeriodService,
	snapshots *ReferenceSnapshotService,
	selector *PolicySelector,
	meaning *MeaningBuilder,
	journal *JournalWriter,
	outcomes *OutcomeRecorder,
	capabilities map[string]bool,
) *InterpretationCoordinator {
	return &InterpretationCoordinator{
		storage: storage, events: events, audit: audit, periods: periods,
		snapshots: snapshots, selector: selector, meaning: meaning,
		journal: journal, outcomes: outcomes, capabilities: capabilities,
	}
}

// InterpretAndPost runs the full pipeline for one envelope in a single
// bbolt transaction. A crash mid-transaction leaves no partial state;
// retrying with the same envelope is always safe.
//
// A journal-write failure is the one case interpretAndPostTx surfaces as
// a *journalWriteFailure instead of committing a FAILED outcome inline:
// returning it as a real error forces bbolt to roll back the whole
// transaction, so a failure on ledger N of a multi-ledger intent can
// never leave ledgers 1..N-1's already-written entries posted. The
// FAILED outcome itself is then recorded in a fresh, second transaction,
// since the first one no longer exists to record it in.
func (c *InterpretationCoordinator) InterpretAndPost(env Envelope) (CoordinatorResult, error) {
	var result CoordinatorResult
	err := c.storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := c.interpretAndPostTx(tx, env)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	var failure *journalWriteFailure
	if errors.As(err, &failure) {
		return c.recordJournalWriteFailure(env.EventID, failure)
	}
	return result, err
}

// recordJournalWriteFailure persists the FAILED outcome for a journal
// write that failed and was rolled back, in its own transaction separate
// from the rolled-back attempt.
func (c *InterpretationCoordinator) recordJournalWriteFailure(sourceEventID string, failure *journalWriteFailure) (CoordinatorResult, error) {
	var result CoordinatorResult
	err := c.storage.db.Update(func(tx *bbolt.Tx) error {
		outcome, err := c.outcomes.RecordTx(tx, sourceEventID, InterpretationOutcome{
			Status:        OutcomeFailed,
			FailureType:   failure.failureType,
			ReasonCode:    failure.code,
			ReasonDetail:  failure.detail,
			PolicyID:      failure.policyID,
			PolicyVersion: failure.policyVersion,
			EconEventID:   failure.econEventID,
		})
		if err != nil {
			return err
		}
		result = CoordinatorResult{Status: ResultFailed, OutcomeID: outcome.ID, ReasonCode: failure.code, ReasonDetail: failure.detail}
		return nil
	})
	return result, err
}

// journalWriteFailure carries everything needed to record a FAILED
// outcome after the transaction that discovered the failure has already
// been rolled back.
type journalWriteFailure struct {
	failureType   FailureType
	code          string
	detail        string
	policyID      string
	policyVersion uint
	econEventID   string
	cause         error
}

func (e *journalWriteFailure) Error() string { return e.cause.Error() }
func (e *journalWriteFailure) Unwrap() error { return e.cause }

func (c *InterpretationCoordinator) interpretAndPostTx(tx *bbolt.Tx, env Envelope) (CoordinatorResult, error) {
	ingestResult, err := c.events.IngestTx(tx, env)
	if err != nil {
		return CoordinatorResult{}, fmt.Errorf("ingest: %w", err)
	}
	if ingestResult.Status == IngestRejected {
		return CoordinatorResult{Status: ResultRejected, ReasonCode: ingestResult.Code}, nil
	}
	if ingestResult.Status == IngestAcceptedDuplicate {
		existing, err := c.outcomes.GetTx(tx, ingestResult.Event.EventID)
		if err != nil && !isNotFound(err) {
			return CoordinatorResult{}, err
		}
		return outcomeToResult(existing, ResultAlreadyPosted), nil
	}

	event := ingestResult.Event

	if _, err := c.periods.ValidateEffectiveDateTx(tx, event.EffectiveDate.Format("2006-01-02"), PostingKind{}); err != nil {
		return c.writeTerminalOutcome(tx, event, OutcomeRejected, CodePeriodClosed, err.Error(), "")
	}

	snapshot := c.snapshots.Capture(event.OccurredAt.Format("2006-01-02"))

	selectResult, err := c.selector.Select(event, c.capabilities, event.EffectiveDate.Format("2006-01-02"))
	if err != nil {
		return CoordinatorResult{}, fmt.Errorf("select policy: %w", err)
	}
	switch selectResult.Status {
	case SelectNoMatch:
		return c.writeTerminalOutcome(tx, event, OutcomeRejected, CodePolicyNotFound, "no policy matched this event", "")
	case SelectAmbiguous:
		return c.writeTerminalOutcome(tx, event, OutcomeRejected, CodePolicyAmbiguous, "compiled pack yielded more than one matching policy", "")
	}
	policy := selectResult.Policy

	meaningResult, err := c.meaning.Build(policy, event, snapshot)
	if err != nil {
		return CoordinatorResult{}, fmt.Errorf("build meaning: %w", err)
	}
	switch meaningResult.Status {
	case MeaningRejected:
		return c.writeTerminalOutcomeWithPolicy(tx, event, OutcomeRejected, meaningResult.ReasonCode, meaningResult.Detail, policy)
	case MeaningBlocked:
		return c.writeTerminalOutcomeWithPolicy(tx, event, OutcomeBlocked, meaningResult.ReasonCode, meaningResult.Detail, policy)
	case MeaningNonPosting:
		return c.writeTerminalOutcomeWithPolicy(tx, event, OutcomeNonPosting, meaningResult.ReasonCode, meaningResult.Detail, policy)
	}
	intent := meaningResult.Intent

	econEvent, err := c.recordEconomicEventTx(tx, intent)
	if err != nil {
		return CoordinatorResult{}, fmt.Errorf("record economic event: %w", err)
	}

	writeResult, err := c.journal.Write(tx, intent, event.ActorID)
	if err != nil {
		failureType := FailureEngine
		var code string
		if errCode, ok := CodeOf(err); ok {
			code = errCode
			switch code {
			case CodeSubledgerReconFailed:
				failureType = FailureReconciliation
			case CodeSnapshotMissing:
				failureType = FailureSnapshot
			case CodeRoleUnresolved:
				failureType = FailureContract
			case CodePeriodClosed, CodePeriodClosing:
				failureType = FailureAuthority
			}
		}
		// Returned, not recorded here: the caller must see a non-nil error
		// so bbolt rolls back this whole transaction, undoing any ledger
		// already written by c.journal.Write before it hit this one.
		return CoordinatorResult{}, &journalWriteFailure{
			failureType:   failureType,
			code:          code,
			detail:        err.Error(),
			policyID:      policy.ID,
			policyVersion: policy.Version,
			econEventID:   econEvent.ID,
			cause:         err,
		}
	}

	outcome, err := c.outcomes.RecordTx(tx, event.EventID, InterpretationOutcome{
		Status:          OutcomePosted,
		JournalEntryIDs: writeResult.EntryIDs,
		EconEventID:     econEvent.ID,
		PolicyID:        policy.ID,
		PolicyVersion:   policy.Version,
	})
	if err != nil {
		return CoordinatorResult{}, err
	}
	if c.audit != nil {
		if _, err := c.audit.appendTx(tx, "InterpretationOutcome", outcome.ID, "POSTED", event.ActorID, map[string]interface{}{
			"source_event_id":  event.EventID,
			"journal_entry_ids": writeResult.EntryIDs,
		}); err != nil {
			return CoordinatorResult{}, err
		}
	}
	return CoordinatorResult{Status: ResultPosted, OutcomeID: outcome.ID, JournalEntryIDs: writeResult.EntryIDs}, nil
}

func (c *InterpretationCoordinator) writeTerminalOutcome(tx *bbolt.Tx, event *BusinessEvent, status OutcomeStatus, code, detail, econEventID string) (CoordinatorResult, error) {
	outcome, err := c.outcomes.RecordTx(tx, event.EventID, InterpretationOutcome{
		Status:       status,
		ReasonCode:   code,
		ReasonDetail: detail,
		EconEventID:  econEventID,
	})
	if err != nil {
		return CoordinatorResult{}, err
	}
	return CoordinatorResult{Status: outcomeStatusToResultStatus(status), OutcomeID: outcome.ID, ReasonCode: code, ReasonDetail: detail}, nil
}

func (c *InterpretationCoordinator) writeTerminalOutcomeWithPolicy(tx *bbolt.Tx, event *BusinessEvent, status OutcomeStatus, code, detail string, policy *Policy) (CoordinatorResult, error) {
	outcome, err := c.outcomes.RecordTx(tx, event.EventID, InterpretationOutcome{
		Status:        status,
		ReasonCode:    code,
		ReasonDetail:  detail,
		PolicyID:      policy.ID,
		PolicyVersion: policy.Version,
	})
	if err != nil {
		return CoordinatorResult{}, err
	}
	return CoordinatorResult{Status: outcomeStatusToResultStatus(status), OutcomeID: outcome.ID, ReasonCode: code, ReasonDetail: detail}, nil
}

func outcomeStatusToResultStatus(status OutcomeStatus) CoordinatorResultStatus {
	switch status {
	case OutcomeBlocked:
		return ResultBlocked
	case OutcomePosted:
		return ResultPosted
	default:
		return ResultRejected
	}
}

func outcomeToResult(outcome *InterpretationOutcome, fallback CoordinatorResultStatus) CoordinatorResult {
	if outcome == nil {
		return CoordinatorResult{Status: fallback}
	}
	return CoordinatorResult{
		Status:          fallback,
		OutcomeID:       outcome.ID,
		JournalEntryIDs: outcome.JournalEntryIDs,
	}
}

func (c *InterpretationCoordinator) recordEconomicEventTx(tx *bbolt.Tx, intent *AccountingIntent) (*EconomicEvent, error) {
	prevHash, err := chainHead(tx, "economic_events")
	if err != nil {
		return nil, err
	}
	payloadHash, err := CanonicalPayloadHash(intent)
	if err != nil {
		return nil, err
	}
	hash := ChainHash(payloadHash, prevHash)
	econ := &EconomicEvent{
		ID:            uuid.New().String(),
		SourceEventID: intent.SourceEventID,
		EconomicType:  intent.EconomicType,
		Quantity:      intent.Quantity,
		Value:         intent.Value,
		Dimensions:    intent.Dimensions,
		EffectiveDate: intent.EffectiveDate,
		PolicyID:      intent.PolicyID,
		PolicyVersion: intent.PolicyVersion,
		PolicyHash:    intent.PolicyHash,
		Snapshot:      intent.Snapshot,
		PrevHash:      prevHash,
		Hash:          hash,
	}
	if err := putJSON(tx, bucketEconomicEvents, econ.SourceEventID, econ); err != nil {
		return nil, err
	}
	if err := setChainHead(tx, "economic_events", hash); err != nil {
		return nil, err
	}
	return econ, nil
}
