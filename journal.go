package ledger

// Journal writer — the core of the core: resolves roles to accounts,
// enforces balance per currency, allocates sequences, and creates
// entries and lines atomically across one or more ledgers, including
// subledger control reconciliation. Grounded on the teacher's
// PostingEngine (posting_engine.go) — ValidateTransaction's guard chain,
// PostTransaction's draft-to-posted transition, ReverseTransaction's
// line-flipping reversal — generalized from single-ledger, account-
// addressed transactions into multi-ledger, role-addressed intents with
// idempotent at-most-once posting.

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// JournalEntryStatus is a JournalEntry's lifecycle state. There is no
// REVERSED status: reversal is derived from the existence of a child
// entry whose ReversalOfID points at this one.
type JournalEntryStatus string

const (
	JournalDraft  JournalEntryStatus = "DRAFT"
	JournalPosted JournalEntryStatus = "POSTED"
)

// JournalEntry is one atomic, balanced set of lines posted to one ledger.
type JournalEntry struct {
	ID              string             `json:"id"`
	LedgerID        string             `json:"ledger_id"`
	SourceEventID   string             `json:"source_event_id"`
	EffectiveDate   string             `json:"effective_date"`
	PostedAt        string             `json:"posted_at,omitempty"`
	Status          JournalEntryStatus `json:"status"`
	Seq             uint64             `json:"seq"`
	IdempotencyKey  string             `json:"idempotency_key"`
	ReversalOfID    string             `json:"reversal_of_id,omitempty"`
	Description     string             `json:"description,omitempty"`
	Metadata        map[string]string  `json:"metadata,omitempty"`
	Snapshot        ReferenceSnapshot  `json:"snapshot"`
	PrevHash        string             `json:"prev_hash"`
	Hash            string             `json:"hash"`
}

// JournalLine is one debit or credit line of a JournalEntry.
type JournalLine struct {
	ID             string     `json:"id"`
	JournalEntryID string     `json:"journal_entry_id"`
	LineSeq        int        `json:"line_seq"`
	AccountID      string     `json:"account_id"`
	Side           LineSide   `json:"side"`
	Amount         Money      `json:"amount"`
	Dimensions     Dimensions `json:"dimensions,omitempty"`
	ExchangeRateID string     `json:"exchange_rate_id,omitempty"`
	IsRounding     bool       `json:"is_rounding"`
	Memo           string     `json:"memo,omitempty"`
}

// WriteResult is JournalWriter.Write's return value.
type WriteResult struct {
	EntryIDs []string
}

// JournalWriter is the transactional core that turns an AccountingIntent
// into POSTED JournalEntries.
type JournalWriter struct {
	storage   *Storage
	periods   *PeriodService
	sequences *SequenceAllocator
	audit     *AuditLog
	pack      *CompiledPolicyPack
}

// NewJournalWriter wires a JournalWriter to its collaborators.
func NewJournalWriter(storage *Storage, periods *PeriodService, sequences *SequenceAllocator, audit *AuditLog, pack *CompiledPolicyPack) *JournalWriter {
	return &JournalWriter{storage: storage, periods: periods, sequences: sequences, audit: audit, pack: pack}
}

// Write runs the full posting algorithm inside tx: idempotency check,
// period validation, role resolution, balance check with at most one
// rounding line, subledger control reconciliation, sequence allocation,
// draft insertion, subledger entry creation, and finalization to POSTED.
func (jw *JournalWriter) Write(tx *bbolt.Tx, intent *AccountingIntent, actorID string) (WriteResult, error) {
	var entryIDs []string

	for _, li := range intent.Ledgers {
		ledgerDef, ok := jw.pack.LedgerDefs[li.LedgerID]
		if !ok {
			return WriteResult{}, fmt.Errorf("unknown ledger %q in accounting intent", li.LedgerID)
		}

		idemKey := fmt.Sprintf("%s:%s:%d", intent.SourceEventID, li.LedgerID, intent.PolicyVersion)

		var existingID string
		if err := getJSON(tx, bucketJournalByIdemKey, idemKey, &existingID); err == nil {
			var existing JournalEntry
			if err := getJSON(tx, bucketJournalEntries, existingID, &existing); err != nil {
				return WriteResult{}, err
			}
			if existing.Status == JournalPosted {
				entryIDs = append(entryIDs, existing.ID)
				continue
			}
			return WriteResult{}, NewKernelError(CodeIdempotencyConflict,
				fmt.Sprintf("journal entry %s for idempotency key %s is still DRAFT", existing.ID, idemKey), nil)
		} else if !isNotFound(err) {
			return WriteResult{}, err
		}

		if _, err := jw.periods.ValidateEffectiveDateTx(tx, intent.EffectiveDate, PostingKind{}); err != nil {
			return WriteResult{}, err
		}

		lines, err := jw.resolveAndBalance(li, ledgerDef, intent.Snapshot.COAVersion, intent.EffectiveDate)
		if err != nil {
			return WriteResult{}, err
		}

		if contract, ok := jw.pack.SubledgerContracts[li.LedgerID]; ok && contract.EnforceOnPost {
			if err := jw.checkSubledgerControlForLines(tx, contract, ledgerDef, lines); err != nil {
				return WriteResult{}, err
			}
		}

		seq, err := NextSeqTx(tx, "journal:"+li.LedgerID)
		if err != nil {
			return WriteResult{}, err
		}

		prevHash, err := chainHead(tx, "journal:"+li.LedgerID)
		if err != nil {
			return WriteResult{}, err
		}
		entryID := uuid.New().String()
		hashPayload := CanonicalEntryRepr{
			LedgerID:      li.LedgerID,
			Seq:           seq,
			EffectiveDate: intent.EffectiveDate,
			Lines:         canonicalLineReprs(lines),
		}
		payloadHash, err := CanonicalPayloadHash(hashPayload)
		if err != nil {
			return WriteResult{}, err
		}
		hash := ChainHash(payloadHash, prevHash)

		entry := &JournalEntry{
			ID:             entryID,
			LedgerID:       li.LedgerID,
			SourceEventID:  intent.SourceEventID,
			EffectiveDate:  intent.EffectiveDate,
			Status:         JournalDraft,
			Seq:            seq,
			IdempotencyKey: idemKey,
			Snapshot:       intent.Snapshot,
			PrevHash:       prevHash,
			Hash:           hash,
		}
		if err := putJournalEntryTx(tx, entry); err != nil {
			return WriteResult{}, err
		}
		if err := putJSON(tx, bucketJournalByIdemKey, idemKey, entry.ID); err != nil {
			return WriteResult{}, err
		}
		for _, line := range lines {
			line.JournalEntryID = entry.ID
			if err := putJournalLineTx(tx, &line); err != nil {
				return WriteResult{}, err
			}
		}
		if ledgerDef.IsSubledger {
			for _, line := range lines {
				if _, err := CreateSubledgerEntryTx(tx, SubledgerEntry{
					JournalEntryID: entry.ID,
					SubledgerType:  ledgerDef.SubledgerType,
					SourceLineID:   line.ID,
					AccountID:      line.AccountID,
					Side:           line.Side,
					Amount:         line.Amount,
					Dimensions:     line.Dimensions,
				}); err != nil {
					return WriteResult{}, err
				}
			}
		}

		if err := setChainHead(tx, "journal:"+li.LedgerID, hash); err != nil {
			return WriteResult{}, err
		}

		entry.Status = JournalPosted
		entry.PostedAt = nowUTCString()
		if err := putJournalEntryTx(tx, entry); err != nil {
			return WriteResult{}, err
		}
		if jw.audit != nil {
			if _, err := jw.audit.appendTx(tx, "JournalEntry", entry.ID, "POSTED", actorID, map[string]interface{}{
				"ledger_id": entry.LedgerID,
				"seq":       entry.Seq,
			}); err != nil {
				return WriteResult{}, err
			}
		}
		entryIDs = append(entryIDs, entry.ID)
	}

	return WriteResult{EntryIDs: entryIDs}, nil
}

// resolveAndBalance resolves every LineSpec's role to a concrete account,
// groups by currency, and inserts a rounding line for a currency whose
// residual is within tolerance. An entry that would need more than one
// rounding line is rejected with ROUNDING_INVARIANT_VIOLATION.
func (jw *JournalWriter) resolveAndBalance(li LedgerIntent, ledgerDef LedgerDef, coaVersion, asOfDate string) ([]JournalLine, error) {
	var lines []JournalLine
	for i, spec := range li.Lines {
		accountID, ok := jw.pack.ResolveRole(spec.Role, li.LedgerID, coaVersion, asOfDate)
		if !ok {
			return nil, NewKernelError(CodeRoleUnresolved,
				fmt.Sprintf("no unique active binding for role %s on ledger %s at coa_version %s", spec.Role, li.LedgerID, coaVersion), nil)
		}
		lines = append(lines, JournalLine{
			ID:         uuid.New().String(),
			LineSeq:    i,
			AccountID:  accountID,
			Side:       spec.Side,
			Amount:     spec.Amount,
			Dimensions: spec.Dimensions,
		})
	}

	byCurrency := make(map[Currency][]int)
	for i, l := range lines {
		byCurrency[l.Amount.Currency] = append(byCurrency[l.Amount.Currency], i)
	}

	nextSeq := len(lines)
	for currency, idxs := range byCurrency {
		var debit, credit int64
		for _, i := range idxs {
			if lines[i].Side == Debit {
				debit += lines[i].Amount.Minor
			} else {
				credit += lines[i].Amount.Minor
			}
		}
		residual := debit - credit
		if residual == 0 {
			continue
		}
		abs := residual
		if abs < 0 {
			abs = -abs
		}
		tolerance := int64(len(idxs)) // one smallest-unit per contributing line, per currency
		if abs > tolerance {
			return nil, NewKernelError(CodeUnbalanced,
				fmt.Sprintf("ledger %s currency %s does not balance: debits=%d credits=%d", li.LedgerID, currency, debit, credit), nil)
		}
		side := Credit
		if residual < 0 {
			side = Debit
		}
		lines = append(lines, JournalLine{
			ID:         uuid.New().String(),
			LineSeq:    nextSeq,
			AccountID:  ledgerDef.RoundingAccount,
			Side:       side,
			Amount:     Money{Minor: abs, Currency: currency},
			IsRounding: true,
		})
		nextSeq++
	}

	roundingCount := 0
	for _, l := range lines {
		if l.IsRounding {
			roundingCount++
		}
	}
	if roundingCount > 1 {
		return nil, NewKernelError(CodeRoundingInvariant, "more than one rounding line produced for entry", nil)
	}

	return lines, nil
}

// checkSubledgerControlForLines derives the projected subledger delta
// and the projected control-account balance from lines, then enforces
// the contract.
func (jw *JournalWriter) checkSubledgerControlForLines(tx *bbolt.Tx, contract SubledgerContract, ledgerDef LedgerDef, lines []JournalLine) error {
	byCurrency := make(map[Currency]int64)
	for _, l := range lines {
		if l.AccountID != contract.ControlAccount {
			continue
		}
		if l.Side == Debit {
			byCurrency[l.Amount.Currency] += l.Amount.Minor
		} else {
			byCurrency[l.Amount.Currency] -= l.Amount.Minor
		}
	}
	for currency, delta := range byCurrency {
		controlBefore, err := controlAccountBalanceTx(tx, contract.ControlAccount, currency)
		if err != nil {
			return err
		}
		if err := CheckSubledgerControlTx(tx, contract, ledgerDef.SubledgerType, currency, delta, controlBefore+delta); err != nil {
			return err
		}
	}
	return nil
}

// controlAccountBalanceTx sums every POSTED line against accountID in
// currency, DEBIT positive CREDIT negative.
func controlAccountBalanceTx(tx *bbolt.Tx, accountID string, currency Currency) (int64, error) {
	var total int64
	err := iterate(tx, bucketJournalLines, func(_, v []byte) error {
		var l JournalLine
		if err := decodeJSONInto(v, &l); err != nil {
			return err
		}
		if l.AccountID != accountID || l.Amount.Currency != currency {
			return nil
		}
		if l.Side == Debit {
			total += l.Amount.Minor
		} else {
			total -= l.Amount.Minor
		}
		return nil
	})
	return total, err
}

func canonicalLineReprs(lines []JournalLine) []CanonicalLineRepr {
	reprs := make([]CanonicalLineRepr, 0, len(lines))
	for _, l := range lines {
		reprs = append(reprs, CanonicalLineRepr{
			AccountID:  l.AccountID,
			Side:       l.Side,
			MinorUnits: l.Amount.Minor,
			Currency:   l.Amount.Currency,
			Dimensions: l.Dimensions,
			IsRounding: l.IsRounding,
		})
	}
	sort.Slice(reprs, func(i, j int) bool {
		if reprs[i].AccountID != reprs[j].AccountID {
			return reprs[i].AccountID < reprs[j].AccountID
		}
		return reprs[i].Side < reprs[j].Side
	})
	return reprs
}

// WriteReversal builds and posts the reversal of an already-POSTED
// entry: flip every line's side, preserve account/amount/currency/
// dimensions, and link via ReversalOfID (unique — enforced by
// bucketReversalIndex). A second reversal attempt of the same entry is
// CodeAlreadyReversed, not a silent no-op: unlike duplicate event
// ingestion, "reverse this entry again" is not an idempotent request.
func (jw *JournalWriter) WriteReversal(tx *bbolt.Tx, original *JournalEntry, actorID, effectiveDate, reason string) (*JournalEntry, error) {
	var existingID string
	if err := getJSON(tx, bucketReversalIndex, original.ID, &existingID); err == nil {
		return nil, NewKernelError(CodeAlreadyReversed,
			fmt.Sprintf("journal entry %s was already reversed by %s", original.ID, existingID), nil)
	} else if !isNotFound(err) {
		return nil, err
	}

	if _, err := jw.periods.ValidateEffectiveDateTx(tx, effectiveDate, PostingKind{}); err != nil {
		return nil, err
	}

	var originalLines []JournalLine
	if err := iterate(tx, bucketJournalLines, func(_, v []byte) error {
		var l JournalLine
		if err := decodeJSONInto(v, &l); err != nil {
			return err
		}
		if l.JournalEntryID == original.ID {
			originalLines = append(originalLines, l)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(originalLines, func(i, j int) bool { return originalLines[i].LineSeq < originalLines[j].LineSeq })

	idemKey := fmt.Sprintf("reversal:%s:%s", original.ID, original.LedgerID)
	seq, err := NextSeqTx(tx, "journal:"+original.LedgerID)
	if err != nil {
		return nil, err
	}
	prevHash, err := chainHead(tx, "journal:"+original.LedgerID)
	if err != nil {
		return nil, err
	}

	var reversedLines []JournalLine
	for _, ol := range originalLines {
		reversedLines = append(reversedLines, JournalLine{
			ID:             uuid.New().String(),
			LineSeq:        ol.LineSeq,
			AccountID:      ol.AccountID,
			Side:           ol.Side.Opposite(),
			Amount:         ol.Amount,
			Dimensions:     ol.Dimensions,
			ExchangeRateID: ol.ExchangeRateID,
			IsRounding:     false,
		})
	}

	hashPayload := CanonicalEntryRepr{
		LedgerID:      original.LedgerID,
		Seq:           seq,
		EffectiveDate: effectiveDate,
		Lines:         canonicalLineReprs(reversedLines),
	}
	payloadHash, err := CanonicalPayloadHash(hashPayload)
	if err != nil {
		return nil, err
	}
	hash := ChainHash(payloadHash, prevHash)

	entry := &JournalEntry{
		ID:             uuid.New().String(),
		LedgerID:       original.LedgerID,
		SourceEventID:  original.SourceEventID,
		EffectiveDate:  effectiveDate,
		Status:         JournalDraft,
		Seq:            seq,
		IdempotencyKey: idemKey,
		ReversalOfID:   original.ID,
		Description:    reason,
		Snapshot:       original.Snapshot,
		PrevHash:       prevHash,
		Hash:           hash,
	}
	if err := putJournalEntryTx(tx, entry); err != nil {
		return nil, err
	}
	if err := putJSON(tx, bucketJournalByIdemKey, idemKey, entry.ID); err != nil {
		return nil, err
	}
	if err := putJSON(tx, bucketReversalIndex, original.ID, entry.ID); err != nil {
		return nil, err
	}
	for _, l := range reversedLines {
		l.JournalEntryID = entry.ID
		if err := putJournalLineTx(tx, &l); err != nil {
			return nil, err
		}
	}
	if err := setChainHead(tx, "journal:"+original.LedgerID, hash); err != nil {
		return nil, err
	}

	entry.Status = JournalPosted
	entry.PostedAt = nowUTCString()
	if err := putJournalEntryTx(tx, entry); err != nil {
		return nil, err
	}
	if jw.audit != nil {
		if _, err := jw.audit.appendTx(tx, "JournalEntry", entry.ID, "POSTED_REVERSAL", actorID, map[string]interface{}{
			"reversal_of_id": original.ID,
		}); err != nil {
			return nil, err
		}
	}
	return entry, nil
}
