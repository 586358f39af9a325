package ledger

// Subledger entries and control-account reconciliation. Grounded on the
// teacher's ReconciliationService (reconciliation.go) match/confirm
// workflow, generalized from bank-statement matching into the posting-
// time control check a subledger contract demands: the projected
// subledger aggregate must track the projected GL control-account
// balance within tolerance before a posting to a controlled ledger is
// allowed to commit.

import (
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// SubledgerEntry is one subledger-side record of a journal line, used to
// compute the subledger's aggregate balance independently of the GL.
type SubledgerEntry struct {
	ID              string   `json:"id"`
	JournalEntryID  string   `json:"journal_entry_id"`
	SubledgerType   string   `json:"subledger_type"`
	SourceLineID    string   `json:"source_line_id"`
	AccountID       string   `json:"account_id"`
	Side            LineSide `json:"side"`
	Amount          Money    `json:"amount"`
	Dimensions      Dimensions `json:"dimensions,omitempty"`
}

// subledgerUniqueKey builds the unique constraint key
// (journal_entry_id, subledger_type, source_line_id).
func subledgerUniqueKey(journalEntryID, subledgerType, sourceLineID string) string {
	return journalEntryID + "|" + subledgerType + "|" + sourceLineID
}

// CreateSubledgerEntryTx inserts a SubledgerEntry idempotently: a
// conflicting unique key returns the existing row rather than erroring,
// matching the "on conflict, read existing" contract for subledger
// entry creation within a journal write.
func CreateSubledgerEntryTx(tx *bbolt.Tx, entry SubledgerEntry) (*SubledgerEntry, error) {
	key := subledgerUniqueKey(entry.JournalEntryID, entry.SubledgerType, entry.SourceLineID)
	var existingID string
	if err := getJSON(tx, bucketSubledgerUniqueKey, key, &existingID); err == nil {
		var existing SubledgerEntry
		if err := getJSON(tx, bucketSubledgerEntries, existingID, &existing); err != nil {
			return nil, err
		}
		return &existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := putJSON(tx, bucketSubledgerEntries, entry.ID, &entry); err != nil {
		return nil, err
	}
	if err := putJSON(tx, bucketSubledgerUniqueKey, key, entry.ID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SubledgerAggregateTx sums every SubledgerEntry of subledgerType in
// currency into a signed minor-unit total, DEBIT positive and CREDIT
// negative, matching the control account's normal-side convention for
// an asset-like subledger (e.g. AR). Callers invert the sign when the
// control account's normal side is CREDIT (e.g. AP).
func SubledgerAggregateTx(tx *bbolt.Tx, subledgerType string, currency Currency) (int64, error) {
	var total int64
	err := iterate(tx, bucketSubledgerEntries, func(_, v []byte) error {
		var e SubledgerEntry
		if err := decodeJSONInto(v, &e); err != nil {
			return err
		}
		if e.SubledgerType != subledgerType || e.Amount.Currency != currency {
			return nil
		}
		if e.Side == Debit {
			total += e.Amount.Minor
		} else {
			total -= e.Amount.Minor
		}
		return nil
	})
	return total, err
}

// CheckSubledgerControlTx enforces a SubledgerContract's enforce_on_post
// rule: compute the projected subledger aggregate (before + delta) and
// compare it against the projected GL control-account balance within
// tolerance. delta is signed the same way as SubledgerAggregateTx
// (DEBIT positive, CREDIT negative, both in the control account's
// normal-side convention).
func CheckSubledgerControlTx(tx *bbolt.Tx, contract SubledgerContract, subledgerType string, currency Currency, delta int64, controlBalanceAfter int64) error {
	before, err := SubledgerAggregateTx(tx, subledgerType, currency)
	if err != nil {
		return fmt.Errorf("compute subledger aggregate: %w", err)
	}
	projected := before + delta
	diff := projected - controlBalanceAfter
	if diff < 0 {
		diff = -diff
	}
	if diff > contract.ToleranceMinor {
		return NewKernelError(CodeSubledgerReconFailed, fmt.Sprintf(
			"subledger %s projected %d does not match control account %s projected %d (tolerance %d)",
			subledgerType, projected, contract.ControlAccount, controlBalanceAfter, contract.ToleranceMinor), nil)
	}
	return nil
}
