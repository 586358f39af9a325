package ledger

// Immutability enforcement: three independent layers defend the same
// invariant — a POSTED JournalEntry and its lines never change and are
// never deleted.
//
//   - Domain layer: JournalEntry and JournalLine expose no setters; every
//     field is set once, at construction, by the journal writer.
//   - Storage-listener layer: putJournalEntryTx/putJournalLineTx inspect
//     the existing row before every write and reject any attempt to
//     modify a POSTED row through anything but the one sanctioned
//     draft-to-posted transition.
//   - Storage-trigger layer: bbolt has no server-side triggers, so the
//     guard functions below are the mandatory choke point every write
//     path (JournalWriter, WriteReversal, and any future caller) must
//     route through instead of calling putJSON on these buckets
//     directly — the same role a database trigger plays, implemented as
//     a function the kernel is the only one trusted to bypass.
//
// Grounded on the teacher's posted-status guard in
// PostingEngine.PostTransaction (posting_engine.go), which flips status
// once and never revisits it; generalized here into an explicit,
// independently callable check instead of an implicit "we just never
// call this again" convention.

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// putJournalEntryTx is the only sanctioned way to write a JournalEntry
// row. It allows: (1) inserting a brand new entry, (2) updating an
// existing DRAFT entry (including the DRAFT -> POSTED transition). Any
// attempt to write over an existing POSTED entry is rejected.
func putJournalEntryTx(tx *bbolt.Tx, entry *JournalEntry) error {
	var existing JournalEntry
	err := getJSON(tx, bucketJournalEntries, entry.ID, &existing)
	switch {
	case err != nil && isNotFound(err):
		return putJSON(tx, bucketJournalEntries, entry.ID, entry)
	case err != nil:
		return err
	case existing.Status == JournalPosted:
		return fmt.Errorf("%w: journal entry %s is POSTED", ErrImmutable, entry.ID)
	default:
		return putJSON(tx, bucketJournalEntries, entry.ID, entry)
	}
}

// putJournalLineTx is the only sanctioned way to write a JournalLine
// row. A line may be inserted or updated freely while its parent entry
// is DRAFT; once the parent is POSTED, no write to any of its lines is
// permitted.
func putJournalLineTx(tx *bbolt.Tx, line *JournalLine) error {
	var parent JournalEntry
	if err := getJSON(tx, bucketJournalEntries, line.JournalEntryID, &parent); err != nil {
		return err
	}
	if parent.Status == JournalPosted {
		return fmt.Errorf("%w: journal entry %s is POSTED, cannot write line %s", ErrImmutable, line.JournalEntryID, line.ID)
	}
	return putJSON(tx, bucketJournalLines, line.ID, line)
}

// DeleteJournalEntry always fails: POSTED or DRAFT, a journal entry is
// never deleted from this kernel's surface. The function exists so the
// prohibition is an explicit, documented API rather than an absence.
func DeleteJournalEntry(string) error {
	return fmt.Errorf("%w: journal entries cannot be deleted", ErrImmutable)
}

// putAccountTx is the only sanctioned way to write an Account row. A new
// account may always be inserted, and an existing account's non-
// structural fields (Name, Code) may always be updated. But once any
// POSTED JournalLine references an account, its structural fields —
// Type (which fixes the account's normal balance side) and Currency —
// are frozen: changing them out from under a posted line would silently
// flip the sign or currency convention of every past posting against it.
func putAccountTx(tx *bbolt.Tx, account *Account) error {
	var existing Account
	err := getJSON(tx, bucketAccounts, account.ID, &existing)
	switch {
	case err != nil && isNotFound(err):
		return putJSON(tx, bucketAccounts, account.ID, account)
	case err != nil:
		return err
	}
	if existing.Type == account.Type && existing.Currency == account.Currency {
		return putJSON(tx, bucketAccounts, account.ID, account)
	}
	referenced, err := accountReferencedByPostedLineTx(tx, account.ID)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: account %s's type/currency is referenced by a posted journal line", ErrImmutable, account.ID)
	}
	return putJSON(tx, bucketAccounts, account.ID, account)
}

// accountReferencedByPostedLineTx reports whether any JournalLine
// against accountID belongs to a POSTED JournalEntry.
func accountReferencedByPostedLineTx(tx *bbolt.Tx, accountID string) (bool, error) {
	referenced := false
	err := iterate(tx, bucketJournalLines, func(_, v []byte) error {
		if referenced {
			return nil
		}
		var line JournalLine
		if err := decodeJSONInto(v, &line); err != nil {
			return err
		}
		if line.AccountID != accountID {
			return nil
		}
		var parent JournalEntry
		if err := getJSON(tx, bucketJournalEntries, line.JournalEntryID, &parent); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if parent.Status == JournalPosted {
			referenced = true
		}
		return nil
	})
	return referenced, err
}
