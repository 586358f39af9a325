package ledger

// Selectors: the read-only query surface over posted state — trial
// balance, canonical ledger hash, journal queries, subledger aggregates,
// and reversal derivation. Grounded on the teacher's QueryAPI
// (query_api.go) GetAccountBalance/GetTrialBalance shape, generalized
// from a single-ledger balance walk into a canonical-hash-capable,
// multi-ledger read model. Selectors never write; immutability is the
// storage layer's job, not theirs.

import (
	"sort"

	"go.etcd.io/bbolt"
)

// Selectors is the read-only query surface over a Storage.
type Selectors struct {
	storage *Storage
}

// NewSelectors binds a Selectors to storage.
func NewSelectors(storage *Storage) *Selectors {
	return &Selectors{storage: storage}
}

// AccountBalance is one account's posted balance in one currency.
type AccountBalance struct {
	AccountID string
	Currency  Currency
	Minor     int64 // signed: positive means a balance on the account's normal side
}

// TrialBalance computes, for every account referenced by a POSTED line
// with effective_date <= asOfDate, its signed balance per currency.
// accounts maps account_id to its AccountType so the sign convention
// (DEBIT-normal vs CREDIT-normal) can be applied.
func (s *Selectors) TrialBalance(asOfDate string, accounts map[string]AccountType) ([]AccountBalance, error) {
	type key struct {
		account  string
		currency Currency
	}
	totals := make(map[key]int64)

	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		postedEntries, err := postedEntryIDsUpTo(tx, asOfDate)
		if err != nil {
			return err
		}
		return iterate(tx, bucketJournalLines, func(_, v []byte) error {
			var l JournalLine
			if err := decodeJSONInto(v, &l); err != nil {
				return err
			}
			if !postedEntries[l.JournalEntryID] {
				return nil
			}
			k := key{account: l.AccountID, currency: l.Amount.Currency}
			if l.Side == Debit {
				totals[k] += l.Amount.Minor
			} else {
				totals[k] -= l.Amount.Minor
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	var balances []AccountBalance
	for k, debitMinusCredit := range totals {
		signed := debitMinusCredit
		if accType, ok := accounts[k.account]; ok && accType.NormalSide() == Credit {
			signed = -debitMinusCredit
		}
		balances = append(balances, AccountBalance{AccountID: k.account, Currency: k.currency, Minor: signed})
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].AccountID != balances[j].AccountID {
			return balances[i].AccountID < balances[j].AccountID
		}
		return balances[i].Currency < balances[j].Currency
	})
	return balances, nil
}

func postedEntryIDsUpTo(tx *bbolt.Tx, asOfDate string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := iterate(tx, bucketJournalEntries, func(_, v []byte) error {
		var e JournalEntry
		if err := decodeJSONInto(v, &e); err != nil {
			return err
		}
		if e.Status == JournalPosted && e.EffectiveDate <= asOfDate {
			ids[e.ID] = true
		}
		return nil
	})
	return ids, err
}

// CanonicalLedgerHash computes a deterministic hash over every POSTED
// journal entry with ledger_id in ledgerIDs (or all ledgers, if empty)
// and seq in [fromSeq, toSeq], sorted by (ledger_id, seq), using the same
// canonical line serialization the journal writer hashes at posting
// time. Two independently-replayed kernels over the same inputs must
// produce identical values.
func (s *Selectors) CanonicalLedgerHash(ledgerIDs []string, fromSeq, toSeq uint64) (string, error) {
	want := make(map[string]bool, len(ledgerIDs))
	for _, id := range ledgerIDs {
		want[id] = true
	}

	var entries []CanonicalEntryRepr
	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		var all []JournalEntry
		if err := iterate(tx, bucketJournalEntries, func(_, v []byte) error {
			var e JournalEntry
			if err := decodeJSONInto(v, &e); err != nil {
				return err
			}
			if e.Status != JournalPosted {
				return nil
			}
			if len(want) > 0 && !want[e.LedgerID] {
				return nil
			}
			if e.Seq < fromSeq || e.Seq > toSeq {
				return nil
			}
			all = append(all, e)
			return nil
		}); err != nil {
			return err
		}

		sort.Slice(all, func(i, j int) bool {
			if all[i].LedgerID != all[j].LedgerID {
				return all[i].LedgerID < all[j].LedgerID
			}
			return all[i].Seq < all[j].Seq
		})

		for _, e := range all {
			var lines []JournalLine
			if err := iterate(tx, bucketJournalLines, func(_, v []byte) error {
				var l JournalLine
				if err := decodeJSONInto(v, &l); err != nil {
					return err
				}
				if l.JournalEntryID == e.ID {
					lines = append(lines, l)
				}
				return nil
			}); err != nil {
				return err
			}
			sort.Slice(lines, func(i, j int) bool { return lines[i].LineSeq < lines[j].LineSeq })
			entries = append(entries, CanonicalEntryRepr{
				LedgerID:      e.LedgerID,
				Seq:           e.Seq,
				EffectiveDate: e.EffectiveDate,
				Lines:         canonicalLineReprs(lines),
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return CanonicalPayloadHash(entries)
}

// JournalEntryView is a JournalEntry plus its lines and derived
// reversal status, for query responses.
type JournalEntryView struct {
	Entry      JournalEntry
	Lines      []JournalLine
	IsReversed bool
}

// GetJournalEntry loads one entry, its lines, and whether a reversal
// exists for it — IsReversed is derived, never stored, per the journal's
// state machine (DRAFT -> POSTED, no REVERSED status).
func (s *Selectors) GetJournalEntry(entryID string) (*JournalEntryView, error) {
	var view JournalEntryView
	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		if err := getJSON(tx, bucketJournalEntries, entryID, &view.Entry); err != nil {
			return err
		}
		if err := iterate(tx, bucketJournalLines, func(_, v []byte) error {
			var l JournalLine
			if err := decodeJSONInto(v, &l); err != nil {
				return err
			}
			if l.JournalEntryID == entryID {
				view.Lines = append(view.Lines, l)
			}
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(view.Lines, func(i, j int) bool { return view.Lines[i].LineSeq < view.Lines[j].LineSeq })

		var reversalID string
		if err := getJSON(tx, bucketReversalIndex, entryID, &reversalID); err == nil {
			view.IsReversed = true
		} else if !isNotFound(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// AuditTrailFor returns every AuditEvent recorded against (entityType,
// entityID), in seq order, for verifying what happened to one artifact
// end-to-end.
func (s *Selectors) AuditTrailFor(entityType, entityID string) ([]*AuditEvent, error) {
	var events []*AuditEvent
	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		return iterate(tx, bucketAuditEvents, func(_, v []byte) error {
			e, err := decodeAuditEventJSON(v)
			if err != nil {
				return err
			}
			if e.EntityType == entityType && e.EntityID == entityID {
				events = append(events, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// SubledgerBalance returns subledgerType's aggregate balance in currency,
// in the same signed convention SubledgerAggregateTx uses.
func (s *Selectors) SubledgerBalance(subledgerType string, currency Currency) (int64, error) {
	var total int64
	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		t, err := SubledgerAggregateTx(tx, subledgerType, currency)
		total = t
		return err
	})
	return total, err
}
