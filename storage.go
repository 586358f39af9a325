package ledger

// Storage is the bbolt-backed persistence layer. Every bucket here mirrors
// one entity in the kernel's data model. Grounded on the teacher's
// storage.go: one bucket per entity, byte-slice bucket names declared as
// package vars, JSON-marshaled values (see SPEC_FULL.md for why JSON
// replaces the teacher's protobuf), Save/Get method pairs per entity.
//
// bbolt's single-writer Update transaction is what makes row-level locking
// trivial: a sequence counter read-increment-write, a period status
// transition, a reconciliation match — each happens inside one Update
// call, and bbolt already serializes all writers against each other for
// the lifetime of that call.

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketEvents             = []byte("events")
	bucketAuditEvents        = []byte("audit_events")
	bucketAuditSeq           = []byte("audit_seq")
	bucketAccounts           = []byte("accounts")
	bucketJournalEntries     = []byte("journal_entries")
	bucketJournalByIdemKey   = []byte("journal_entries_by_idempotency_key")
	bucketJournalLines       = []byte("journal_lines")
	bucketReversalIndex      = []byte("reversal_of_index")
	bucketSequences          = []byte("sequences")
	bucketPeriods            = []byte("fiscal_periods")
	bucketOutcomes           = []byte("interpretation_outcomes")
	bucketEconomicEvents     = []byte("economic_events")
	bucketEconomicLinks      = []byte("economic_links")
	bucketLinksByParent      = []byte("economic_links_by_parent")
	bucketSubledgerEntries   = []byte("subledger_entries")
	bucketSubledgerUniqueKey = []byte("subledger_entries_unique_index")
	bucketChainHeads         = []byte("chain_heads")
)

var allBuckets = [][]byte{
	bucketEvents, bucketAuditEvents, bucketAuditSeq, bucketAccounts,
	bucketJournalEntries, bucketJournalByIdemKey, bucketJournalLines,
	bucketReversalIndex, bucketSequences, bucketPeriods, bucketOutcomes,
	bucketEconomicEvents, bucketEconomicLinks, bucketLinksByParent,
	bucketSubledgerEntries, bucketSubledgerUniqueKey, bucketChainHeads,
}

// Storage wraps a bbolt database handle.
type Storage struct {
	db *bbolt.DB
}

// OpenStorage opens (creating if absent) the bbolt database at path and
// provisions every bucket the kernel needs.
func OpenStorage(path string) (*Storage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s := &Storage{db: db}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database file.
func (s *Storage) Close() error { return s.db.Close() }

// putJSON marshals v and stores it at key in bucket, within tx.
func putJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := canonicalize(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// getJSON loads the value at key in bucket into v, within tx. Returns
// ErrNotFound (wrapped) if absent.
func getJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return json.Unmarshal(data, v)
}

// iterate calls fn for every key/value pair in bucket, stopping early if fn
// returns an error.
func iterate(tx *bbolt.Tx, bucket []byte, fn func(key, value []byte) error) error {
	c := tx.Bucket(bucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
