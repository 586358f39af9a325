package ledger

// Sequence allocator: strictly monotonic per-stream counters that never
// reuse a number, safe under concurrency because bbolt serializes every
// Update transaction against every other. Grounded on the teacher's
// append-only counter pattern in event_store.go (global event sequence),
// generalized to one counter per named stream (per-ledger journal
// sequences) instead of a single hard-coded one.

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

// SequenceAllocator hands out strictly increasing numbers per stream.
// Gaps are allowed (a rolled-back transaction never reclaims its
// number); reuse is forbidden.
type SequenceAllocator struct {
	storage *Storage
}

// NewSequenceAllocator binds an allocator to storage.
func NewSequenceAllocator(storage *Storage) *SequenceAllocator {
	return &SequenceAllocator{storage: storage}
}

// Next allocates the next number for stream in its own transaction.
func (a *SequenceAllocator) Next(stream string) (uint64, error) {
	var next uint64
	err := a.storage.db.Update(func(tx *bbolt.Tx) error {
		n, err := NextSeqTx(tx, stream)
		if err != nil {
			return err
		}
		next = n
		return nil
	})
	return next, err
}

// NextSeqTx allocates the next number for stream within an existing
// transaction — the row-level-lock-equivalent the coordinator relies on:
// the read-increment-write happens under the same bbolt.Tx that holds
// the database's single writer slot for the whole interpret-and-post
// pipeline, so no other writer can observe or race this counter.
func NextSeqTx(tx *bbolt.Tx, stream string) (uint64, error) {
	b := tx.Bucket(bucketSequences)
	key := []byte(stream)
	raw := b.Get(key)
	var next uint64 = 1
	if raw != nil {
		next = binary.BigEndian.Uint64(raw) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := b.Put(key, buf); err != nil {
		return 0, fmt.Errorf("%w: stream %s: %v", ErrSeqAllocFailed, stream, err)
	}
	return next, nil
}

// Peek returns the last-allocated number for stream without allocating,
// or 0 if the stream has never been allocated.
func (a *SequenceAllocator) Peek(stream string) (uint64, error) {
	var last uint64
	err := a.storage.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSequences).Get([]byte(stream))
		if raw != nil {
			last = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return last, err
}
