package ledger

import (
	"os"
	"testing"
	"time"
)

// mustParseDate parses a "2006-01-02" date for test fixtures.
func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// newTestStorage opens a fresh bbolt-backed Storage at a temp file,
// removed when the test completes.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dbFile := t.TempDir() + "/test.db"
	storage, err := OpenStorage(dbFile)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		storage.Close()
		os.Remove(dbFile)
	})
	return storage
}
