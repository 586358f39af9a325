package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestAccountBookSaveInsertsNewAccount(t *testing.T) {
	storage := newTestStorage(t)
	book := NewAccountBook(storage)

	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Expense, Currency: "USD"}))

	got, err := book.Get("6000-EXP")
	require.NoError(t, err)
	assert.Equal(t, "Expense", got.Name)
}

func TestAccountBookSaveAllowsNonStructuralEditWithNoPostedReferences(t *testing.T) {
	storage := newTestStorage(t)
	book := NewAccountBook(storage)
	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Expense, Currency: "USD"}))

	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Operating Expense", Type: Expense, Currency: "USD"}))

	got, err := book.Get("6000-EXP")
	require.NoError(t, err)
	assert.Equal(t, "Operating Expense", got.Name)
}

func TestAccountBookSaveAllowsStructuralEditWithNoPostedReferences(t *testing.T) {
	storage := newTestStorage(t)
	book := NewAccountBook(storage)
	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Expense, Currency: "USD"}))

	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Asset, Currency: "USD"}))

	got, err := book.Get("6000-EXP")
	require.NoError(t, err)
	assert.Equal(t, Asset, got.Type)
}

func TestAccountBookSaveRejectsStructuralEditOnceReferencedByPostedLine(t *testing.T) {
	storage := newTestStorage(t)
	book := NewAccountBook(storage)
	require.NoError(t, book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Expense, Currency: "USD"}))

	entry := &JournalEntry{ID: "je-1", LedgerID: "GL", Status: JournalDraft}
	line := &JournalLine{ID: "line-1", JournalEntryID: "je-1", AccountID: "6000-EXP"}
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		if err := putJournalEntryTx(tx, entry); err != nil {
			return err
		}
		return putJournalLineTx(tx, line)
	}))
	entry.Status = JournalPosted
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		return putJournalEntryTx(tx, entry)
	}))

	err := book.Save(Account{ID: "6000-EXP", Code: "6000", Name: "Expense", Type: Asset, Currency: "USD"})
	assert.ErrorIs(t, err, ErrImmutable)

	err = book.Save(Account{ID: "6000-EXP", Code: "6005", Name: "Expense Renamed", Type: Expense, Currency: "USD"})
	assert.NoError(t, err)
}
