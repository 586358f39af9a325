package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestCreateSubledgerEntryTxIsIdempotentOnConflict(t *testing.T) {
	storage := newTestStorage(t)
	entry := SubledgerEntry{
		JournalEntryID: "je-1", SubledgerType: "AP", SourceLineID: "line-1",
		AccountID: "2000-AP", Side: Credit, Amount: Money{Minor: 1000, Currency: "USD"},
	}

	var first, second *SubledgerEntry
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		e, err := CreateSubledgerEntryTx(tx, entry)
		first = e
		return err
	}))
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		e, err := CreateSubledgerEntryTx(tx, entry)
		second = e
		return err
	}))
	assert.Equal(t, first.ID, second.ID)
}

func TestSubledgerAggregateTxSumsBySignedSide(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		if _, err := CreateSubledgerEntryTx(tx, SubledgerEntry{
			JournalEntryID: "je-1", SubledgerType: "AP", SourceLineID: "l1",
			AccountID: "2000-AP", Side: Credit, Amount: Money{Minor: 1500, Currency: "USD"},
		}); err != nil {
			return err
		}
		_, err := CreateSubledgerEntryTx(tx, SubledgerEntry{
			JournalEntryID: "je-2", SubledgerType: "AP", SourceLineID: "l1",
			AccountID: "2000-AP", Side: Debit, Amount: Money{Minor: 500, Currency: "USD"},
		})
		return err
	}))

	var total int64
	require.NoError(t, storage.db.View(func(tx *bbolt.Tx) error {
		var err error
		total, err = SubledgerAggregateTx(tx, "AP", "USD")
		return err
	}))
	assert.Equal(t, int64(-1000), total)
}

func TestCheckSubledgerControlTxFailsOutsideTolerance(t *testing.T) {
	storage := newTestStorage(t)
	contract := SubledgerContract{LedgerID: "GL", ControlAccount: "2000-AP", EnforceOnPost: true, ToleranceMinor: 0}

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		return CheckSubledgerControlTx(tx, contract, "AP", "USD", -1000, -900)
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeSubledgerReconFailed, code)
}

func TestCheckSubledgerControlTxPassesWithinTolerance(t *testing.T) {
	storage := newTestStorage(t)
	contract := SubledgerContract{LedgerID: "GL", ControlAccount: "2000-AP", EnforceOnPost: true, ToleranceMinor: 100}

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		return CheckSubledgerControlTx(tx, contract, "AP", "USD", -1000, -950)
	})
	assert.NoError(t, err)
}
