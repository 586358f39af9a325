package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func buildTestJournalWriter(t *testing.T) (*Storage, *JournalWriter, *PeriodService, *CompiledPolicyPack) {
	t.Helper()
	storage := newTestStorage(t)
	periods := NewPeriodService(storage)
	require.NoError(t, periods.Open(&FiscalPeriod{
		ID: "period-1", PeriodCode: "2026-07", StartDate: "2026-07-01", EndDate: "2026-07-31",
	}))
	pack, err := BuildExamplePack()
	require.NoError(t, err)
	sequences := NewSequenceAllocator(storage)
	audit := NewAuditLog(storage)
	jw := NewJournalWriter(storage, periods, sequences, audit, pack)
	return storage, jw, periods, pack
}

func exampleIntent(t *testing.T) *AccountingIntent {
	t.Helper()
	reg := DefaultCurrencyRegistry()
	amount, err := ParseDecimalMoney("1500.00", "USD", reg)
	require.NoError(t, err)
	return &AccountingIntent{
		SourceEventID: "evt-1",
		EconomicType:  "AP_INVOICE",
		EffectiveDate: "2026-07-15",
		PolicyID:      "pol-ap-invoice-received-v1",
		PolicyVersion: 1,
		Snapshot:      ReferenceSnapshot{COAVersion: ExampleCOAVersion},
		Ledgers: []LedgerIntent{
			{
				LedgerID: LedgerGL,
				Lines: []LineSpec{
					{Role: RoleExpenseGL, Side: Debit, Amount: amount},
					{Role: RoleControlAP, Side: Credit, Amount: amount},
				},
			},
		},
	}
}

func TestJournalWriterWritesBalancedEntry(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	intent := exampleIntent(t)

	var result WriteResult
	err := storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.Write(tx, intent, "actor-1")
		result = r
		return err
	})
	require.NoError(t, err)
	require.Len(t, result.EntryIDs, 1)

	selectors := NewSelectors(storage)
	view, err := selectors.GetJournalEntry(result.EntryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, JournalPosted, view.Entry.Status)
	assert.Len(t, view.Lines, 2)
	assert.False(t, view.IsReversed)
}

func TestJournalWriterIsIdempotentOnRepeatedWrite(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	intent := exampleIntent(t)

	var first, second WriteResult
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.Write(tx, intent, "actor-1")
		first = r
		return err
	}))
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.Write(tx, intent, "actor-1")
		second = r
		return err
	}))

	assert.Equal(t, first.EntryIDs, second.EntryIDs)
}

func TestJournalWriterRejectsUnresolvableRole(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	intent := exampleIntent(t)
	intent.Ledgers[0].Lines[0].Role = "NO_SUCH_ROLE"

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := jw.Write(tx, intent, "actor-1")
		return err
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeRoleUnresolved, code)
}

func TestJournalWriterRejectsUnbalancedIntent(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	reg := DefaultCurrencyRegistry()
	debit, _ := ParseDecimalMoney("1500.00", "USD", reg)
	credit, _ := ParseDecimalMoney("1400.00", "USD", reg)
	intent := exampleIntent(t)
	intent.Ledgers[0].Lines[0].Amount = debit
	intent.Ledgers[0].Lines[1].Amount = credit

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := jw.Write(tx, intent, "actor-1")
		return err
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeUnbalanced, code)
}

func TestJournalWriterWriteReversalFlipsLines(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	intent := exampleIntent(t)

	var original JournalEntry
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.Write(tx, intent, "actor-1")
		if err != nil {
			return err
		}
		return getJSON(tx, bucketJournalEntries, r.EntryIDs[0], &original)
	}))

	var reversal *JournalEntry
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.WriteReversal(tx, &original, "actor-2", "2026-07-16", "returned goods")
		reversal = r
		return err
	}))

	selectors := NewSelectors(storage)
	view, err := selectors.GetJournalEntry(original.ID)
	require.NoError(t, err)
	assert.True(t, view.IsReversed)

	reversalView, err := selectors.GetJournalEntry(reversal.ID)
	require.NoError(t, err)
	require.Len(t, reversalView.Lines, 2)
	assert.Equal(t, view.Lines[0].Side.Opposite(), reversalView.Lines[0].Side)
}

func TestJournalWriterWriteReversalRejectsSecondAttempt(t *testing.T) {
	storage, jw, _, _ := buildTestJournalWriter(t)
	intent := exampleIntent(t)

	var original JournalEntry
	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		r, err := jw.Write(tx, intent, "actor-1")
		if err != nil {
			return err
		}
		return getJSON(tx, bucketJournalEntries, r.EntryIDs[0], &original)
	}))

	require.NoError(t, storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := jw.WriteReversal(tx, &original, "actor-2", "2026-07-16", "returned goods")
		return err
	}))

	err := storage.db.Update(func(tx *bbolt.Tx) error {
		_, err := jw.WriteReversal(tx, &original, "actor-2", "2026-07-16", "returned goods again")
		return err
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeAlreadyReversed, code)
}
