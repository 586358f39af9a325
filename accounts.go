package ledger

// Chart-of-accounts storage: the account master records role bindings
// resolve into. Grounded on the teacher's storage.go SaveAccount/
// GetAccount pair, generalized to the kernel's versioned Account shape.

import "go.etcd.io/bbolt"

// AccountBook persists Account rows keyed by account ID.
type AccountBook struct {
	storage *Storage
}

// NewAccountBook binds an AccountBook to storage.
func NewAccountBook(storage *Storage) *AccountBook {
	return &AccountBook{storage: storage}
}

// Save inserts or replaces an account record, routed through
// putAccountTx: a brand-new account or a non-structural edit (Name,
// Code) to an existing one is always allowed, but Type/Currency on an
// account already referenced by a POSTED JournalLine is frozen.
func (b *AccountBook) Save(account Account) error {
	return b.storage.db.Update(func(tx *bbolt.Tx) error {
		return putAccountTx(tx, &account)
	})
}

// Get loads one account by ID.
func (b *AccountBook) Get(accountID string) (*Account, error) {
	var account Account
	err := b.storage.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketAccounts, accountID, &account)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns every account in the book, for building the
// account_id -> AccountType map Selectors.TrialBalance needs.
func (b *AccountBook) List() ([]Account, error) {
	var accounts []Account
	err := b.storage.db.View(func(tx *bbolt.Tx) error {
		return iterate(tx, bucketAccounts, func(_, v []byte) error {
			var a Account
			if err := decodeJSONInto(v, &a); err != nil {
				return err
			}
			accounts = append(accounts, a)
			return nil
		})
	})
	return accounts, err
}

// TypeIndex builds the account_id -> AccountType map Selectors.
// TrialBalance needs from every account in the book.
func (b *AccountBook) TypeIndex() (map[string]AccountType, error) {
	accounts, err := b.List()
	if err != nil {
		return nil, err
	}
	idx := make(map[string]AccountType, len(accounts))
	for _, a := range accounts {
		idx[a.ID] = a.Type
	}
	return idx, nil
}
