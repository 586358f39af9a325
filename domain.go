package ledger

// Domain primitives for the accounting kernel: typed money, currency,
// debit/credit sides, artifact references and dimensional tags.
// No business logic lives here — only typed values and their invariants.

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// Currency (ISO-4217)
// ----------------------------------------------------------------------------

// Currency is an ISO-4217 alphabetic code (e.g. "USD", "EGP", "JPY").
type Currency string

// minorUnits holds the number of decimal places a currency's smallest unit
// represents. Currencies not listed default to 2 (the ISO-4217 common case).
var minorUnits = map[Currency]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "TND": 3, "IQD": 3,
}

// knownCurrencies is the built-in ISO-4217 registry. A real deployment
// supplies its own via CurrencyRegistry; this set exists so the kernel is
// useful standalone and so tests don't need an external registry.
var knownCurrencies = map[Currency]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"CAD": true, "AUD": true, "CNY": true, "EGP": true, "AED": true,
	"SAR": true, "INR": true, "BHD": true, "KWD": true, "KRW": true,
}

// CurrencyRegistry is the reference-data view over valid ISO-4217 codes at a
// given version. ReferenceSnapshot.CurrencyRegistryVersion points at one of
// these; the kernel ships a default built from knownCurrencies.
type CurrencyRegistry struct {
	Version string
	Valid   map[Currency]bool
	Minor   map[Currency]int32
}

// DefaultCurrencyRegistry returns the kernel's built-in ISO-4217 view.
func DefaultCurrencyRegistry() *CurrencyRegistry {
	return &CurrencyRegistry{
		Version: "builtin-iso4217-v1",
		Valid:   knownCurrencies,
		Minor:   minorUnits,
	}
}

// Validate reports whether c is a well-formed, known ISO-4217 code.
func (r *CurrencyRegistry) Validate(c Currency) error {
	if len(c) != 3 {
		return fmt.Errorf("%w: %q is not a 3-letter ISO-4217 code", ErrInvalidCurrency, c)
	}
	if strings.ToUpper(string(c)) != string(c) {
		return fmt.Errorf("%w: %q must be upper-case", ErrInvalidCurrency, c)
	}
	if r.Valid != nil && !r.Valid[c] {
		return fmt.Errorf("%w: %q is not in currency registry %s", ErrInvalidCurrency, c, r.Version)
	}
	return nil
}

// MinorUnits returns the number of decimal digits in c's smallest unit.
func (r *CurrencyRegistry) MinorUnits(c Currency) int32 {
	if r.Minor != nil {
		if m, ok := r.Minor[c]; ok {
			return m
		}
	}
	if m, ok := minorUnits[c]; ok {
		return m
	}
	return 2
}

// ----------------------------------------------------------------------------
// Money
// ----------------------------------------------------------------------------

// Money is an exact monetary amount: an integer count of a currency's
// smallest unit (cents, piasters, fils...). Values are never negative at
// rest — sign/direction is carried separately by LineSide.
type Money struct {
	Minor    int64    `json:"minor"`
	Currency Currency `json:"currency"`
}

// NewMoney validates currency and non-negativity.
func NewMoney(minor int64, currency Currency, reg *CurrencyRegistry) (Money, error) {
	if reg == nil {
		reg = DefaultCurrencyRegistry()
	}
	if err := reg.Validate(currency); err != nil {
		return Money{}, err
	}
	if minor < 0 {
		return Money{}, fmt.Errorf("%w: negative amount %d", ErrInvalidMoney, minor)
	}
	return Money{Minor: minor, Currency: currency}, nil
}

// ParseDecimalMoney parses a decimal string amount (as event payloads carry,
// e.g. "15000.00") into Money at the currency's registered precision.
func ParseDecimalMoney(amount string, currency Currency, reg *CurrencyRegistry) (Money, error) {
	if reg == nil {
		reg = DefaultCurrencyRegistry()
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q: %v", ErrInvalidMoney, amount, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative amount %q", ErrInvalidMoney, amount)
	}
	scale := reg.MinorUnits(currency)
	scaled := d.Shift(scale).Round(0)
	return NewMoney(scaled.IntPart(), currency, reg)
}

// Decimal renders Money back to a decimal.Decimal at its currency's
// registered precision, e.g. Money{Minor: 150000, Currency: "USD"} -> 1500.00.
func (m Money) Decimal(reg *CurrencyRegistry) decimal.Decimal {
	if reg == nil {
		reg = DefaultCurrencyRegistry()
	}
	scale := reg.MinorUnits(m.Currency)
	return decimal.NewFromInt(m.Minor).Shift(-scale)
}

// String renders "1500.00 USD" for logs and descriptions.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal(DefaultCurrencyRegistry()).StringFixed(2), m.Currency)
}

// Add returns m+o. Both must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Minor: m.Minor + o.Minor, Currency: m.Currency}, nil
}

// Sub returns m-o. Both must share a currency. Result may be negative —
// callers performing a residual/rounding check use this directly.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Minor: m.Minor - o.Minor, Currency: m.Currency}, nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Minor == 0 }

// ----------------------------------------------------------------------------
// LineSide
// ----------------------------------------------------------------------------

// LineSide is the debit/credit direction of a JournalLine.
type LineSide string

const (
	Debit  LineSide = "DEBIT"
	Credit LineSide = "CREDIT"
)

// Opposite flips the side, used when building reversal lines.
func (s LineSide) Opposite() LineSide {
	if s == Debit {
		return Credit
	}
	return Debit
}

// ----------------------------------------------------------------------------
// Dimensions
// ----------------------------------------------------------------------------

// DimensionKey names an analytical tag dimension (department, project, ...).
type DimensionKey string

// Dimension is a key/value analytical tag attached to a line or intent.
type Dimension struct {
	Key   DimensionKey `json:"key"`
	Value string       `json:"value"`
}

// Dimensions is an ordered list of tags. Canonicalization keeps list
// order (it sorts object keys only), so the same tags in a different
// order hash differently.
type Dimensions []Dimension

// Get returns the value for key and whether it was present.
func (d Dimensions) Get(key DimensionKey) (string, bool) {
	for _, dim := range d {
		if dim.Key == key {
			return dim.Value, true
		}
	}
	return "", false
}

// DimensionSchema is the active set of dimension keys and, per key, the
// closed set of allowed values (nil/empty means any string is allowed).
type DimensionSchema struct {
	Version string
	Allowed map[DimensionKey][]string
}

// Validate checks that every dimension in d is an active key with an
// allowed value under the schema.
func (s *DimensionSchema) Validate(d Dimensions) error {
	for _, dim := range d {
		values, known := s.Allowed[dim.Key]
		if !known {
			return fmt.Errorf("%w: dimension %q is not active in schema %s", ErrUnknownDimension, dim.Key, s.Version)
		}
		if len(values) == 0 {
			continue
		}
		found := false
		for _, v := range values {
			if v == dim.Value {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: value %q not allowed for dimension %q", ErrUnknownDimension, dim.Value, dim.Key)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// ArtifactRef / TraceId
// ----------------------------------------------------------------------------

// ArtifactRef is a typed pointer to any artifact the kernel or its callers
// produce — a business event, journal entry, economic event, reversal, PO,
// receipt. EconomicLink edges are directed ArtifactRef -> ArtifactRef.
type ArtifactRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r ArtifactRef) String() string { return fmt.Sprintf("%s:%s", r.Type, r.ID) }

// TraceId correlates everything produced while interpreting one
// BusinessEvent: the event itself, its EconomicEvent, its JournalEntries,
// its InterpretationOutcome and the AuditEvents they emit.
type TraceId string

// ----------------------------------------------------------------------------
// Chart of Accounts
// ----------------------------------------------------------------------------

// AccountType classifies an Account for normal-balance-side computation.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Income    AccountType = "INCOME"
	Expense   AccountType = "EXPENSE"
)

// NormalSide returns the side that increases an account of this type.
func (t AccountType) NormalSide() LineSide {
	switch t {
	case Asset, Expense:
		return Debit
	default:
		return Credit
	}
}

// Account is a node in the Chart of Accounts, versioned by COAVersion.
type Account struct {
	ID         string      `json:"id"`
	COAVersion string      `json:"coa_version"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	Currency   Currency    `json:"currency,omitempty"`
}

// Role is a symbolic placeholder naming an accounting intent — e.g.
// "CONTROL_AP", "EXPENSE_PPV" — resolved to a concrete Account via an
// effective-dated RoleBinding at posting time. Roles never appear in a
// JournalLine; only resolved AccountIDs do.
type Role string
