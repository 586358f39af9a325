package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyParseDecimalMoneyRoundTrip(t *testing.T) {
	reg := DefaultCurrencyRegistry()

	m, err := ParseDecimalMoney("1500.00", "USD", reg)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), m.Minor)
	assert.Equal(t, "1500.00", m.Decimal(reg).StringFixed(2))
}

func TestMoneyParseDecimalMoneyZeroDecimalCurrency(t *testing.T) {
	reg := DefaultCurrencyRegistry()

	m, err := ParseDecimalMoney("1500", "JPY", reg)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m.Minor)
}

func TestMoneyParseDecimalMoneyRejectsNegative(t *testing.T) {
	_, err := ParseDecimalMoney("-1.00", "USD", nil)
	assert.ErrorIs(t, err, ErrInvalidMoney)
}

func TestMoneyAddRejectsCurrencyMismatch(t *testing.T) {
	usd, _ := NewMoney(100, "USD", nil)
	eur, _ := NewMoney(100, "EUR", nil)
	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestAccountTypeNormalSide(t *testing.T) {
	assert.Equal(t, Debit, Asset.NormalSide())
	assert.Equal(t, Debit, Expense.NormalSide())
	assert.Equal(t, Credit, Liability.NormalSide())
	assert.Equal(t, Credit, Equity.NormalSide())
	assert.Equal(t, Credit, Income.NormalSide())
}

func TestLineSideOpposite(t *testing.T) {
	assert.Equal(t, Credit, Debit.Opposite())
	assert.Equal(t, Debit, Credit.Opposite())
}

func TestDimensionSchemaValidateRejectsUnknownKey(t *testing.T) {
	schema := &DimensionSchema{
		Version: "v1",
		Allowed: map[DimensionKey][]string{"department": {"OPS"}},
	}
	err := schema.Validate(Dimensions{{Key: "project", Value: "alpha"}})
	assert.ErrorIs(t, err, ErrUnknownDimension)
}

func TestDimensionSchemaValidateRejectsDisallowedValue(t *testing.T) {
	schema := &DimensionSchema{
		Version: "v1",
		Allowed: map[DimensionKey][]string{"department": {"OPS"}},
	}
	err := schema.Validate(Dimensions{{Key: "department", Value: "SALES"}})
	assert.ErrorIs(t, err, ErrUnknownDimension)
}

func TestDimensionSchemaValidateAllowsOpenKey(t *testing.T) {
	schema := &DimensionSchema{
		Version: "v1",
		Allowed: map[DimensionKey][]string{"vendor_id": {}},
	}
	err := schema.Validate(Dimensions{{Key: "vendor_id", Value: "anything"}})
	assert.NoError(t, err)
}
