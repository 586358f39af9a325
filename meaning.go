package ledger

// Meaning builder: turns a selected Policy plus a BusinessEvent into an
// AccountingIntent expressed entirely in roles, never account codes.
// Grounded on the teacher's PostingEngine.ValidateTransaction guard-chain
// style (posting_engine.go) and its Entry/Amount shapes, generalized so
// the checks and the line shapes come from compiled policy data instead
// of being hard-coded per transaction type.

import "fmt"

// LineSpec is one line of an AccountingIntent, still role-addressed.
type LineSpec struct {
	Role       Role
	Side       LineSide
	Amount     Money
	Dimensions Dimensions
}

// LedgerIntent is the set of lines destined for one ledger.
type LedgerIntent struct {
	LedgerID string
	Lines    []LineSpec
}

// AccountingIntent is the Meaning Builder's product: what happened,
// economically, expressed as one or more ledger intents plus the
// reference snapshot that governed their construction.
type AccountingIntent struct {
	SourceEventID string
	EconomicType  string
	Quantity      *float64
	Value         *Money
	Dimensions    Dimensions
	EffectiveDate string
	PolicyID      string
	PolicyVersion uint
	PolicyHash    string
	Snapshot      ReferenceSnapshot
	Ledgers       []LedgerIntent
}

// MeaningStatus discriminates MeaningResult.
type MeaningStatus string

const (
	MeaningPosting    MeaningStatus = "POSTING"
	MeaningBlocked    MeaningStatus = "BLOCKED"
	MeaningRejected   MeaningStatus = "REJECTED"
	MeaningNonPosting MeaningStatus = "NON_POSTING"
)

// MeaningResult is MeaningBuilder.Build's return value.
type MeaningResult struct {
	Status     MeaningStatus
	Intent     *AccountingIntent
	ReasonCode string
	Detail     string
}

// MeaningBuilder evaluates guards, extracts dimensions and produces an
// AccountingIntent from a selected policy and the accepted event.
type MeaningBuilder struct {
	dimensionSchema *DimensionSchema
	currencyReg     *CurrencyRegistry
}

// NewMeaningBuilder binds the reference data a build needs to validate
// against (dimension schema and currency registry), normally drawn from
// the same ReferenceSnapshot passed into Build.
func NewMeaningBuilder(schema *DimensionSchema, currencyReg *CurrencyRegistry) *MeaningBuilder {
	return &MeaningBuilder{dimensionSchema: schema, currencyReg: currencyReg}
}

// Build runs the meaning-extraction algorithm: guards in declared order,
// then economic_type/quantity/value resolution, dimension extraction and
// validation, and LineSpec construction in role terms.
func (mb *MeaningBuilder) Build(policy *Policy, event *BusinessEvent, snapshot ReferenceSnapshot) (MeaningResult, error) {
	var payload map[string]interface{}
	if err := decodeJSONInto(event.Payload, &payload); err != nil {
		return MeaningResult{}, fmt.Errorf("decode payload for meaning extraction: %w", err)
	}

	for _, g := range policy.Guards {
		matched, err := EvalBool(g.Expr, payload)
		if err != nil {
			return MeaningResult{}, fmt.Errorf("evaluate guard for policy %s: %w", policy.ID, err)
		}
		if !matched {
			continue
		}
		switch g.OnMatch {
		case GuardReject:
			return MeaningResult{Status: MeaningRejected, ReasonCode: g.ReasonCode, Detail: g.Detail}, nil
		case GuardBlock:
			return MeaningResult{Status: MeaningBlocked, ReasonCode: g.ReasonCode, Detail: g.Detail}, nil
		default:
			return MeaningResult{}, fmt.Errorf("policy %s: unknown guard outcome %q", policy.ID, g.OnMatch)
		}
	}

	var quantity *float64
	if policy.Meaning.QuantityExpr != nil {
		v, err := policy.Meaning.QuantityExpr.Eval(payload)
		if err != nil {
			return MeaningResult{}, fmt.Errorf("evaluate quantity expression: %w", err)
		}
		f, ok := v.(float64)
		if !ok {
			return MeaningResult{}, fmt.Errorf("quantity expression did not evaluate to a number: %v", v)
		}
		quantity = &f
	}

	var value *Money
	if policy.Meaning.ValueExpr != nil {
		amount, err := amountFromExpr(policy.Meaning.ValueExpr, payload, policy.Meaning.Currency, mb.currencyReg)
		if err != nil {
			return MeaningResult{}, fmt.Errorf("evaluate value expression: %w", err)
		}
		value = &amount
	}

	dims, err := extractDimensions(policy.DimensionExprs, payload, mb.dimensionSchema)
	if err != nil {
		return MeaningResult{}, err
	}

	var ledgers []LedgerIntent
	for _, effect := range policy.LedgerEffects {
		var lines []LineSpec
		for _, lt := range effect.Lines {
			amount, err := amountFromExpr(lt.AmountExpr, payload, policy.Meaning.Currency, mb.currencyReg)
			if err != nil {
				return MeaningResult{}, fmt.Errorf("evaluate amount for role %s: %w", lt.Role, err)
			}
			lineDims, err := extractDimensions(lt.Dimensions, payload, mb.dimensionSchema)
			if err != nil {
				return MeaningResult{}, err
			}
			lines = append(lines, LineSpec{
				Role:       lt.Role,
				Side:       lt.Side,
				Amount:     amount,
				Dimensions: lineDims,
			})
		}
		ledgers = append(ledgers, LedgerIntent{LedgerID: effect.LedgerID, Lines: lines})
	}

	intent := &AccountingIntent{
		SourceEventID: event.EventID,
		EconomicType:  policy.Meaning.EconomicType,
		Quantity:      quantity,
		Value:         value,
		Dimensions:    dims,
		EffectiveDate: event.EffectiveDate.Format("2006-01-02"),
		PolicyID:      policy.ID,
		PolicyVersion: policy.Version,
		PolicyHash:    policy.Hash,
		Snapshot:      snapshot,
		Ledgers:       ledgers,
	}
	return MeaningResult{Status: MeaningPosting, Intent: intent}, nil
}

func amountFromExpr(expr GuardExpr, payload map[string]interface{}, currency Currency, reg *CurrencyRegistry) (Money, error) {
	v, err := expr.Eval(payload)
	if err != nil {
		return Money{}, err
	}
	switch val := v.(type) {
	case float64:
		scale := reg.MinorUnits(currency)
		minor := val
		for i := int32(0); i < scale; i++ {
			minor *= 10
		}
		return NewMoney(int64(minor+0.5), currency, reg)
	case string:
		return ParseDecimalMoney(val, currency, reg)
	default:
		return Money{}, fmt.Errorf("amount expression must evaluate to a number or decimal string, got %T", v)
	}
}

func extractDimensions(exprs []DimensionExtractor, payload map[string]interface{}, schema *DimensionSchema) (Dimensions, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	dims := make(Dimensions, 0, len(exprs))
	for _, de := range exprs {
		v, err := de.Expr.Eval(payload)
		if err != nil {
			return nil, fmt.Errorf("evaluate dimension %s: %w", de.Key, err)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("dimension %s did not evaluate to a string: %v", de.Key, v)
		}
		dims = append(dims, Dimension{Key: de.Key, Value: s})
	}
	if schema != nil {
		if err := schema.Validate(dims); err != nil {
			return nil, err
		}
	}
	return dims, nil
}
