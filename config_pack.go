package ledger

// Example configuration pack: a small, illustrative CompiledPolicyPack
// covering accounts-payable invoice receipt and cash disbursement against
// it. Grounded on the teacher's SetupStandardComplianceRules /
// SetupDefaultAccounts pattern (compliance.go, engine.go) of shipping a
// ready-to-run default configuration alongside the engine, adapted from
// fixed Go-code rules into data assembled through CompilePolicyPack.
//
// This is demonstration wiring, not a prescribed chart of accounts — a
// real deployment supplies its own pack built the same way.

const (
	RoleControlAP    Role = "CONTROL_AP"
	RoleExpenseGL    Role = "EXPENSE_GENERAL"
	RoleCash         Role = "CASH_OPERATING"
	RoleRoundingGain Role = "ROUNDING_GAIN_LOSS"

	DimDepartment DimensionKey = "department"
	DimVendor     DimensionKey = "vendor_id"

	LedgerGL = "GL"
)

// ExampleCOAVersion is the chart-of-accounts version the example pack's
// role bindings resolve against.
const ExampleCOAVersion = "coa-2026.1"

// BuildExampleAccounts returns the Account rows the example role bindings
// point at, keyed by account ID, for seeding a demo Storage.
func BuildExampleAccounts() []Account {
	return []Account{
		{ID: "2000-AP", COAVersion: ExampleCOAVersion, Code: "2000", Name: "Accounts Payable", Type: Liability},
		{ID: "6000-EXP", COAVersion: ExampleCOAVersion, Code: "6000", Name: "General Expense", Type: Expense},
		{ID: "1000-CASH", COAVersion: ExampleCOAVersion, Code: "1000", Name: "Operating Cash", Type: Asset},
		{ID: "7900-ROUND", COAVersion: ExampleCOAVersion, Code: "7900", Name: "Rounding Gain/Loss", Type: Expense},
	}
}

// BuildExamplePack assembles a CompiledPolicyPack for two event types:
// ap.invoice.received (debits expense, credits the AP control account)
// and ap.payment.disbursed (debits AP, credits cash). Both post to a
// single GL ledger; the pack defines no subledger contracts.
func BuildExamplePack() (*CompiledPolicyPack, error) {
	bindings := []RoleBinding{
		{Role: RoleControlAP, LedgerID: LedgerGL, COAVersion: ExampleCOAVersion, AccountID: "2000-AP"},
		{Role: RoleExpenseGL, LedgerID: LedgerGL, COAVersion: ExampleCOAVersion, AccountID: "6000-EXP"},
		{Role: RoleCash, LedgerID: LedgerGL, COAVersion: ExampleCOAVersion, AccountID: "1000-CASH"},
		{Role: RoleRoundingGain, LedgerID: LedgerGL, COAVersion: ExampleCOAVersion, AccountID: "7900-ROUND"},
	}

	ledgers := map[string]LedgerDef{
		LedgerGL: {ID: LedgerGL, Name: "General Ledger", RoundingAccount: "7900-ROUND"},
	}

	contracts := map[string]SubledgerContract{}

	invoicePolicy := Policy{
		ID:        "pol-ap-invoice-received-v1",
		Version:   1,
		Hash:      "pol-ap-invoice-received-v1",
		EventType: "ap.invoice.received",
		Guards: []GuardRule{
			{
				Expr:       Compare{Op: OpLE, Left: FieldAccess{Path: "payload.amount"}, Right: Literal{Value: float64(0)}},
				OnMatch:    GuardReject,
				ReasonCode: CodeSchemaInvalid,
				Detail:     "invoice amount must be positive",
			},
		},
		Meaning: MeaningSpec{
			EconomicType: "AP_INVOICE",
			ValueExpr:    FieldAccess{Path: "payload.amount"},
			Currency:     "USD",
		},
		DimensionExprs: []DimensionExtractor{
			{Key: DimVendor, Expr: FieldAccess{Path: "payload.vendor_id"}},
		},
		LedgerEffects: []LedgerEffectTemplate{
			{
				LedgerID: LedgerGL,
				Lines: []LineSpecTemplate{
					{
						Role:       RoleExpenseGL,
						Side:       Debit,
						AmountExpr: FieldAccess{Path: "payload.amount"},
						Dimensions: []DimensionExtractor{
							{Key: DimDepartment, Expr: FieldAccess{Path: "payload.department"}},
						},
					},
					{
						Role:       RoleControlAP,
						Side:       Credit,
						AmountExpr: FieldAccess{Path: "payload.amount"},
					},
				},
			},
		},
		Precedence: PolicyPrecedence{OverrideDepth: 0, ScopeSpecificity: 0, Priority: 0, StableKey: "pol-ap-invoice-received-v1"},
	}

	paymentPolicy := Policy{
		ID:        "pol-ap-payment-disbursed-v1",
		Version:   1,
		Hash:      "pol-ap-payment-disbursed-v1",
		EventType: "ap.payment.disbursed",
		Meaning: MeaningSpec{
			EconomicType: "AP_PAYMENT",
			ValueExpr:    FieldAccess{Path: "payload.amount"},
			Currency:     "USD",
		},
		DimensionExprs: []DimensionExtractor{
			{Key: DimVendor, Expr: FieldAccess{Path: "payload.vendor_id"}},
		},
		LedgerEffects: []LedgerEffectTemplate{
			{
				LedgerID: LedgerGL,
				Lines: []LineSpecTemplate{
					{Role: RoleControlAP, Side: Debit, AmountExpr: FieldAccess{Path: "payload.amount"}},
					{Role: RoleCash, Side: Credit, AmountExpr: FieldAccess{Path: "payload.amount"}},
				},
			},
		},
		Precedence: PolicyPrecedence{OverrideDepth: 0, ScopeSpecificity: 0, Priority: 0, StableKey: "pol-ap-payment-disbursed-v1"},
	}

	return CompilePolicyPack(
		"ap-demo-pack",
		"2026.1",
		[]Policy{invoicePolicy, paymentPolicy},
		bindings,
		ledgers,
		contracts,
		map[string]bool{},
	)
}

// BuildExampleDimensionSchema returns the active dimension schema for the
// example pack: department is a closed list, vendor_id accepts any value.
func BuildExampleDimensionSchema() *DimensionSchema {
	return &DimensionSchema{
		Version: "dim-2026.1",
		Allowed: map[DimensionKey][]string{
			DimDepartment: {"OPS", "SALES", "ENG", "FINANCE"},
			DimVendor:     {},
		},
	}
}

// BuildExampleSchemaRegistry registers the minimal structural validators
// for the example pack's two event types.
func BuildExampleSchemaRegistry() *SchemaRegistry {
	reg := NewSchemaRegistry()
	reg.Register("ap.invoice.received", 1, RequireFields("amount", "vendor_id", "department"))
	reg.Register("ap.payment.disbursed", 1, RequireFields("amount", "vendor_id"))
	return reg
}
