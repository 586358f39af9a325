package ledger

// Reference snapshot service: captures the version identifiers of
// reference data in effect at posting time, so a POSTED JournalEntry can
// be replayed deterministically against the exact COA, dimension schema,
// currency registry and rounding policy it was originally built with.
// Grounded on the teacher's Storage versioned-lookup style in storage.go,
// generalized into an explicit point-in-time snapshot object instead of
// implicit "current" reads.

// ReferenceSnapshot is the frozen bundle of version identifiers attached
// to every EconomicEvent and JournalEntry.
type ReferenceSnapshot struct {
	COAVersion              string `json:"coa_version"`
	DimensionSchemaVersion  string `json:"dimension_schema_version"`
	CurrencyRegistryVersion string `json:"currency_registry_version"`
	RoundingPolicyVersion   string `json:"rounding_policy_version"`
	ConfigPackVersion       string `json:"config_pack_version"`
	ConfigPackChecksum      string `json:"config_pack_checksum"`
}

// RoundingPolicy governs how a per-currency rounding residual is
// resolved into a single rounding line.
type RoundingPolicy struct {
	Version            string
	ToleranceMinorUnit int64 // recorded only; JournalWriter's balance check tolerates one minor unit per line in the currency
}

// ReferenceSnapshotService captures the current version identifiers of
// every piece of reference data the kernel depends on.
type ReferenceSnapshotService struct {
	coaVersion     string
	dimensionSchema *DimensionSchema
	currencyReg    *CurrencyRegistry
	roundingPolicy RoundingPolicy
	pack           *CompiledPolicyPack
}

// NewReferenceSnapshotService binds the service to the reference data
// that is "current" for the process — in this architecture reference
// data versions change only via a new deployment, so "current" is
// process lifetime, not an as_of_date lookup.
func NewReferenceSnapshotService(coaVersion string, schema *DimensionSchema, currencyReg *CurrencyRegistry, rounding RoundingPolicy, pack *CompiledPolicyPack) *ReferenceSnapshotService {
	return &ReferenceSnapshotService{
		coaVersion:      coaVersion,
		dimensionSchema: schema,
		currencyReg:     currencyReg,
		roundingPolicy:  rounding,
		pack:            pack,
	}
}

// Capture returns the ReferenceSnapshot in effect. asOf is accepted for
// forward compatibility with a versioned reference-data store; the
// built-in service treats every version as effective for the whole
// process lifetime.
func (s *ReferenceSnapshotService) Capture(asOf string) ReferenceSnapshot {
	return ReferenceSnapshot{
		COAVersion:              s.coaVersion,
		DimensionSchemaVersion:  s.dimensionSchema.Version,
		CurrencyRegistryVersion: s.currencyReg.Version,
		RoundingPolicyVersion:   s.roundingPolicy.Version,
		ConfigPackVersion:       s.pack.Version,
		ConfigPackChecksum:      s.pack.Checksum,
	}
}

func (s *ReferenceSnapshotService) DimensionSchema() *DimensionSchema   { return s.dimensionSchema }
func (s *ReferenceSnapshotService) CurrencyRegistry() *CurrencyRegistry { return s.currencyReg }
func (s *ReferenceSnapshotService) RoundingPolicy() RoundingPolicy      { return s.roundingPolicy }
func (s *ReferenceSnapshotService) Pack() *CompiledPolicyPack           { return s.pack }
