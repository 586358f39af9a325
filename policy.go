package ledger

// Policy registry and selector: the compiled, indexed mapping from a
// business event to the one policy that governs its accounting meaning.
// Grounded on the teacher's ComplianceService rule lookup (compliance.go)
// and its SetupStandardComplianceRules pattern of pre-registered rule
// sets, generalized from ad-hoc Go-code rule checks into data compiled
// once into an index and matched deterministically thereafter.

import (
	"fmt"
	"sort"
)

// DimensionExtractor computes one dimension's value from a payload.
type DimensionExtractor struct {
	Key  DimensionKey
	Expr GuardExpr
}

// GuardRule is one evaluated guard: Reject short-circuits to Rejected,
// Block short-circuits to Blocked, guards are evaluated in order and the
// first matching one wins.
type GuardRule struct {
	Expr       GuardExpr
	OnMatch    GuardOutcome
	ReasonCode string
	Detail     string
}

// GuardOutcome is what happens when a GuardRule's expression evaluates true.
type GuardOutcome string

const (
	GuardReject GuardOutcome = "REJECT"
	GuardBlock  GuardOutcome = "BLOCK"
)

// MeaningSpec describes how to derive an EconomicEvent's economic_type,
// quantity and value from the payload.
type MeaningSpec struct {
	EconomicType string
	QuantityExpr GuardExpr // may be nil if the event carries no quantity
	ValueExpr    GuardExpr // may be nil if the event carries no money value
	Currency     Currency
}

// LineSpecTemplate is one line of a LedgerIntent, still in role terms —
// the side and dimension keys are fixed by policy; the amount is derived
// per event at meaning-build time.
type LineSpecTemplate struct {
	Role        Role
	Side        LineSide
	AmountExpr  GuardExpr // evaluates to a decimal string or number
	Dimensions  []DimensionExtractor
}

// LedgerEffectTemplate describes the lines a policy produces for one ledger.
type LedgerEffectTemplate struct {
	LedgerID string
	Lines    []LineSpecTemplate
}

// Policy is one compiled dispatch rule: trigger + guards + meaning +
// ledger effects + precedence + capability requirements.
type Policy struct {
	ID              string
	Version         uint
	Hash            string
	EventType       string
	Where           GuardExpr // nil means "match all payloads of this event_type"
	EffectiveFrom   string    // inclusive, "" means unbounded
	EffectiveUntil  string    // exclusive, "" means unbounded
	RequiredTags    []string  // must be a subset of enabled capabilities
	Guards          []GuardRule
	Meaning         MeaningSpec
	DimensionExprs  []DimensionExtractor
	LedgerEffects   []LedgerEffectTemplate
	Precedence      PolicyPrecedence
}

// PolicyPrecedence is the ranking tuple used to pick the unique maximum
// among policies that otherwise tie on matching criteria.
type PolicyPrecedence struct {
	OverrideDepth    int
	ScopeSpecificity int
	Priority         int
	StableKey        string
}

// less reports whether p is strictly lower precedence than o.
func (p PolicyPrecedence) less(o PolicyPrecedence) bool {
	if p.OverrideDepth != o.OverrideDepth {
		return p.OverrideDepth < o.OverrideDepth
	}
	if p.ScopeSpecificity != o.ScopeSpecificity {
		return p.ScopeSpecificity < o.ScopeSpecificity
	}
	if p.Priority != o.Priority {
		return p.Priority < o.Priority
	}
	return p.StableKey < o.StableKey
}

// RoleBinding resolves a Role, at a ledger and COA version, to a concrete account.
type RoleBinding struct {
	Role       Role
	LedgerID   string
	COAVersion string
	AccountID  string
	EffectiveFrom string
	EffectiveUntil string
}

// LedgerDef describes one ledger: its rounding account and whether it is a subledger.
type LedgerDef struct {
	ID              string
	Name            string
	IsSubledger     bool
	SubledgerType   string
	RoundingAccount string
}

// SubledgerContract binds a subledger to a GL control account with
// enforcement flags for posting and period close.
type SubledgerContract struct {
	LedgerID        string
	ControlAccount  string
	EnforceOnPost   bool
	EnforceOnClose  bool
	ToleranceMinor  int64
}

// CompiledPolicyPack is the frozen runtime artifact: everything the
// kernel needs to dispatch and account for business events, produced
// once by a compile step and never mutated after.
type CompiledPolicyPack struct {
	ConfigID string
	Version  string
	Checksum string

	Policies            []Policy
	RoleBindings         []RoleBinding
	LedgerDefs           map[string]LedgerDef
	SubledgerContracts   map[string]SubledgerContract
	Capabilities         map[string]bool

	byEventType map[string][]int // index into Policies, by event_type
}

// CompilePolicyPack builds the indexes and proves policy-match
// determinism: for every (event_type, where-clause-shape, effective
// window, capability set) combination at most one policy may survive.
// A pack that can't prove this is rejected outright rather than left to
// surface POLICY_AMBIGUOUS at runtime.
func CompilePolicyPack(configID, version string, policies []Policy, bindings []RoleBinding, ledgers map[string]LedgerDef, contracts map[string]SubledgerContract, capabilities map[string]bool) (*CompiledPolicyPack, error) {
	pack := &CompiledPolicyPack{
		ConfigID:           configID,
		Version:            version,
		Policies:           policies,
		RoleBindings:       bindings,
		LedgerDefs:         ledgers,
		SubledgerContracts: contracts,
		Capabilities:       capabilities,
		byEventType:        make(map[string][]int),
	}
	for i, p := range policies {
		pack.byEventType[p.EventType] = append(pack.byEventType[p.EventType], i)
	}
	if err := checkPrecedenceUniqueness(policies); err != nil {
		return nil, err
	}
	payload, err := canonicalPackDescriptor(pack)
	if err != nil {
		return nil, fmt.Errorf("build pack checksum: %w", err)
	}
	checksum, err := CanonicalPayloadHash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash pack: %w", err)
	}
	pack.Checksum = checksum
	return pack, nil
}

// checkPrecedenceUniqueness rejects a pack containing two policies for
// the same event_type with an identical precedence tuple and overlapping
// effective windows — the one ambiguity a correct selector could hit.
func checkPrecedenceUniqueness(policies []Policy) error {
	byType := make(map[string][]Policy)
	for _, p := range policies {
		byType[p.EventType] = append(byType[p.EventType], p)
	}
	for eventType, group := range byType {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Precedence == b.Precedence && windowsOverlap(a, b) {
					return fmt.Errorf("policy pack ambiguous for event_type %q: policies %s and %s share precedence %+v over overlapping windows", eventType, a.ID, b.ID, a.Precedence)
				}
			}
		}
	}
	return nil
}

func windowsOverlap(a, b Policy) bool {
	aFrom, aUntil := a.EffectiveFrom, a.EffectiveUntil
	bFrom, bUntil := b.EffectiveFrom, b.EffectiveUntil
	if aUntil != "" && bFrom != "" && aUntil <= bFrom {
		return false
	}
	if bUntil != "" && aFrom != "" && bUntil <= aFrom {
		return false
	}
	return true
}

// canonicalPackDescriptor builds a stable, hashable projection of the
// pack's identity-bearing fields (policy IDs/versions/hashes, bindings,
// ledger defs) so Checksum changes iff the pack's meaning changes.
func canonicalPackDescriptor(pack *CompiledPolicyPack) (interface{}, error) {
	type policyDesc struct {
		ID      string
		Version uint
		Hash    string
	}
	descs := make([]policyDesc, 0, len(pack.Policies))
	for _, p := range pack.Policies {
		descs = append(descs, policyDesc{ID: p.ID, Version: p.Version, Hash: p.Hash})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return map[string]interface{}{
		"config_id":     pack.ConfigID,
		"version":       pack.Version,
		"policies":      descs,
		"role_bindings": pack.RoleBindings,
		"ledger_defs":   pack.LedgerDefs,
	}, nil
}

// PolicySelector picks the single policy governing an accepted event.
type PolicySelector struct {
	pack *CompiledPolicyPack
}

// NewPolicySelector binds a selector to a frozen pack.
func NewPolicySelector(pack *CompiledPolicyPack) *PolicySelector {
	return &PolicySelector{pack: pack}
}

// SelectStatus is PolicySelector.Select's outcome discriminator.
type SelectStatus string

const (
	SelectMatched   SelectStatus = "MATCHED"
	SelectNoMatch   SelectStatus = "NO_MATCH"
	SelectAmbiguous SelectStatus = "AMBIGUOUS"
)

// SelectResult is PolicySelector.Select's return value.
type SelectResult struct {
	Status SelectStatus
	Policy *Policy
}

// Select runs the deterministic dispatch algorithm: index lookup by
// event_type, where-clause filter, effective-date filter, capability
// subset filter, then rank by precedence tuple and pick the unique
// maximum. AMBIGUOUS can only occur if the pack failed to reject a
// genuine tie at compile time — it should never happen against a pack
// built by CompilePolicyPack.
func (s *PolicySelector) Select(event *BusinessEvent, enabledCapabilities map[string]bool, asOfDate string) (SelectResult, error) {
	indices, ok := s.pack.byEventType[event.EventType]
	if !ok || len(indices) == 0 {
		return SelectResult{Status: SelectNoMatch}, nil
	}

	var payload map[string]interface{}
	if err := decodeJSONInto(event.Payload, &payload); err != nil {
		return SelectResult{}, fmt.Errorf("decode payload for policy matching: %w", err)
	}

	var candidates []Policy
	for _, idx := range indices {
		p := s.pack.Policies[idx]
		if p.Where != nil {
			matched, err := EvalBool(p.Where, payload)
			if err != nil {
				return SelectResult{}, fmt.Errorf("evaluate where-clause for policy %s: %w", p.ID, err)
			}
			if !matched {
				continue
			}
		}
		if p.EffectiveFrom != "" && asOfDate < p.EffectiveFrom {
			continue
		}
		if p.EffectiveUntil != "" && asOfDate >= p.EffectiveUntil {
			continue
		}
		if !tagsSubset(p.RequiredTags, enabledCapabilities) {
			continue
		}
		candidates = append(candidates, p)
	}

	if len(candidates) == 0 {
		return SelectResult{Status: SelectNoMatch}, nil
	}

	best := candidates[0]
	tie := false
	for _, c := range candidates[1:] {
		if best.Precedence.less(c.Precedence) {
			best = c
			tie = false
		} else if !c.Precedence.less(best.Precedence) {
			// Neither strictly less than the other means equal precedence:
			// a genuine tie, which CompilePolicyPack rejects for
			// overlapping windows, reported here for any pack that
			// slipped one past compilation.
			tie = true
		}
	}
	if tie {
		return SelectResult{Status: SelectAmbiguous}, nil
	}
	selected := best
	return SelectResult{Status: SelectMatched, Policy: &selected}, nil
}

func tagsSubset(required []string, enabled map[string]bool) bool {
	for _, tag := range required {
		if !enabled[tag] {
			return false
		}
	}
	return true
}

// ResolveRole finds the unique active RoleBinding for (role, ledger) at
// coaVersion, as of asOfDate. No binding or more than one active binding
// is the caller's signal to raise L1_ROLE_UNRESOLVED.
func (pack *CompiledPolicyPack) ResolveRole(role Role, ledgerID, coaVersion, asOfDate string) (string, bool) {
	var found string
	count := 0
	for _, b := range pack.RoleBindings {
		if b.Role != role || b.LedgerID != ledgerID || b.COAVersion != coaVersion {
			continue
		}
		if b.EffectiveFrom != "" && asOfDate < b.EffectiveFrom {
			continue
		}
		if b.EffectiveUntil != "" && asOfDate >= b.EffectiveUntil {
			continue
		}
		found = b.AccountID
		count++
	}
	if count != 1 {
		return "", false
	}
	return found, true
}
