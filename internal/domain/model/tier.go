package model

// ConfidenceTier ranks how directly a transaction evidences a genuine sale.
// Tiers are totally ordered; a higher tier always beats a lower one.
type ConfidenceTier uint8

// Confidence tiers, lowest first.
const (
	TierNone             ConfidenceTier = 0
	TierInferred         ConfidenceTier = 2 // any other positive inferred price
	TierInferredTransfer ConfidenceTier = 3 // transfer with significant movement
	TierMarketplaceEvent ConfidenceTier = 4 // marketplace-tagged with event price
	TierHighConfidence   ConfidenceTier = 5 // high-confidence type or large inferred deposit
	TierExplicitEvent    ConfidenceTier = 6 // native sale event
)

// Tiers lists every valid tier, highest first.
var Tiers = []ConfidenceTier{
	TierExplicitEvent,
	TierHighConfidence,
	TierMarketplaceEvent,
	TierInferredTransfer,
	TierInferred,
}

func (t ConfidenceTier) String() string {
	switch t {
	case TierExplicitEvent:
		return "explicit_event"
	case TierHighConfidence:
		return "high_confidence"
	case TierMarketplaceEvent:
		return "marketplace_event"
	case TierInferredTransfer:
		return "inferred_transfer"
	case TierInferred:
		return "inferred"
	default:
		return "none"
	}
}

// Valid reports whether t is one of the known tiers.
func (t ConfidenceTier) Valid() bool {
	for _, v := range Tiers {
		if v == t {
			return true
		}
	}
	return false
}

// Beats reports whether t outranks o.
func (t ConfidenceTier) Beats(o ConfidenceTier) bool { return t > o }
