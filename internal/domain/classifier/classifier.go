package classifier

import (
	"sort"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/metrics"
)

// Default thresholds, in lamports.
const (
	defaultMinSalePrice       = 20_000_000    // 0.02 SOL
	defaultSignificantOutflow = 50_000_000    // 0.05 SOL
	defaultLargeOutflow       = 1_000_000_000 // 1 SOL
	defaultUnusualOutflow     = 5_000_000_000 // 5 SOL
)

// Event type carried by a native sale event.
const saleEventType = "NFT_SALE"

var (
	defaultNotSale = []string{
		"NFT_LISTING", "NFT_CANCEL_LISTING",
		"NFT_BID", "NFT_BID_CANCELLED", "NFT_GLOBAL_BID", "NFT_GLOBAL_BID_CANCELLED",
		"NFT_OFFER", "NFT_OFFER_CANCELLED", "CANCEL_OFFER", "UPDATE_OFFER",
		"LIST_ITEM", "DELIST_ITEM", "UPDATE_ITEM",
		"ADD_PLUGIN", "UPDATE_PLUGIN", "REMOVE_PLUGIN", "APPROVE_PLUGIN_AUTHORITY",
		"UPDATE_METADATA", "TOKEN_METADATA_UPDATE",
		"NFT_MINT", "COMPRESSED_NFT_MINT", "TOKEN_MINT", "CREATE", "CREATE_COLLECTION",
	}
	defaultHighConfidence = []string{
		"NFT_SALE", "COMPRESSED_NFT_SALE", "NFT_AUCTION_SETTLED",
		"BUY_ITEM", "EXECUTE_SALE", "TAKE_BID", "BUY_NFT", "SELL_NFT", "INSTANT_SELL",
	}
	defaultTransferTypes = []string{"TRANSFER", "DEPOSIT", "COMPRESSED_NFT_TRANSFER"}
	defaultLowConfidence = []string{
		"COLLECT", "CLAIM", "CLAIM_REWARDS", "HARVEST",
		"STAKE_TOKEN", "UNSTAKE_TOKEN", "STAKE_SOL", "UNSTAKE_SOL", "LOCK", "UNLOCK",
	}
	defaultMarketplaces = []string{
		"MAGIC_EDEN", "TENSOR", "HYPERSPACE", "SOLANART", "OPENSEA",
		"EXCHANGE_ART", "CORAL_CUBE", "FORM_FUNCTION", "HADESWAP", "SNIPER_MARKET",
		"YAWWW", "ELIXIR",
	}
)

// Classifier turns transaction histories into sale candidates. It is pure
// and safe for concurrent use once constructed.
type Classifier struct {
	minSalePrice       int64
	significantOutflow int64
	largeOutflow       int64
	unusualOutflow     int64

	notSale        map[string]struct{}
	highConfidence map[string]struct{}
	transferTypes  map[string]struct{}
	lowConfidence  map[string]struct{}
	marketplaces   map[string]struct{}
}

// New creates a Classifier with default thresholds and type sets.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		minSalePrice:       defaultMinSalePrice,
		significantOutflow: defaultSignificantOutflow,
		largeOutflow:       defaultLargeOutflow,
		unusualOutflow:     defaultUnusualOutflow,
		notSale:            set(defaultNotSale),
		highConfidence:     set(defaultHighConfidence),
		transferTypes:      set(defaultTransferTypes),
		lowConfidence:      set(defaultLowConfidence),
		marketplaces:       set(defaultMarketplaces),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the most likely last genuine sale of assetID, or false
// when no transaction qualifies.
func (c *Classifier) Classify(txs []Transaction, assetID string) (model.SaleCandidate, bool) {
	cands := c.Candidates(txs, assetID)
	if len(cands) == 0 {
		return model.SaleCandidate{}, false
	}
	return cands[0], true
}

// Candidates returns every surviving candidate ordered best first: highest
// tier, then most recent, then signature for a stable order.
func (c *Classifier) Candidates(txs []Transaction, assetID string) []model.SaleCandidate {
	var out []model.SaleCandidate
	for i := range txs {
		tx := &txs[i]
		if _, skip := c.notSale[tx.Type]; skip {
			continue
		}
		for _, cand := range c.extract(tx, assetID) {
			if cand.Price < c.minSalePrice {
				continue
			}
			metrics.RecordSaleCandidate(tierName(cand.Tier))
			out = append(out, cand)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Tier != b.Tier {
			return a.Tier.Beats(b.Tier)
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Signature > b.Signature
	})
	return out
}

// extract runs the three independent strategies on one transaction.
func (c *Classifier) extract(tx *Transaction, assetID string) []model.SaleCandidate {
	var out []model.SaleCandidate
	if cand, ok := c.fromSaleEvent(tx); ok {
		out = append(out, cand)
	}
	if cand, ok := c.fromHighConfidenceType(tx, assetID); ok {
		out = append(out, cand)
	}
	if cand, ok := c.fromBalanceMovement(tx, assetID); ok {
		out = append(out, cand)
	}
	return out
}

// fromSaleEvent reads a decoded marketplace event. A native sale event is
// the strongest evidence; any other priced event only counts when a known
// marketplace emitted it.
func (c *Classifier) fromSaleEvent(tx *Transaction) (model.SaleCandidate, bool) {
	ev := tx.Events.NFT
	if ev == nil || ev.Amount <= 0 {
		return model.SaleCandidate{}, false
	}
	tier := model.TierNone
	switch {
	case ev.Type == saleEventType:
		tier = model.TierExplicitEvent
	case c.isMarketplace(tx.Source) || c.isMarketplace(ev.Source):
		tier = model.TierMarketplaceEvent
	default:
		return model.SaleCandidate{}, false
	}
	return c.candidate(tx, ev.Amount, ev.Seller, ev.Buyer, tier), true
}

// fromHighConfidenceType trusts curated sale type tags. The price comes from
// the event when present, otherwise from the largest net outflow.
func (c *Classifier) fromHighConfidenceType(tx *Transaction, assetID string) (model.SaleCandidate, bool) {
	if _, ok := c.highConfidence[tx.Type]; !ok {
		return model.SaleCandidate{}, false
	}
	if ev := tx.Events.NFT; ev != nil && ev.Amount > 0 {
		return c.candidate(tx, ev.Amount, ev.Seller, ev.Buyer, model.TierHighConfidence), true
	}
	flow, ok := c.netFlow(tx, assetID)
	if !ok || flow.outflow <= 0 {
		return model.SaleCandidate{}, false
	}
	return c.candidate(tx, flow.outflow, flow.seller, flow.buyer, model.TierHighConfidence), true
}

// fromBalanceMovement infers a price from native currency movement.
func (c *Classifier) fromBalanceMovement(tx *Transaction, assetID string) (model.SaleCandidate, bool) {
	flow, ok := c.netFlow(tx, assetID)
	if !ok || flow.outflow < c.significantOutflow {
		return model.SaleCandidate{}, false
	}

	var tier model.ConfidenceTier
	switch {
	case c.has(c.lowConfidence, tx.Type):
		if flow.outflow < c.unusualOutflow {
			return model.SaleCandidate{}, false
		}
		tier = model.TierInferred
	case c.has(c.transferTypes, tx.Type):
		tier = model.TierInferredTransfer
		if flow.outflow >= c.largeOutflow {
			tier = model.TierHighConfidence
		}
	default:
		tier = model.TierInferred
	}
	return c.candidate(tx, flow.outflow, flow.seller, flow.buyer, tier), true
}

type flow struct {
	outflow int64
	buyer   string
	seller  string
}

// netFlow finds the account with the largest net native outflow. Batched
// transactions that move several assets are only read when the target
// asset's own transfer record names the parties.
func (c *Classifier) netFlow(tx *Transaction, assetID string) (flow, bool) {
	transfer, hasTransfer := tx.assetTransfer(assetID)
	if len(tx.movedAssets()) > 1 && !hasTransfer {
		return flow{}, false
	}

	net := make(map[string]int64)
	if len(tx.NativeTransfers) > 0 {
		for _, nt := range tx.NativeTransfers {
			if nt.Amount <= 0 || nt.From == nt.To {
				continue
			}
			net[nt.From] -= nt.Amount
			net[nt.To] += nt.Amount
		}
	} else {
		for _, ad := range tx.AccountData {
			net[ad.Account] += ad.NativeBalanceChange
		}
	}

	var f flow
	var maxIn int64
	// Sorted keys keep buyer/seller stable when balances tie.
	accounts := make([]string, 0, len(net))
	for a := range net {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	for _, a := range accounts {
		v := net[a]
		if -v > f.outflow {
			f.outflow = -v
			f.buyer = a
		}
		if v > maxIn {
			maxIn = v
			f.seller = a
		}
	}
	if f.outflow == 0 {
		return flow{}, false
	}

	if hasTransfer {
		if transfer.To != "" {
			f.buyer = transfer.To
		}
		if transfer.From != "" {
			f.seller = transfer.From
		}
	}
	return f, true
}

func (c *Classifier) candidate(tx *Transaction, price int64, from, to string, tier model.ConfidenceTier) model.SaleCandidate {
	return model.SaleCandidate{
		Signature:  tx.Signature,
		Timestamp:  tx.Time(),
		Price:      price,
		From:       from,
		To:         to,
		Tier:       tier,
		SourceType: tx.Type,
	}
}

func (c *Classifier) isMarketplace(source string) bool {
	return source != "" && c.has(c.marketplaces, source)
}

func (c *Classifier) has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func set(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	addAll(m, values)
	return m
}
