package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attribute is one trait of an asset.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Key identifies the trait in a collection's trait floor map.
func (a Attribute) Key() string {
	return a.TraitType + ":" + a.Value
}

// Asset is one collectible as returned by the metadata provider.
type Asset struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	CollectionID   string      `json:"collection_id"`
	CollectionName string      `json:"collection_name"`
	Attributes     []Attribute `json:"attributes"`
}

// Listing is one active marketplace listing.
type Listing struct {
	AssetID    string          `json:"asset_id"`
	Price      decimal.Decimal `json:"price"`
	Attributes []Attribute     `json:"attributes"`
}

// CollectionFloorData is the cached market picture of a collection.
// A trait missing from TraitFloors has no active listing; it is not worth zero.
type CollectionFloorData struct {
	CollectionID string                     `json:"collection_id"`
	Name         string                     `json:"name"`
	Floor        decimal.Decimal            `json:"floor"`
	TraitFloors  map[string]decimal.Decimal `json:"trait_floors"`
	ResolvedAt   time.Time                  `json:"resolved_at"`
	TTL          time.Duration              `json:"ttl"`
	// Degraded marks an entry built after a provider failure.
	Degraded bool `json:"degraded"`
}

// Expired reports whether the entry is past its TTL at now.
func (c CollectionFloorData) Expired(now time.Time) bool {
	return !now.Before(c.ResolvedAt.Add(c.TTL))
}

// TraitFloor returns the floor for a trait key, if any listing carries it.
func (c CollectionFloorData) TraitFloor(key string) (decimal.Decimal, bool) {
	p, ok := c.TraitFloors[key]
	return p, ok
}

// SaleCandidate is a transaction the classifier considers a possible sale.
// Price is in lamports.
type SaleCandidate struct {
	Signature  string
	Timestamp  time.Time
	Price      int64
	From       string
	To         string
	Tier       ConfidenceTier
	SourceType string
}
