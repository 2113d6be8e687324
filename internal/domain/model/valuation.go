package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the resolved last sale of an asset.
type Sale struct {
	Signature string          `json:"signature"`
	Date      time.Time       `json:"date"`
	Native    decimal.Decimal `json:"native"`
	Reference decimal.Decimal `json:"reference"`
	Tier      string          `json:"tier"`
}

// ValuationRow is one asset's line in a report. Rows are written once.
type ValuationRow struct {
	AssetID        string `json:"asset_id"`
	AssetName      string `json:"asset_name"`
	CollectionID   string `json:"collection_id"`
	CollectionName string `json:"collection_name"`

	FloorNative    decimal.Decimal `json:"floor_native"`
	FloorReference decimal.Decimal `json:"floor_reference"`

	// FloorUnavailable is set when no floor data could be fetched for the
	// collection; the zero floor is then not a real price.
	FloorUnavailable bool `json:"floor_unavailable"`

	TraitPremiumNative    decimal.Decimal `json:"trait_premium_native"`
	TraitPremiumReference decimal.Decimal `json:"trait_premium_reference"`
	TraitPremiumTrait     string          `json:"trait_premium_trait,omitempty"`
	TraitsWithoutData     int             `json:"traits_without_data"`

	// LastSale is nil when no sale was found.
	LastSale *Sale `json:"last_sale,omitempty"`

	// Profit/loss in reference currency; nil without a sale. PnLVsFloor is
	// also nil when the floor is unavailable.
	PnLVsFloor        *decimal.Decimal `json:"pnl_vs_floor,omitempty"`
	PnLVsTraitPremium *decimal.Decimal `json:"pnl_vs_trait_premium,omitempty"`

	// Estimated is set when any reference price came from the estimate table.
	Estimated bool `json:"estimated"`
	// Error is set for an asset that could not be valued.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the row records a valuation failure.
func (r ValuationRow) Failed() bool { return r.Error != "" }
