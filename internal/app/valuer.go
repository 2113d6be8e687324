package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/oracle"
)

var lamportsPerUnit = decimal.NewFromInt(1_000_000_000)

// SaleFinder resolves the last sale of an asset.
type SaleFinder interface {
	LastSale(ctx context.Context, assetID string) (model.SaleCandidate, bool, error)
}

// PriceOracle converts native amounts to the reference currency.
type PriceOracle interface {
	Current(ctx context.Context) (oracle.Quote, error)
	Historical(ctx context.Context, day time.Time) (oracle.Quote, error)
}

// rowValuer values the assets of one page against the collection data
// resolved for that page.
type rowValuer struct {
	sales       SaleFinder
	prices      PriceOracle
	collections map[string]model.CollectionFloorData
}

// Value implements worker.Valuer.
func (v *rowValuer) Value(ctx context.Context, asset model.Asset) (model.ValuationRow, error) {
	sale, found, err := v.sales.LastSale(ctx, asset.ID)
	if err != nil {
		return model.ValuationRow{}, err
	}
	current, err := v.prices.Current(ctx)
	if err != nil {
		return model.ValuationRow{}, err
	}
	if !found {
		return buildRow(asset, v.collections[asset.CollectionID], nil, current, nil), nil
	}
	saleQuote, err := v.prices.Historical(ctx, sale.Timestamp)
	if err != nil {
		return model.ValuationRow{}, err
	}
	return buildRow(asset, v.collections[asset.CollectionID], &sale, current, &saleQuote), nil
}

// buildRow assembles a row. sale and saleQuote are nil when no sale was
// found; both P/L figures are then left undefined.
func buildRow(asset model.Asset, col model.CollectionFloorData, sale *model.SaleCandidate, current oracle.Quote, saleQuote *oracle.Quote) model.ValuationRow {
	row := model.ValuationRow{
		AssetID:        asset.ID,
		AssetName:      asset.Name,
		CollectionID:   asset.CollectionID,
		CollectionName: asset.CollectionName,
		FloorNative:    col.Floor,
		FloorReference: col.Floor.Mul(current.Price),
		Estimated:      current.Estimated,

		FloorUnavailable: col.Degraded,
	}
	if row.CollectionName == "" {
		row.CollectionName = col.Name
	}

	premium, trait, ok := traitPremium(asset.Attributes, col)
	row.TraitsWithoutData = traitsWithoutData(asset.Attributes, col)
	if ok {
		row.TraitPremiumNative = premium
		row.TraitPremiumReference = premium.Mul(current.Price)
		row.TraitPremiumTrait = trait
	}

	if sale == nil || saleQuote == nil {
		return row
	}
	native := decimal.NewFromInt(sale.Price).Div(lamportsPerUnit)
	paid := native.Mul(saleQuote.Price)
	row.LastSale = &model.Sale{
		Signature: sale.Signature,
		Date:      sale.Timestamp,
		Native:    native,
		Reference: paid,
		Tier:      sale.Tier.String(),
	}
	row.Estimated = row.Estimated || saleQuote.Estimated

	if !row.FloorUnavailable {
		vsFloor := row.FloorReference.Sub(paid)
		row.PnLVsFloor = &vsFloor
	}
	if ok {
		vsTrait := row.TraitPremiumReference.Sub(paid)
		row.PnLVsTraitPremium = &vsTrait
	}
	return row
}

// traitPremium is the highest trait floor among the asset's traits that
// have an active listing.
func traitPremium(attrs []model.Attribute, col model.CollectionFloorData) (decimal.Decimal, string, bool) {
	var (
		best  decimal.Decimal
		trait string
		found bool
	)
	for _, a := range attrs {
		p, ok := col.TraitFloor(a.Key())
		if !ok {
			continue
		}
		if !found || p.GreaterThan(best) {
			best, trait, found = p, a.Key(), true
		}
	}
	return best, trait, found
}

func traitsWithoutData(attrs []model.Attribute, col model.CollectionFloorData) int {
	n := 0
	for _, a := range attrs {
		if _, ok := col.TraitFloor(a.Key()); !ok {
			n++
		}
	}
	return n
}
