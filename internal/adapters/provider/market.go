package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/okian/appraisal/internal/domain/collection"
	"github.com/okian/appraisal/internal/domain/model"
)

const (
	defaultListingPageSize = 100
	maxListingPages        = 50
)

// MarketClient reads collection listings and stats from the marketplace API.
type MarketClient struct {
	*Client
	pageSize int
}

var (
	_ collection.ListingSource = (*MarketClient)(nil)
	_ collection.FloorSource   = (*MarketClient)(nil)
)

// NewMarketClient creates a client for the marketplace at baseURL.
func NewMarketClient(baseURL string, opts ...Option) *MarketClient {
	return &MarketClient{Client: NewClient("market", baseURL, opts...), pageSize: defaultListingPageSize}
}

type listingsPage struct {
	Listings []model.Listing `json:"listings"`
	HasMore  bool            `json:"has_more"`
}

// FetchListings implements collection.ListingSource. It follows pages until
// the API reports no more, up to a fixed page cap.
func (c *MarketClient) FetchListings(ctx context.Context, collectionID string) ([]model.Listing, error) {
	path := "/collections/" + url.PathEscape(collectionID) + "/listings"
	var out []model.Listing
	for page := 0; page < maxListingPages; page++ {
		q := url.Values{
			"offset": []string{strconv.Itoa(page * c.pageSize)},
			"limit":  []string{strconv.Itoa(c.pageSize)},
		}
		var resp listingsPage
		if err := c.get(ctx, path, q, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Listings...)
		if !resp.HasMore || len(resp.Listings) == 0 {
			break
		}
	}
	return out, nil
}

type statsResponse struct {
	Name       string          `json:"name"`
	FloorPrice decimal.Decimal `json:"floor_price"`
}

// FetchFloor implements collection.FloorSource.
func (c *MarketClient) FetchFloor(ctx context.Context, collectionID string) (collection.Stats, error) {
	var resp statsResponse
	if err := c.get(ctx, "/collections/"+url.PathEscape(collectionID)+"/stats", nil, &resp); err != nil {
		return collection.Stats{}, err
	}
	return collection.Stats{Name: resp.Name, Floor: resp.FloorPrice}, nil
}
