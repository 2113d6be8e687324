package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/appraisal/internal/domain/oracle"
)

// PriceClient reads the native currency's reference price.
type PriceClient struct {
	*Client
}

var _ oracle.PriceSource = (*PriceClient)(nil)

// NewPriceClient creates a client for the price feed at baseURL.
func NewPriceClient(baseURL string, opts ...Option) *PriceClient {
	return &PriceClient{Client: NewClient("price", baseURL, opts...)}
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
}

// CurrentPrice implements oracle.PriceSource.
func (c *PriceClient) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	var resp priceResponse
	if err := c.get(ctx, "/current", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Price, nil
}

// HistoricalPrice implements oracle.PriceSource for a UTC day.
func (c *PriceClient) HistoricalPrice(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	var resp priceResponse
	q := url.Values{"date": []string{day.UTC().Format("2006-01-02")}}
	if err := c.get(ctx, "/history", q, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Price, nil
}
