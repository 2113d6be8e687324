package provider

import (
	"context"
	"net/url"

	"github.com/okian/appraisal/internal/domain/classifier"
	"github.com/okian/appraisal/internal/domain/model"
)

// AssetClient reads wallet inventories, asset metadata and transaction
// histories from the asset indexer.
type AssetClient struct {
	*Client
}

var _ classifier.HistorySource = (*AssetClient)(nil)

// NewAssetClient creates a client for the asset indexer at baseURL.
func NewAssetClient(baseURL string, opts ...Option) *AssetClient {
	return &AssetClient{Client: NewClient("assets", baseURL, opts...)}
}

type assetsResponse struct {
	Assets []model.Asset `json:"assets"`
}

// FetchAssetsByOwner returns every asset held by owner.
func (c *AssetClient) FetchAssetsByOwner(ctx context.Context, owner string) ([]model.Asset, error) {
	var resp assetsResponse
	if err := c.get(ctx, "/owners/"+url.PathEscape(owner)+"/assets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

// FetchMetadataBatch returns metadata for ids in one call. Unknown ids are
// simply absent from the result.
func (c *AssetClient) FetchMetadataBatch(ctx context.Context, ids []string) ([]model.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp assetsResponse
	if err := c.post(ctx, "/assets/batch", map[string][]string{"ids": ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

// FetchTransactionHistory implements classifier.HistorySource.
func (c *AssetClient) FetchTransactionHistory(ctx context.Context, assetID, typeFilter string) ([]classifier.Transaction, error) {
	var q url.Values
	if typeFilter != "" {
		q = url.Values{"type": []string{typeFilter}}
	}
	var txs []classifier.Transaction
	if err := c.get(ctx, "/assets/"+url.PathEscape(assetID)+"/transactions", q, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
