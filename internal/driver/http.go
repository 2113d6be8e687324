package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/appraisal/internal/domain/types"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service returned %d %s: %s", e.Status, e.Code, e.Msg)
}

// HTTPClient talks to the report API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// CreateReport posts a new report.
func (c *HTTPClient) CreateReport(ctx context.Context, owner string, ids []string) (types.ReportSummary, error) {
	body := struct {
		Owner    string   `json:"owner"`
		AssetIDs []string `json:"asset_ids,omitempty"`
	}{Owner: owner, AssetIDs: ids}
	var out types.ReportSummary
	_, err := c.do(ctx, http.MethodPost, "/reports", body, &out)
	return out, err
}

// GetReport reads a report summary.
func (c *HTTPClient) GetReport(ctx context.Context, id string) (types.ReportSummary, error) {
	var out types.ReportSummary
	_, err := c.do(ctx, http.MethodGet, "/reports/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Advance runs one invocation against report id.
func (c *HTTPClient) Advance(ctx context.Context, id string) (types.Progress, error) {
	var out types.Progress
	_, err := c.do(ctx, http.MethodPost, "/reports/"+url.PathEscape(id)+"/advance", nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return resp.StatusCode, apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
