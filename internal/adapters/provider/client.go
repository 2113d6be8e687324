package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	maxErrorBody      = 512
)

// Client is a JSON-over-HTTP client for one provider. Transient failures
// are retried with exponential backoff.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries int
	newBackoff func() backoff.BackOff
	logger     logger.Logger
}

// NewClient creates a client for the provider called name at baseURL.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		newBackoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger.Get().Named("provider-" + name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name used in metrics and errors.
func (c *Client) Name() string { return c.name }

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, errors.Join(ErrPermanent, err))
		}
	}

	op := func() error {
		err := c.attempt(ctx, method, target, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordProviderRetry(c.name)
		c.logger.Debug(ctx, "retrying provider call",
			logger.String("path", path),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackoff(), uint64(c.maxRetries)), ctx)
	return backoff.RetryNotify(op, b, notify)
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.RecordProviderCall(c.name, outcome, float64(time.Since(start).Milliseconds()))
	}()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		outcome = "invalid"
		return fmt.Errorf("%s: build request: %w", c.name, errors.Join(ErrPermanent, err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		outcome = "network"
		return fmt.Errorf("%s: %w", c.name, errors.Join(ErrTransient, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = fmt.Sprintf("status_%d", resp.StatusCode)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: c.name, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = "decode"
		return fmt.Errorf("%s: decode response: %w", c.name, errors.Join(ErrPermanent, err))
	}
	return nil
}
