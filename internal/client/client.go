// Package client is a Go client for the prioritizer HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/prioritizer/internal/predictapi"
	"github.com/linnemanlabs/prioritizer/internal/priority"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrBody     = 512
)

// Fallback is what Suggest returns when the service cannot be reached.
var Fallback = priority.Prediction{Label: priority.TierMedium, RawLabel: priority.LabelNormal, Score: 0}

// Client calls a prioritizer service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a client for the service at baseURL. A nil httpClient gets an
// instrumented default with a 30s timeout.
func New(baseURL string, httpClient *http.Client, logger log.Logger) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("client: base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Predict asks the service for a priority tier.
func (c *Client) Predict(ctx context.Context, description string) (*priority.Prediction, error) {
	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out priority.Prediction
	resp, err := c.do(req, &out)
	if err != nil {
		return nil, err
	}
	out.ID = resp.Header.Get(predictapi.PredictionIDHeader)
	return &out, nil
}

// Suggest is Predict with a safe default: any failure is logged and the
// Medium/"normal"/0 fallback is returned instead.
func (c *Client) Suggest(ctx context.Context, description string) priority.Prediction {
	p, err := c.Predict(ctx, description)
	if err != nil {
		c.logger.Error(ctx, err, "priority service call failed, using fallback")
		return Fallback
	}
	return *p
}

// Health fetches the service health status.
func (c *Client) Health(ctx context.Context) (*priority.HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var out priority.HealthStatus
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, fmt.Errorf("priority service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
