package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to a BlockPhantom API.
type Config struct {
	APIURL  string // Base URL, e.g. "http://localhost:8000"
	Timeout time.Duration
}

// APIClient is a pure HTTP client for the BlockPhantom API.
type APIClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAPIClient creates a new client for the BlockPhantom API.
func NewAPIClient(cfg Config) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RiskResult is an assessment plus where it came from.
type RiskResult struct {
	Raw    json.RawMessage
	Source string
}

// doRequest makes an HTTP request to the API and returns the response body and headers.
func (c *APIClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, http.Header, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), resp.Header, nil
}

func walletPath(chain, address, leaf string) string {
	return "/wallet/" + url.PathEscape(chain) + "/" + url.PathEscape(address) + "/" + leaf
}

// AssessRisk fetches a wallet's risk assessment.
func (c *APIClient) AssessRisk(ctx context.Context, chain, address string, demo bool) (RiskResult, error) {
	var q url.Values
	if demo {
		q = url.Values{"demo": {strconv.FormatBool(demo)}}
	}
	raw, hdr, err := c.doRequest(ctx, http.MethodGet, walletPath(chain, address, "risk"), q, nil)
	if err != nil {
		return RiskResult{}, err
	}
	return RiskResult{Raw: raw, Source: hdr.Get("X-Risk-Source")}, nil
}

// History returns a wallet's synthetic transaction history.
func (c *APIClient) History(ctx context.Context, chain, address string) (json.RawMessage, error) {
	raw, _, err := c.doRequest(ctx, http.MethodGet, walletPath(chain, address, "history"), nil, nil)
	return raw, err
}

// Transaction looks up a transaction by hash.
func (c *APIClient) Transaction(ctx context.Context, chain, hash string) (json.RawMessage, error) {
	path := "/tx/" + url.PathEscape(chain) + "/" + url.PathEscape(hash)
	raw, _, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	return raw, err
}

// CreatePayment opens a report payment. Zero amount and empty currency use the server defaults.
func (c *APIClient) CreatePayment(ctx context.Context, chain, address, currency string, amount int64) (json.RawMessage, error) {
	body := map[string]any{"chain": chain, "address": address}
	if currency != "" {
		body["currency"] = currency
	}
	if amount > 0 {
		body["amount"] = amount
	}
	raw, _, err := c.doRequest(ctx, http.MethodPost, "/masumi/create-payment", nil, body)
	return raw, err
}

// PaymentStatus fetches a payment by id.
func (c *APIClient) PaymentStatus(ctx context.Context, id string) (json.RawMessage, error) {
	raw, _, err := c.doRequest(ctx, http.MethodGet, "/masumi/payment-status/"+url.PathEscape(id), nil, nil)
	return raw, err
}

// ListAgents queries the agent registry.
func (c *APIClient) ListAgents(ctx context.Context, query url.Values) (json.RawMessage, error) {
	raw, _, err := c.doRequest(ctx, http.MethodGet, "/masumi/agents", query, nil)
	return raw, err
}

// Health returns the service health report. A degraded service answers 503,
// which is returned as an error.
func (c *APIClient) Health(ctx context.Context) (json.RawMessage, error) {
	raw, _, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	return raw, err
}
