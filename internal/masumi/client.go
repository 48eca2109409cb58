// Package masumi is a client for the Masumi agent registry and payment
// service, plus the HTTP handlers the frontend uses to pay for reports.
package masumi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/traces"
)

const provider = "masumi"

// Per-call timeouts.
const (
	writeTimeout = 15 * time.Second
	readTimeout  = 10 * time.Second
)

// Config holds the Masumi endpoints and credential.
type Config struct {
	RegistryURL string
	PaymentURL  string
	APIKey      string // sent as the "token" header when set
}

// Client talks to the Masumi registry and payment APIs.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient uses a default one; the
// per-call timeouts apply either way.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.RegistryURL = strings.TrimRight(cfg.RegistryURL, "/")
	cfg.PaymentURL = strings.TrimRight(cfg.PaymentURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

// APIError is a non-2xx response from Masumi.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("masumi API error (%d): %s", e.StatusCode, e.Message)
}

// apiErrorBody covers the error shapes Masumi answers with.
type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// PaymentRequest is the body of POST /payments.
type PaymentRequest struct {
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Metadata    map[string]any `json:"metadata"`
	CallbackURL *string        `json:"callback_url"`
}

// DecisionEvent is one risk decision posted to the agent's log.
type DecisionEvent struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	Score     int    `json:"score"`
	Level     string `json:"level"`
	Demo      bool   `json:"demo"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// RegisterAgent registers a service in the registry and returns the entry.
func (c *Client) RegisterAgent(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, "register_agent", http.MethodPost, c.cfg.RegistryURL+"/agents", nil, payload, writeTimeout)
}

// ListAgents queries the registry.
func (c *Client) ListAgents(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.doRequest(ctx, "list_agents", http.MethodGet, c.cfg.RegistryURL+"/agents", query, nil, readTimeout)
}

// CreatePaymentRequest asks the payment service for a payment of amount
// smallest units (lovelace for ADA). A "callback_url" metadata entry is
// lifted into the request.
func (c *Client) CreatePaymentRequest(ctx context.Context, amount int64, currency string, metadata map[string]any) (json.RawMessage, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	req := PaymentRequest{Amount: amount, Currency: currency, Metadata: metadata}
	if cb, ok := metadata["callback_url"].(string); ok && cb != "" {
		req.CallbackURL = &cb
	}
	return c.doRequest(ctx, "create_payment", http.MethodPost, c.cfg.PaymentURL+"/payments", nil, req, writeTimeout)
}

// GetPaymentStatus fetches a payment by id.
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (json.RawMessage, error) {
	return c.doRequest(ctx, "payment_status", http.MethodGet, c.cfg.PaymentURL+"/payments/"+url.PathEscape(paymentID), nil, nil, readTimeout)
}

// LogDecision posts a decision event to an agent's log.
func (c *Client) LogDecision(ctx context.Context, agentID string, event DecisionEvent) (json.RawMessage, error) {
	path := c.cfg.RegistryURL + "/agents/" + url.PathEscape(agentID) + "/decisions"
	return c.doRequest(ctx, "log_decision", http.MethodPost, path, nil, event, readTimeout)
}

// doRequest sends one request and returns the body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, op, method, rawURL string, query url.Values, body any, timeout time.Duration) (_ json.RawMessage, err error) {
	ctx, span := traces.StartSpan(ctx, "masumi."+op, traces.Provider(provider))
	defer func() { traces.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("token", c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(provider, op, "transport_error", start)
		return nil, fmt.Errorf("masumi %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstream(provider, op, "transport_error", start)
		return nil, fmt.Errorf("masumi %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveUpstream(provider, op, "http_error", start)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var eb apiErrorBody
		if json.Unmarshal(respBody, &eb) == nil {
			switch {
			case eb.Message != "":
				apiErr.Message = eb.Message
			case eb.Detail != "":
				apiErr.Message = eb.Detail
			case eb.Error != "":
				apiErr.Message = eb.Error
			}
		}
		return nil, apiErr
	}

	metrics.ObserveUpstream(provider, op, "ok", start)
	if len(bytes.TrimSpace(respBody)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(respBody), nil
}
