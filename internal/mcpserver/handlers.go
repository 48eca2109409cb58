package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *APIClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *APIClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAssessWalletRisk returns a wallet's risk assessment.
func (h *Handlers) HandleAssessWalletRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := strings.ToLower(req.GetString("chain", ""))
	address := strings.TrimSpace(req.GetString("address", ""))
	if chain == "" || address == "" {
		return mcp.NewToolResultError("chain and address are required"), nil
	}
	demo := req.GetBool("demo", false)

	res, err := h.client.AssessRisk(ctx, chain, address, demo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to assess wallet: %v", err)), nil
	}

	text, err := formatAssessment(chain, address, res)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleWalletHistory lists sample transactions for a wallet.
func (h *Handlers) HandleWalletHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := strings.ToLower(req.GetString("chain", ""))
	address := strings.TrimSpace(req.GetString("address", ""))
	if chain == "" || address == "" {
		return mcp.NewToolResultError("chain and address are required"), nil
	}

	raw, err := h.client.History(ctx, chain, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetTransaction looks up a transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := strings.ToLower(req.GetString("chain", ""))
	hash := strings.TrimSpace(req.GetString("hash", ""))
	if chain == "" || hash == "" {
		return mcp.NewToolResultError("chain and hash are required"), nil
	}

	raw, err := h.client.Transaction(ctx, chain, hash)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleCreateReportPayment opens a payment for a wallet report.
func (h *Handlers) HandleCreateReportPayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := strings.ToLower(req.GetString("chain", ""))
	address := strings.TrimSpace(req.GetString("address", ""))
	if chain == "" || address == "" {
		return mcp.NewToolResultError("chain and address are required"), nil
	}
	currency := req.GetString("currency", "")
	amount := int64(req.GetInt("amount", 0))
	if amount < 0 {
		return mcp.NewToolResultError("amount must be positive"), nil
	}

	raw, err := h.client.CreatePayment(ctx, chain, address, currency, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Payment failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Payment created\n")
	if id := extractPaymentID(raw); id != "" {
		fmt.Fprintf(&sb, "Payment ID: %s\n", id)
	}
	q := url.Values{"chain": {chain}, "address": {address}}
	fmt.Fprintf(&sb, "Report: /report?%s\n", q.Encode())
	fmt.Fprintf(&sb, "\nResponse:\n%s", formatJSON(raw))

	return mcp.NewToolResultText(sb.String()), nil
}

// HandlePaymentStatus checks a payment.
func (h *Handlers) HandlePaymentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("payment_id", "")
	if id == "" {
		return mcp.NewToolResultError("payment_id is required"), nil
	}

	raw, err := h.client.PaymentStatus(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get payment status: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleListAgents lists registered agents.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := url.Values{}
	if name := req.GetString("name", ""); name != "" {
		q.Set("name", name)
	}
	if limit := req.GetInt("limit", 0); limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	raw, err := h.client.ListAgents(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
	}

	text, err := formatAgentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agents: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleServiceHealth reports provider health.
func (h *Handlers) HandleServiceHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.Health(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Service unhealthy: %v", err)), nil
	}

	text, err := formatHealth(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse health: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

type assessment struct {
	Score       int     `json:"score"`
	Probability float64 `json:"probability"`
	Level       string  `json:"level"`
	Details     struct {
		Avg   float64 `json:"avg"`
		Std   float64 `json:"std"`
		Count int     `json:"count"`
	} `json:"details"`
	Demo bool `json:"demo"`
}

func formatAssessment(chain, address string, res RiskResult) (string, error) {
	var a assessment
	if err := json.Unmarshal(res.Raw, &a); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Wallet: %s (%s)\n", address, chain)
	fmt.Fprintf(&sb, "Risk: %s (score %d, probability %.2f)\n", strings.ToUpper(a.Level), a.Score, a.Probability)
	fmt.Fprintf(&sb, "Transfers: %d | Avg: %g | Std: %g\n", a.Details.Count, a.Details.Avg, a.Details.Std)
	if a.Demo {
		sb.WriteString("Data: synthetic (demo)")
	} else {
		sb.WriteString("Data: live")
	}
	if res.Source != "" {
		fmt.Fprintf(&sb, " [%s]", res.Source)
	}
	sb.WriteString("\n")
	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		Transactions []struct {
			Hash   string  `json:"hash"`
			Amount float64 `json:"amount"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Transactions) == 0 {
		return "No transactions.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d transaction(s):\n", len(resp.Transactions))
	for _, tx := range resp.Transactions {
		fmt.Fprintf(&sb, "  %s  %g\n", tx.Hash, tx.Amount)
	}
	return sb.String(), nil
}

func formatHealth(raw json.RawMessage) (string, error) {
	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Checks  []struct {
			Name    string `json:"name"`
			Healthy bool   `json:"healthy"`
			Mode    string `json:"mode"`
			Detail  string `json:"detail"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s (version %s)\n", resp.Status, resp.Version)
	for _, c := range resp.Checks {
		state := "ok"
		if !c.Healthy {
			state = "down: " + c.Detail
		}
		fmt.Fprintf(&sb, "  %s [%s] %s\n", c.Name, c.Mode, state)
	}
	return sb.String(), nil
}

func extractPaymentID(raw json.RawMessage) string {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ""
	}
	// Masumi wraps the payment under "data"
	if data, ok := resp["data"].(map[string]any); ok {
		if id := getString(data, "id", "blockchainIdentifier"); id != "" {
			return id
		}
	}
	return getString(resp, "id", "payment_id", "blockchainIdentifier")
}

func formatAgentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Agents []map[string]any `json:"agents"`
	}
	// Try as {"agents": [...]}, then {"data": {"Assets": [...]}}, then a bare array
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Agents == nil {
		var wrapped struct {
			Data struct {
				Assets []map[string]any `json:"Assets"`
			} `json:"data"`
		}
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Data.Assets != nil {
			resp.Agents = wrapped.Data.Assets
		} else if err := json.Unmarshal(raw, &resp.Agents); err != nil {
			return "", fmt.Errorf("unexpected agents response format")
		}
	}

	if len(resp.Agents) == 0 {
		return "No agents found.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d agent(s):\n\n", len(resp.Agents)))
	for i, a := range resp.Agents {
		name := getString(a, "name")
		id := getString(a, "agentIdentifier", "id")
		desc := getString(a, "description")
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, name, id))
		if desc != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", desc))
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
