package masumi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/blockphantom/internal/chain"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/security"
	"github.com/mbd888/blockphantom/internal/validation"
)

// Default payment for one report: 1 ADA.
const (
	DefaultCurrency = "ADA"
	DefaultAmount   = 1_000_000
)

// Service is the slice of the Masumi client the handlers use.
type Service interface {
	RegisterAgent(ctx context.Context, payload map[string]any) (json.RawMessage, error)
	ListAgents(ctx context.Context, query url.Values) (json.RawMessage, error)
	CreatePaymentRequest(ctx context.Context, amount int64, currency string, metadata map[string]any) (json.RawMessage, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (json.RawMessage, error)
}

// Handler serves the payment flow the frontend drives before a report download.
type Handler struct {
	svc      Service
	resolver security.Resolver
}

// NewHandler creates a handler. A nil resolver uses the system resolver for
// callback URL checks.
func NewHandler(svc Service, resolver security.Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

// RegisterRoutes sets up the payment and registry routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/create-payment", h.CreatePayment)
	r.GET("/payment-status/:id", h.PaymentStatus)
	r.GET("/agents", h.ListAgents)
	r.POST("/agents", h.RegisterAgent)
}

// CreatePaymentRequest is the payload for POST /masumi/create-payment
type CreatePaymentRequest struct {
	Chain       string `json:"chain"`
	Address     string `json:"address"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// CreatePayment handles POST /masumi/create-payment
func (h *Handler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if req.Amount == 0 {
		req.Amount = DefaultAmount
	}
	req.Address = validation.SanitizeAddress(req.Address)

	if errs := validation.Validate(
		validation.Required("chain", req.Chain),
		validation.Required("address", req.Address),
		validation.MaxLength("address", req.Address, validation.MaxAddressLength),
		validation.OneOf("currency", req.Currency, "ADA", "USD"),
		validation.PositiveInt("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	id, ok := chain.ParseID(req.Chain)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported_chain",
			"message": "chain must be ethereum or cardano",
		})
		return
	}

	metadata := map[string]any{
		"service": "blockphantom",
		"chain":   string(id),
		"address": req.Address,
		"report":  "/report?" + url.Values{"chain": {string(id)}, "address": {req.Address}}.Encode(),
	}
	if req.CallbackURL != "" {
		if err := security.ValidateCallbackURL(ctx, req.CallbackURL, h.resolver); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_callback_url",
				"message": err.Error(),
			})
			return
		}
		metadata["callback_url"] = req.CallbackURL
	}

	payment, err := h.svc.CreatePaymentRequest(ctx, req.Amount, req.Currency, metadata)
	if err != nil {
		logger.Error("payment request failed", logging.Chain(string(id)), logging.Address(req.Address), logging.Err(err))
		writeUpstreamError(c, err)
		return
	}

	logger.Info("payment requested",
		logging.Chain(string(id)),
		logging.Address(req.Address),
		"amount", req.Amount,
		"currency", req.Currency,
	)
	c.Data(http.StatusCreated, "application/json", payment)
}

// PaymentStatus handles GET /masumi/payment-status/:id
func (h *Handler) PaymentStatus(c *gin.Context) {
	id := c.Param("id")
	if len(id) > validation.MaxStringLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "payment id too long",
		})
		return
	}

	status, err := h.svc.GetPaymentStatus(c.Request.Context(), id)
	if err != nil {
		logging.L(c.Request.Context()).Warn("payment status lookup failed", "payment_id", id, logging.Err(err))
		writeUpstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", status)
}

// ListAgents handles GET /masumi/agents. Query parameters pass through.
func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.svc.ListAgents(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		writeUpstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", agents)
}

// RegisterAgent handles POST /masumi/agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	ctx := c.Request.Context()

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	entry, err := h.svc.RegisterAgent(ctx, payload)
	if err != nil {
		logging.L(ctx).Error("agent registration failed", logging.Err(err))
		writeUpstreamError(c, err)
		return
	}
	logging.L(ctx).Info("agent registered", "agent_identifier", payload["agent_identifier"])
	c.Data(http.StatusCreated, "application/json", entry)
}

// writeUpstreamError maps Masumi failures: a 404 stays a 404, anything else
// is a bad gateway.
func writeUpstreamError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": apiErr.Message,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{
		"error":   "upstream_error",
		"message": err.Error(),
	})
}
