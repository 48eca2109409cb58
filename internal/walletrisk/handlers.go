package walletrisk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/blockphantom/internal/chain"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/report"
	"github.com/mbd888/blockphantom/internal/validation"
)

// SourceHeader carries the Source of a served assessment.
const SourceHeader = "X-Risk-Source"

// PDFFilename is the download name of the per-wallet synthetic report.
const PDFFilename = "risk_report.pdf"

// Handler provides HTTP handlers for the risk API
type Handler struct {
	svc *Service
}

// NewHandler creates a new risk handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the wallet, transaction, and report routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	wallet := r.Group("/wallet/:chain/:address")
	wallet.GET("/risk", h.Risk)
	wallet.GET("/history", validation.AddressParamMiddleware(), h.History)
	wallet.GET("/pdf", validation.AddressParamMiddleware(), h.PDF)

	r.GET("/tx/:chain/:hash", h.Transaction)
	r.GET("/report", h.Report)
}

// Risk handles GET /wallet/:chain/:address/risk
func (h *Handler) Risk(c *gin.Context) {
	chainName, address := c.Param("chain"), validation.SanitizeAddress(c.Param("address"))

	demo, ok := demoParam(c)
	if !ok {
		return
	}
	if !demo && !h.checkAddress(c, chainName, address) {
		return
	}

	res, err := h.svc.Assess(c.Request.Context(), chainName, address, demo)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header(SourceHeader, string(res.Source))
	c.JSON(http.StatusOK, res.Assessment)
}

// History handles GET /wallet/:chain/:address/history
func (h *Handler) History(c *gin.Context) {
	if _, ok := demoParam(c); !ok {
		return
	}
	txs := h.svc.History(c.Request.Context(), c.Param("chain"), c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// PDF handles GET /wallet/:chain/:address/pdf
func (h *Handler) PDF(c *gin.Context) {
	doc, err := h.svc.SyntheticReport(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	writePDF(c, doc, PDFFilename)
}

// Transaction handles GET /tx/:chain/:hash
func (h *Handler) Transaction(c *gin.Context) {
	chainName, hash := c.Param("chain"), strings.TrimSpace(c.Param("hash"))

	client, err := h.svc.Client(chainName)
	if err != nil {
		writeError(c, err)
		return
	}
	if client.Mode() == chain.ModeLive && !validation.IsValidTxHash(chainName, hash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": fmt.Sprintf("%q is not a %s transaction hash", hash, strings.ToLower(chainName)),
		})
		return
	}

	tx, err := h.svc.Transaction(c.Request.Context(), chainName, hash)
	if errors.Is(err, chain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "transaction not found",
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", tx)
}

// Report handles GET /report?chain=&address=, the download after payment.
func (h *Handler) Report(c *gin.Context) {
	chainName := c.Query("chain")
	address := validation.SanitizeAddress(c.Query("address"))

	if errs := validation.Validate(
		validation.Required("chain", chainName),
		validation.Required("address", address),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if !h.checkAddress(c, chainName, address) {
		return
	}

	doc, res, err := h.svc.Report(c.Request.Context(), chainName, address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header(SourceHeader, string(res.Source))
	writePDF(c, doc, doc.Filename)
}

// demoParam parses ?demo=. It writes the 400 itself and returns ok=false on
// a malformed value.
func demoParam(c *gin.Context) (demo, ok bool) {
	raw, present := c.GetQuery("demo")
	if !present {
		return false, true
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": fmt.Sprintf("demo must be a boolean, got %q", raw),
	})
	return false, false
}

// checkAddress rejects malformed addresses bound for a live client. Mock
// clients answer for any address and unknown chains fall back to demo data.
func (h *Handler) checkAddress(c *gin.Context, chainName, address string) bool {
	client, err := h.svc.Client(chainName)
	if err != nil || client.Mode() != chain.ModeLive {
		return true
	}
	id := client.Chain()
	if validation.IsValidAddressParam(address) && validation.IsValidWalletAddress(string(id), address) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_address",
		"message": fmt.Sprintf("%q is not a valid %s address", address, id),
	})
	return false
}

func writePDF(c *gin.Context, doc *report.Document, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", doc.Bytes)
}

// writeError maps service errors onto the JSON error shape.
func writeError(c *gin.Context, err error) {
	var fe *chain.FetchError
	switch {
	case errors.Is(err, chain.ErrUnsupportedChain):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unsupported_chain",
			"message": "chain must be ethereum or cardano",
		})
	case errors.As(err, &fe):
		logging.L(c.Request.Context()).Error("upstream request failed",
			logging.Provider(fe.Provider), "op", fe.Op, "status", fe.StatusCode, logging.Err(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": fmt.Sprintf("%s request failed", fe.Provider),
		})
	default:
		logging.L(c.Request.Context()).Error("request failed", logging.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process request",
		})
	}
}
