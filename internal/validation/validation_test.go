package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const (
	shelleyAddr = "addr1qx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3n0d3vllmyqwsx5wktcd8cc3sq835lu7drv2xwl2wywfgse35a3x"
	testnetAddr = "addr_test1qz2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer3n0d3vllmyqwsx5wktcd8cc3sq835lu7drv2xwl2wywfgs68faae"
	byronAddr   = "Ae2tdPwUPEZFRbyhz3cpfC2CumGzNkFBN2L42rcUc2yjQpEkxDbkPodpMAi"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},

		// Invalid cases
		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},   // Invalid chars
		{"", false},
		{"0x", false},
	}

	for _, tc := range tests {
		result := IsValidEthAddress(tc.addr)
		if result != tc.valid {
			t.Errorf("IsValidEthAddress(%q) = %v, want %v", tc.addr, result, tc.valid)
		}
	}
}

func TestIsValidCardanoAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{shelleyAddr, true},
		{testnetAddr, true},
		{byronAddr, true},

		{"addr1short", false},
		{"addr1" + strings.Repeat("b", 60), false}, // b is outside the bech32 charset
		{"0x1234567890123456789012345678901234567890", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsValidCardanoAddress(tc.addr); got != tc.valid {
			t.Errorf("IsValidCardanoAddress(%q) = %v, want %v", tc.addr, got, tc.valid)
		}
	}
}

func TestIsValidWalletAddress(t *testing.T) {
	if !IsValidWalletAddress("Ethereum", "0x1234567890123456789012345678901234567890") {
		t.Error("expected ethereum address to be valid")
	}
	if IsValidWalletAddress("ethereum", shelleyAddr) {
		t.Error("cardano address accepted for ethereum")
	}
	if !IsValidWalletAddress("cardano", shelleyAddr) {
		t.Error("expected cardano address to be valid")
	}
	if !IsValidWalletAddress("bogus", "anything_goes1") {
		t.Error("unknown chains should only apply the path check")
	}
}

func TestIsValidTxHash(t *testing.T) {
	hex64 := strings.Repeat("ab", 32)
	tests := []struct {
		chain, hash string
		valid       bool
	}{
		{"ethereum", "0x" + hex64, true},
		{"ethereum", hex64, false},
		{"cardano", hex64, true},
		{"cardano", "0x" + hex64, false},
		{"cardano", "mock_tx_1", false},
		{"solana", hex64, false},
	}
	for _, tc := range tests {
		if got := IsValidTxHash(tc.chain, tc.hash); got != tc.valid {
			t.Errorf("IsValidTxHash(%q, %q) = %v, want %v", tc.chain, tc.hash, got, tc.valid)
		}
	}
}

func TestSanitizeAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x1234567890123456789012345678901234567890", "0x1234567890123456789012345678901234567890"},
		{"0xABCDEF1234567890123456789012345678901234", "0xabcdef1234567890123456789012345678901234"},
		{"  0x1234567890123456789012345678901234567890  ", "0x1234567890123456789012345678901234567890"},
		{" " + byronAddr + " ", byronAddr},
	}

	for _, tc := range tests {
		result := SanitizeAddress(tc.input)
		if result != tc.expected {
			t.Errorf("SanitizeAddress(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("chain", "ethereum"),
		ValidAddress("address", "ethereum", "0x1234567890123456789012345678901234567890"),
		OneOf("currency", "ADA", "ADA", "USD"),
		PositiveInt("amount", 1000000),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	errs = Validate(
		Required("chain", ""),
		ValidAddress("address", "cardano", "invalid"),
		OneOf("currency", "EUR", "ADA", "USD"),
		PositiveInt("amount", 0),
	)
	if len(errs) != 4 {
		t.Errorf("Expected 4 errors, got %d", len(errs))
	}
	if errs.Error() != "chain: is required" {
		t.Errorf("unexpected error string %q", errs.Error())
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "hello", 10)(); err != nil {
		t.Error("Expected no error for string under limit")
	}
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestAddressParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/wallet/:chain/:address/risk", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		path string
		code int
	}{
		{"/wallet/ethereum/0x1234567890123456789012345678901234567890/risk", http.StatusOK},
		{"/wallet/cardano/" + testnetAddr + "/risk", http.StatusOK},
		{"/wallet/bogus/0xmockwallet/risk", http.StatusOK},
		{"/wallet/ethereum/bad%20addr/risk", http.StatusBadRequest},
		{"/wallet/ethereum/" + strings.Repeat("a", 129) + "/risk", http.StatusBadRequest},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Errorf("GET %s = %d, want %d", tc.path, w.Code, tc.code)
		}
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 1000000}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body = %d, want 413", w.Code)
	}
}
