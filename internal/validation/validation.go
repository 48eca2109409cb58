// Package validation provides input checks for wallet addresses, transaction
// hashes, and request bodies.
package validation

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 1000

// MaxAddressLength bounds path addresses; Byron addresses can exceed 100 chars.
const MaxAddressLength = 128

var (
	// Path segments: hex, bech32 (with addr_test prefix), and base58 all fit.
	addressParamRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	// Shelley bech32 payment/enterprise addresses
	shelleyRegex = regexp.MustCompile(`^addr(_test)?1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{50,110}$`)
	// Byron base58 addresses (Icarus "Ae2", Daedalus "DdzFF")
	byronRegex = regexp.MustCompile(`^(Ae2|DdzFF)[1-9A-HJ-NP-Za-km-z]{50,120}$`)
	// Ethereum tx hashes are 0x-prefixed, Cardano ones are bare
	ethTxHashRegex     = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	cardanoTxHashRegex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks for a 0x-prefixed 20-byte hex address.
func IsValidEthAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// IsValidCardanoAddress checks for a Shelley (bech32) or Byron (base58) address.
func IsValidCardanoAddress(addr string) bool {
	return shelleyRegex.MatchString(addr) || byronRegex.MatchString(addr)
}

// IsValidWalletAddress dispatches on chain. Unknown chains accept any address
// that passes the path check.
func IsValidWalletAddress(chain, addr string) bool {
	switch strings.ToLower(chain) {
	case "ethereum":
		return IsValidEthAddress(addr)
	case "cardano":
		return IsValidCardanoAddress(addr)
	default:
		return IsValidAddressParam(addr)
	}
}

// IsValidTxHash checks the hash format for a chain.
func IsValidTxHash(chain, hash string) bool {
	switch strings.ToLower(chain) {
	case "ethereum":
		return ethTxHashRegex.MatchString(hash)
	case "cardano":
		return cardanoTxHashRegex.MatchString(hash)
	default:
		return false
	}
}

// IsValidAddressParam checks that a path address is short and alphanumeric.
func IsValidAddressParam(addr string) bool {
	return len(addr) > 0 && len(addr) <= MaxAddressLength && addressParamRegex.MatchString(addr)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeAddress trims an address and lowercases Ethereum hex addresses.
// Cardano addresses are case sensitive and only trimmed.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) == 42 && strings.HasPrefix(strings.ToLower(addr), "0x") {
		return strings.ToLower(addr)
	}
	return addr
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks that value is an address on chain. Empty values pass;
// combine with Required.
func ValidAddress(field, chain, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidWalletAddress(chain, value) {
			return &ValidationError{Field: field, Message: "must be a valid " + strings.ToLower(chain) + " address"}
		}
		return nil
	}
}

// OneOf checks that value is one of allowed.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// PositiveInt checks that an amount in smallest units is above zero.
func PositiveInt(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero, got " + strconv.FormatInt(value, 10)}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AddressParamMiddleware rejects malformed :address path parameters early.
// Chain-specific format checks happen in the handlers.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidAddressParam(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be 1-128 letters, digits, or underscores",
			})
			return
		}
		c.Next()
	}
}
