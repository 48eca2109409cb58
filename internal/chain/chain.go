// Package chain wraps the external chain-indexing APIs behind one Client
// interface.
//
// Each supported chain has a live implementation (Alchemy JSON-RPC for
// Ethereum, Blockfrost REST for Cardano) and a mock implementation serving
// fixed fixtures. Which one is used is decided once, at construction, from
// the presence of an API credential.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ID identifies a supported chain.
type ID string

const (
	Ethereum ID = "ethereum"
	Cardano  ID = "cardano"
)

// Client modes reported by Mode().
const (
	ModeLive = "live"
	ModeMock = "mock"
)

// ParseID maps a chain identifier from a request onto a supported chain.
func ParseID(s string) (ID, bool) {
	switch ID(strings.ToLower(strings.TrimSpace(s))) {
	case Ethereum:
		return Ethereum, true
	case Cardano:
		return Cardano, true
	default:
		return "", false
	}
}

// Sentinel errors
var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// Client is the per-chain contract.
type Client interface {
	// Chain returns the chain this client serves.
	Chain() ID
	// Mode returns ModeLive or ModeMock.
	Mode() string
	// ListTransfers returns up to maxCount transfers touching address.
	ListTransfers(ctx context.Context, address string, maxCount int) ([]Transfer, error)
	// GetTransaction fetches one transaction by hash.
	GetTransaction(ctx context.Context, hash string) (Transaction, error)
	// Ping probes the upstream.
	Ping(ctx context.Context) error
}

// Direction of a transfer relative to the queried address.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer is one on-chain movement of value. Value is an integer string in
// the asset's base unit (wei, lovelace, token base units) and may be empty
// when the provider does not report it. Raw keeps the provider's record.
type Transfer struct {
	Hash      string          `json:"hash"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Value     string          `json:"value,omitempty"`
	Unit      string          `json:"unit"`
	Decimals  int32           `json:"decimals"`
	Asset     string          `json:"asset,omitempty"`
	Block     uint64          `json:"block"`
	Timestamp int64           `json:"timestamp"`
	Direction Direction       `json:"direction,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Amount converts Value into whole units of Asset (ETH, ADA, ...).
// ok is false when the transfer carries no parseable value.
func (t Transfer) Amount() (amount decimal.Decimal, ok bool) {
	if t.Value == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(t.Value)
	if err != nil {
		return decimal.Zero, false
	}
	return v.Shift(-t.Decimals), true
}

// String renders the transfer as one report line.
func (t Transfer) String() string {
	var b strings.Builder
	b.WriteString(t.Hash)
	if t.Direction != "" {
		fmt.Fprintf(&b, " [%s]", t.Direction)
	}
	if t.From != "" || t.To != "" {
		fmt.Fprintf(&b, " %s -> %s", t.From, t.To)
	}
	if amt, ok := t.Amount(); ok {
		fmt.Fprintf(&b, " %s %s", amt.String(), t.Asset)
	}
	if t.Block > 0 {
		fmt.Fprintf(&b, " block %d", t.Block)
	}
	return b.String()
}

// Transaction is the provider's transaction object, passed through untouched.
type Transaction = json.RawMessage

// Units describes the base unit of a chain's native asset.
type Units struct {
	Asset    string
	Unit     string
	Decimals int32
}

// NativeUnits returns the native asset units of a chain.
func NativeUnits(id ID) Units {
	switch id {
	case Ethereum:
		return Units{Asset: "ETH", Unit: "wei", Decimals: 18}
	case Cardano:
		return Units{Asset: "ADA", Unit: "lovelace", Decimals: 6}
	default:
		return Units{}
	}
}

// FetchError is returned for every failed upstream call. StatusCode is zero
// for transport failures (DNS, timeout, connection refused).
type FetchError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: upstream returned %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// clampCount keeps a requested page size within a provider's limits.
func clampCount(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
