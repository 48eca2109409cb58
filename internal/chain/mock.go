package chain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbd888/blockphantom/internal/metrics"
)

// MockWallet is the placeholder counterparty address used in the fixtures.
const MockWallet = "0xmockwallet"

// MockClient serves fixed fixtures when no credential is configured. The
// fixtures are the same for every address and page size.
type MockClient struct {
	chain     ID
	provider  string
	transfers []Transfer
}

// NewMockClient returns the fixture client for a chain.
func NewMockClient(id ID) *MockClient {
	switch id {
	case Cardano:
		return &MockClient{chain: Cardano, provider: ProviderBlockfrost, transfers: cardanoFixtures()}
	default:
		return &MockClient{chain: Ethereum, provider: ProviderAlchemy, transfers: ethereumFixtures()}
	}
}

func ethereumFixtures() []Transfer {
	u := NativeUnits(Ethereum)
	return []Transfer{
		{
			Hash:      "0xmock1",
			From:      "0xabc",
			To:        MockWallet,
			Value:     "1000000000000000000",
			Unit:      u.Unit,
			Decimals:  u.Decimals,
			Asset:     u.Asset,
			Block:     0xABC,
			Timestamp: 1690000000,
			Direction: DirectionIn,
		},
		{
			Hash:      "0xmock2",
			From:      MockWallet,
			To:        "0xdef",
			Value:     "500000000000000000",
			Unit:      u.Unit,
			Decimals:  u.Decimals,
			Asset:     u.Asset,
			Block:     0xABD,
			Timestamp: 1690100000,
			Direction: DirectionOut,
		},
	}
}

func cardanoFixtures() []Transfer {
	u := NativeUnits(Cardano)
	return []Transfer{
		{
			Hash:      "mock_tx_1",
			Value:     "1000000",
			Unit:      u.Unit,
			Decimals:  u.Decimals,
			Asset:     u.Asset,
			Timestamp: 1690000000,
			Direction: DirectionIn,
		},
		{
			Hash:      "mock_tx_2",
			Value:     "5000000",
			Unit:      u.Unit,
			Decimals:  u.Decimals,
			Asset:     u.Asset,
			Timestamp: 1690100000,
			Direction: DirectionOut,
		},
	}
}

func (m *MockClient) Chain() ID    { return m.chain }
func (m *MockClient) Mode() string { return ModeMock }

// ListTransfers returns a copy of the fixtures; address and maxCount are ignored.
func (m *MockClient) ListTransfers(ctx context.Context, address string, maxCount int) ([]Transfer, error) {
	metrics.ObserveUpstream(m.provider, opListTransfers, resultMock, time.Now())
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out, nil
}

// GetTransaction echoes the hash back flagged as mock.
func (m *MockClient) GetTransaction(ctx context.Context, hash string) (Transaction, error) {
	metrics.ObserveUpstream(m.provider, opGetTransaction, resultMock, time.Now())
	key := "hash"
	if m.chain == Cardano {
		key = "tx_hash"
	}
	return json.Marshal(map[string]any{key: hash, "mock": true})
}

// Ping always succeeds.
func (m *MockClient) Ping(ctx context.Context) error { return nil }
