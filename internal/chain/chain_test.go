package chain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want ID
		ok   bool
	}{
		{"ethereum", Ethereum, true},
		{" Ethereum ", Ethereum, true},
		{"CARDANO", Cardano, true},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTransferAmount(t *testing.T) {
	tr := Transfer{Value: "1500000000000000000", Decimals: 18, Asset: "ETH"}
	amt, ok := tr.Amount()
	require.True(t, ok)
	assert.Equal(t, "1.5", amt.String())

	_, ok = Transfer{}.Amount()
	assert.False(t, ok)

	_, ok = Transfer{Value: "nope"}.Amount()
	assert.False(t, ok)

	ada, ok := Transfer{Value: "5000000", Decimals: 6}.Amount()
	require.True(t, ok)
	assert.Equal(t, "5", ada.String())
}

func TestTransferString(t *testing.T) {
	tr := Transfer{Hash: "0xmock1", From: "0xabc", To: "0xdef", Value: "1000000000000000000",
		Decimals: 18, Asset: "ETH", Block: 2748, Direction: DirectionIn}
	assert.Equal(t, "0xmock1 [in] 0xabc -> 0xdef 1 ETH block 2748", tr.String())
	assert.Equal(t, "mock_tx_1", Transfer{Hash: "mock_tx_1"}.String())
}

func TestFetchError(t *testing.T) {
	err := error(&FetchError{Provider: "blockfrost", Op: "get_transaction", StatusCode: 404, Err: ErrNotFound})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "404")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "blockfrost", fe.Provider)

	transport := &FetchError{Provider: "alchemy", Op: "ping", Err: errors.New("connection refused")}
	assert.Equal(t, "alchemy ping: connection refused", transport.Error())
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, 1, clampCount(0, 100))
	assert.Equal(t, 1, clampCount(-5, 100))
	assert.Equal(t, 50, clampCount(50, 100))
	assert.Equal(t, 100, clampCount(5000, 100))
}

func TestMockClient_SameFixturesForAnyInput(t *testing.T) {
	for _, id := range []ID{Ethereum, Cardano} {
		m := NewMockClient(id)
		assert.Equal(t, id, m.Chain())
		assert.Equal(t, ModeMock, m.Mode())

		a, err := m.ListTransfers(context.Background(), "addr_one", 1)
		require.NoError(t, err)
		b, err := m.ListTransfers(context.Background(), "addr_two", 1000)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		require.Len(t, a, 2)
		assert.Equal(t, DirectionIn, a[0].Direction)
		assert.Equal(t, DirectionOut, a[1].Direction)
		assert.NoError(t, m.Ping(context.Background()))
	}
}

func TestMockClient_ReturnsCopy(t *testing.T) {
	m := NewMockClient(Ethereum)
	a, _ := m.ListTransfers(context.Background(), "x", 10)
	a[0].Hash = "mutated"
	b, _ := m.ListTransfers(context.Background(), "x", 10)
	assert.Equal(t, "0xmock1", b[0].Hash)
}

func TestMockClient_Fixtures(t *testing.T) {
	eth, _ := NewMockClient(Ethereum).ListTransfers(context.Background(), "", 0)
	assert.Equal(t, "0xmock1", eth[0].Hash)
	assert.Equal(t, "1000000000000000000", eth[0].Value)
	assert.Equal(t, uint64(0xABC), eth[0].Block)
	assert.Equal(t, "0xmock2", eth[1].Hash)
	assert.Equal(t, int64(1690100000), eth[1].Timestamp)

	ada, _ := NewMockClient(Cardano).ListTransfers(context.Background(), "", 0)
	assert.Equal(t, "mock_tx_1", ada[0].Hash)
	assert.Equal(t, "5000000", ada[1].Value)
	assert.Equal(t, "lovelace", ada[1].Unit)
}

func TestMockClient_GetTransaction(t *testing.T) {
	tx, err := NewMockClient(Ethereum).GetTransaction(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":"0xabc","mock":true}`, string(tx))

	tx, err = NewMockClient(Cardano).GetTransaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tx_hash":"abc","mock":true}`, string(tx))
}

func TestNewClients_MockWithoutKeys(t *testing.T) {
	cs, err := NewClients(context.Background(), Config{AlchemyNetwork: "eth-mainnet", BlockfrostNetwork: "mainnet"}, discardLogger())
	require.NoError(t, err)
	defer cs.Close()

	eth, err := cs.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, ModeMock, eth.Mode())

	ada, err := cs.Get("Cardano")
	require.NoError(t, err)
	assert.Equal(t, ModeMock, ada.Mode())

	_, err = cs.Get("solana")
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	all := cs.All()
	require.Len(t, all, 2)
	assert.Equal(t, Ethereum, all[0].Chain())
	assert.Equal(t, Cardano, all[1].Chain())
}

func TestNewClients_LiveWithKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cs, err := NewClients(context.Background(), Config{
		AlchemyAPIKey:    "key",
		AlchemyURL:       srv.URL,
		BlockfrostAPIKey: "project",
		BlockfrostURL:    srv.URL,
	}, discardLogger())
	require.NoError(t, err)
	defer cs.Close()

	eth, _ := cs.Get("ethereum")
	assert.IsType(t, &AlchemyClient{}, eth)
	ada, _ := cs.Get("cardano")
	assert.IsType(t, &BlockfrostClient{}, ada)
}

func TestNewClientsFrom(t *testing.T) {
	cs := NewClientsFrom(NewMockClient(Ethereum))
	_, err := cs.Get("cardano")
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	c, err := cs.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, Ethereum, c.Chain())
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com/v2/k", AlchemyEndpoint("eth-mainnet", "k"))
	assert.Equal(t, "https://cardano-mainnet.blockfrost.io/api/v0", BlockfrostBaseURL("mainnet"))
	assert.Equal(t, "https://cardano-testnet.blockfrost.io/api/v0", BlockfrostBaseURL("testnet"))
	assert.Equal(t, "https://cardano-preprod.blockfrost.io/api/v0", BlockfrostBaseURL("preprod"))
	assert.Equal(t, "https://cardano-mainnet.blockfrost.io/api/v0", BlockfrostBaseURL("unknown"))
}

// rpcRequest is the JSON-RPC envelope the fake Alchemy server decodes.
type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}
