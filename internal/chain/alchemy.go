package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/traces"
)

// Provider names used in errors, metrics, and spans.
const (
	ProviderAlchemy    = "alchemy"
	ProviderBlockfrost = "blockfrost"
)

const (
	opListTransfers  = "list_transfers"
	opGetTransaction = "get_transaction"
	opPing           = "ping"

	resultOK             = "ok"
	resultHTTPError      = "http_error"
	resultTransportError = "transport_error"
	resultMock           = "mock"
)

// Alchemy limits and per-call timeouts.
const (
	alchemyMaxCount       = 1000
	alchemyListTimeout    = 20 * time.Second
	alchemyGetTimeout     = 15 * time.Second
	alchemyTransferMethod = "alchemy_getAssetTransfers"
)

var alchemyCategories = []string{"external", "erc20", "erc721", "erc1155"}

// AlchemyEndpoint builds the JSON-RPC URL for a network and API key.
func AlchemyEndpoint(network, apiKey string) string {
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", network, apiKey)
}

// AlchemyClient talks to Alchemy's Ethereum JSON-RPC endpoint.
type AlchemyClient struct {
	rpc         *rpc.Client
	listTimeout time.Duration
	getTimeout  time.Duration
}

// NewAlchemyClient dials endpoint over HTTP. No request is sent until the
// first call. timeout, when positive, caps both per-call timeouts.
func NewAlchemyClient(ctx context.Context, endpoint string, httpClient *http.Client, timeout time.Duration) (*AlchemyClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial alchemy: %w", err)
	}
	return &AlchemyClient{
		rpc:         c,
		listTimeout: capTimeout(alchemyListTimeout, timeout),
		getTimeout:  capTimeout(alchemyGetTimeout, timeout),
	}, nil
}

func (c *AlchemyClient) Chain() ID    { return Ethereum }
func (c *AlchemyClient) Mode() string { return ModeLive }

type assetTransfersParams struct {
	FromBlock    string   `json:"fromBlock"`
	ToBlock      string   `json:"toBlock"`
	FromAddress  string   `json:"fromAddress"`
	Category     []string `json:"category"`
	MaxCount     string   `json:"maxCount"`
	WithMetadata bool     `json:"withMetadata"`
}

type assetTransfersResult struct {
	Transfers []json.RawMessage `json:"transfers"`
	PageKey   string            `json:"pageKey,omitempty"`
}

type alchemyTransfer struct {
	BlockNum    string `json:"blockNum"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Asset       string `json:"asset"`
	Category    string `json:"category"`
	RawContract struct {
		Value   string `json:"value"`
		Decimal string `json:"decimal"`
	} `json:"rawContract"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

// ListTransfers calls alchemy_getAssetTransfers for transfers sent from address.
func (c *AlchemyClient) ListTransfers(ctx context.Context, address string, maxCount int) (transfers []Transfer, err error) {
	ctx, span := traces.StartSpan(ctx, "alchemy.list_transfers",
		traces.Provider(ProviderAlchemy), traces.Address(address))
	defer func() { traces.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	params := assetTransfersParams{
		FromBlock:    "0x0",
		ToBlock:      "latest",
		FromAddress:  address,
		Category:     alchemyCategories,
		MaxCount:     hexutil.EncodeUint64(uint64(clampCount(maxCount, alchemyMaxCount))),
		WithMetadata: true,
	}

	start := time.Now()
	var res assetTransfersResult
	if err := c.rpc.CallContext(ctx, &res, alchemyTransferMethod, params); err != nil {
		return nil, c.fail(opListTransfers, start, err)
	}
	metrics.ObserveUpstream(ProviderAlchemy, opListTransfers, resultOK, start)

	transfers = make([]Transfer, 0, len(res.Transfers))
	for _, raw := range res.Transfers {
		t, err := decodeAlchemyTransfer(raw, address)
		if err != nil {
			return nil, &FetchError{Provider: ProviderAlchemy, Op: opListTransfers, Err: err}
		}
		transfers = append(transfers, t)
	}

	span.SetAttributes(traces.Count(len(transfers)))
	logging.L(ctx).Debug("alchemy transfers fetched",
		logging.Address(address), "count", len(transfers))
	return transfers, nil
}

// GetTransaction calls eth_getTransactionByHash. A null result is ErrNotFound.
func (c *AlchemyClient) GetTransaction(ctx context.Context, hash string) (tx Transaction, err error) {
	ctx, span := traces.StartSpan(ctx, "alchemy.get_transaction", traces.Provider(ProviderAlchemy))
	defer func() { traces.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	start := time.Now()
	var raw json.RawMessage
	err = c.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash)
	if errors.Is(err, rpc.ErrNoResult) {
		raw, err = nil, nil
	}
	if err != nil {
		return nil, c.fail(opGetTransaction, start, err)
	}
	metrics.ObserveUpstream(ProviderAlchemy, opGetTransaction, resultOK, start)

	if len(raw) == 0 || string(raw) == "null" {
		return nil, &FetchError{Provider: ProviderAlchemy, Op: opGetTransaction, Err: ErrNotFound}
	}
	return Transaction(raw), nil
}

// Ping asks for the latest block number.
func (c *AlchemyClient) Ping(ctx context.Context) error {
	start := time.Now()
	var block hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &block, "eth_blockNumber"); err != nil {
		return c.fail(opPing, start, err)
	}
	metrics.ObserveUpstream(ProviderAlchemy, opPing, resultOK, start)
	return nil
}

// Close releases the underlying RPC client.
func (c *AlchemyClient) Close() {
	c.rpc.Close()
}

// fail records the failed call and converts err into a *FetchError.
func (c *AlchemyClient) fail(op string, start time.Time, err error) error {
	fe := &FetchError{Provider: ProviderAlchemy, Op: op, Err: err}
	result := resultTransportError

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		fe.StatusCode = httpErr.StatusCode
		result = resultHTTPError
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		result = resultHTTPError
	}

	metrics.ObserveUpstream(ProviderAlchemy, op, result, start)
	return fe
}

func decodeAlchemyTransfer(raw json.RawMessage, address string) (Transfer, error) {
	var at alchemyTransfer
	if err := json.Unmarshal(raw, &at); err != nil {
		return Transfer{}, fmt.Errorf("decode transfer: %w", err)
	}

	t := Transfer{
		Hash:  at.Hash,
		From:  at.From,
		To:    at.To,
		Asset: at.Asset,
		Raw:   raw,
	}

	if strings.EqualFold(at.From, address) {
		t.Direction = DirectionOut
	} else {
		t.Direction = DirectionIn
	}

	if at.BlockNum != "" {
		block, err := parseHexUint(at.BlockNum)
		if err != nil {
			return Transfer{}, fmt.Errorf("transfer %s: block number %q: %w", at.Hash, at.BlockNum, err)
		}
		t.Block = block
	}

	if at.Metadata.BlockTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339, at.Metadata.BlockTimestamp); err == nil {
			t.Timestamp = ts.Unix()
		}
	}

	switch {
	case at.Category == "external" || at.Category == "internal":
		u := NativeUnits(Ethereum)
		t.Unit, t.Decimals = u.Unit, u.Decimals
		if t.Asset == "" {
			t.Asset = u.Asset
		}
	case at.RawContract.Decimal != "":
		dec, err := parseHexUint(at.RawContract.Decimal)
		if err == nil {
			t.Decimals = int32(dec)
		}
		t.Unit = "token"
	default:
		t.Unit = "token"
	}

	// NFT transfers carry no fungible value.
	if at.RawContract.Value != "" {
		v, ok := new(big.Int).SetString(strings.TrimPrefix(at.RawContract.Value, "0x"), 16)
		if !ok {
			return Transfer{}, fmt.Errorf("transfer %s: raw value %q is not hex", at.Hash, at.RawContract.Value)
		}
		t.Value = v.String()
	}

	return t, nil
}

// parseHexUint accepts hex quantities with leading zeros, which
// hexutil.DecodeUint64 rejects and Alchemy emits.
func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
}

func capTimeout(def, limit time.Duration) time.Duration {
	if limit > 0 && limit < def {
		return limit
	}
	return def
}
