package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/traces"
)

const (
	blockfrostMaxCount = 100
	blockfrostTimeout  = 15 * time.Second
	maxErrorBody       = 4 << 10
)

var blockfrostNetworks = map[string]string{
	"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
	"preprod": "https://cardano-preprod.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
	"testnet": "https://cardano-testnet.blockfrost.io/api/v0",
}

// BlockfrostBaseURL returns the API base URL for a Cardano network name.
// Unknown networks map to mainnet.
func BlockfrostBaseURL(network string) string {
	if u, ok := blockfrostNetworks[strings.ToLower(network)]; ok {
		return u
	}
	return blockfrostNetworks["mainnet"]
}

// BlockfrostClient talks to the Blockfrost Cardano REST API.
type BlockfrostClient struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	timeout    time.Duration
}

// NewBlockfrostClient creates a client for baseURL authenticated with projectID.
func NewBlockfrostClient(baseURL, projectID string, httpClient *http.Client, timeout time.Duration) *BlockfrostClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &BlockfrostClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		httpClient: httpClient,
		timeout:    capTimeout(blockfrostTimeout, timeout),
	}
}

func (c *BlockfrostClient) Chain() ID    { return Cardano }
func (c *BlockfrostClient) Mode() string { return ModeLive }

type blockfrostAddressTx struct {
	TxHash      string `json:"tx_hash"`
	TxIndex     int    `json:"tx_index"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

type blockfrostError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// ListTransfers returns the newest transactions touching address. Any non-2xx
// answer, including the 404 Blockfrost gives for an unseen address, is a
// *FetchError.
func (c *BlockfrostClient) ListTransfers(ctx context.Context, address string, maxCount int) (transfers []Transfer, err error) {
	ctx, span := traces.StartSpan(ctx, "blockfrost.list_transfers",
		traces.Provider(ProviderBlockfrost), traces.Address(address))
	defer func() { traces.End(span, err) }()

	query := url.Values{}
	query.Set("order", "desc")
	query.Set("count", strconv.Itoa(clampCount(maxCount, blockfrostMaxCount)))

	body, err := c.get(ctx, opListTransfers, "/addresses/"+url.PathEscape(address)+"/transactions", query)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &FetchError{Provider: ProviderBlockfrost, Op: opListTransfers, Err: fmt.Errorf("decode response: %w", err)}
	}

	u := NativeUnits(Cardano)
	transfers = make([]Transfer, 0, len(rows))
	for _, raw := range rows {
		var row blockfrostAddressTx
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, &FetchError{Provider: ProviderBlockfrost, Op: opListTransfers, Err: fmt.Errorf("decode transaction: %w", err)}
		}
		transfers = append(transfers, Transfer{
			Hash:      row.TxHash,
			Unit:      u.Unit,
			Decimals:  u.Decimals,
			Asset:     u.Asset,
			Block:     row.BlockHeight,
			Timestamp: row.BlockTime,
			Raw:       raw,
		})
	}

	span.SetAttributes(traces.Count(len(transfers)))
	logging.L(ctx).Debug("blockfrost transactions fetched",
		logging.Address(address), "count", len(transfers))
	return transfers, nil
}

// GetTransaction fetches /txs/{hash}.
func (c *BlockfrostClient) GetTransaction(ctx context.Context, hash string) (tx Transaction, err error) {
	ctx, span := traces.StartSpan(ctx, "blockfrost.get_transaction", traces.Provider(ProviderBlockfrost))
	defer func() { traces.End(span, err) }()

	body, err := c.get(ctx, opGetTransaction, "/txs/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, err
	}
	return Transaction(body), nil
}

// Ping calls /health.
func (c *BlockfrostClient) Ping(ctx context.Context) error {
	_, err := c.get(ctx, opPing, "/health", nil)
	return err
}

// get performs an authenticated GET and returns the body of a 2xx response.
// A 404 is reported as a *FetchError wrapping ErrNotFound.
func (c *BlockfrostClient) get(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Provider: ProviderBlockfrost, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("project_id", c.projectID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(ProviderBlockfrost, op, resultTransportError, start)
		return nil, &FetchError{Provider: ProviderBlockfrost, Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveUpstream(ProviderBlockfrost, op, resultHTTPError, start)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		fe := &FetchError{Provider: ProviderBlockfrost, Op: op, StatusCode: resp.StatusCode}
		var bfErr blockfrostError
		switch {
		case resp.StatusCode == http.StatusNotFound:
			fe.Err = ErrNotFound
		case json.Unmarshal(data, &bfErr) == nil && bfErr.Message != "":
			fe.Err = errors.New(bfErr.Message)
		default:
			fe.Err = errors.New(strings.TrimSpace(string(data)))
		}
		return nil, fe
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstream(ProviderBlockfrost, op, resultTransportError, start)
		return nil, &FetchError{Provider: ProviderBlockfrost, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	metrics.ObserveUpstream(ProviderBlockfrost, op, resultOK, start)
	return body, nil
}
