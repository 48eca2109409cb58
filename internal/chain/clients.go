package chain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/blockphantom/internal/metrics"
)

// Config selects and configures the per-chain clients. A missing key selects
// the mock client for that chain.
type Config struct {
	AlchemyAPIKey  string
	AlchemyNetwork string
	AlchemyURL     string // overrides the URL derived from network and key

	BlockfrostAPIKey  string
	BlockfrostNetwork string
	BlockfrostURL     string // overrides the URL derived from network

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Clients holds one Client per supported chain.
type Clients struct {
	byChain map[ID]Client
	closers []func()
}

// NewClients builds the client set from cfg.
func NewClients(ctx context.Context, cfg Config, logger *slog.Logger) (*Clients, error) {
	cs := &Clients{byChain: make(map[ID]Client, 2)}

	if cfg.AlchemyAPIKey != "" {
		endpoint := cfg.AlchemyURL
		if endpoint == "" {
			endpoint = AlchemyEndpoint(cfg.AlchemyNetwork, cfg.AlchemyAPIKey)
		}
		ac, err := NewAlchemyClient(ctx, endpoint, cfg.HTTPClient, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		cs.add(ac)
		cs.closers = append(cs.closers, ac.Close)
	} else {
		cs.add(NewMockClient(Ethereum))
	}

	if cfg.BlockfrostAPIKey != "" {
		base := cfg.BlockfrostURL
		if base == "" {
			base = BlockfrostBaseURL(cfg.BlockfrostNetwork)
		}
		cs.add(NewBlockfrostClient(base, cfg.BlockfrostAPIKey, cfg.HTTPClient, cfg.Timeout))
	} else {
		cs.add(NewMockClient(Cardano))
	}

	for _, c := range cs.All() {
		logger.Info("chain client ready", "chain", string(c.Chain()), "mode", c.Mode())
	}
	return cs, nil
}

// NewClientsFrom builds a set from explicit clients, later ones replacing
// earlier ones for the same chain.
func NewClientsFrom(clients ...Client) *Clients {
	cs := &Clients{byChain: make(map[ID]Client, len(clients))}
	for _, c := range clients {
		cs.add(c)
	}
	return cs
}

func (cs *Clients) add(c Client) {
	cs.byChain[c.Chain()] = c
	metrics.SetMock(string(c.Chain()), c.Mode() == ModeMock)
}

// Get returns the client for a chain identifier such as "ethereum".
func (cs *Clients) Get(chain string) (Client, error) {
	id, ok := ParseID(chain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, chain)
	}
	c, ok := cs.byChain[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, chain)
	}
	return c, nil
}

// All returns the clients in a stable order.
func (cs *Clients) All() []Client {
	out := make([]Client, 0, len(cs.byChain))
	for _, id := range []ID{Ethereum, Cardano} {
		if c, ok := cs.byChain[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Close releases live connections.
func (cs *Clients) Close() {
	for _, fn := range cs.closers {
		fn()
	}
}
