package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/blockphantom/internal/chain"
	"github.com/mbd888/blockphantom/internal/config"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/masumi"
)

const testAddr = "0x1111111111111111111111111111111111111111"

func init() {
	gin.SetMode(gin.TestMode)
}

// downClient is a live chain client whose upstream is unreachable
type downClient struct{ id chain.ID }

func (d *downClient) Chain() chain.ID { return d.id }
func (d *downClient) Mode() string    { return chain.ModeLive }
func (d *downClient) Ping(context.Context) error {
	return &chain.FetchError{Provider: "alchemy", Op: "ping", Err: errors.New("connection refused")}
}
func (d *downClient) ListTransfers(context.Context, string, int) ([]chain.Transfer, error) {
	return nil, &chain.FetchError{Provider: "alchemy", Op: "list_transfers", Err: errors.New("connection refused")}
}
func (d *downClient) GetTransaction(context.Context, string) (chain.Transaction, error) {
	return nil, &chain.FetchError{Provider: "alchemy", Op: "get_transaction", Err: errors.New("connection refused")}
}

type publicResolver struct{}

func (publicResolver) LookupHost(context.Context, string) ([]string, error) {
	return []string{"93.184.216.34"}, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		LogFormat:         "text",
		CORSOrigins:       []string{"*"},
		AlchemyNetwork:    config.DefaultAlchemyNetwork,
		BlockfrostNetwork: config.DefaultBlockfrostNetwork,
		MasumiRegistryURL: "http://127.0.0.1:1",
		MasumiPaymentURL:  "http://127.0.0.1:1",
		UpstreamTimeout:   time.Second,
		MaxTransfers:      config.DefaultMaxTransfers,
	}
}

// newTestServer creates a server on mock chain clients
func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{
		WithLogger(logging.NewWithWriter(io.Discard, "error", "text")),
		WithDrainDelay(0),
	}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func serve(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("Expected 2 chain checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if c.Mode != chain.ModeMock {
			t.Errorf("Expected %s to run on mock data, got %q", c.Name, c.Mode)
		}
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	clients := chain.NewClientsFrom(&downClient{id: chain.Ethereum}, chain.NewMockClient(chain.Cardano))
	s := newTestServer(t, testConfig(), WithChains(clients))

	w := serve(s, "GET", "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got %v", resp.Status)
	}
	if resp.Checks[0].Healthy || resp.Checks[0].Detail == "" {
		t.Errorf("Expected ethereum check to fail with detail, got %+v", resp.Checks[0])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/health/live", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	// Server hasn't called Run() so ready is false
	w := serve(s, "GET", "/health/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t, testConfig())

	expected := []string{
		"GET:/",
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/wallet/:chain/:address/risk",
		"GET:/wallet/:chain/:address/history",
		"GET:/wallet/:chain/:address/pdf",
		"GET:/tx/:chain/:hash",
		"GET:/report",
		"POST:/masumi/create-payment",
		"GET:/masumi/payment-status/:id",
		"GET:/masumi/agents",
		"POST:/masumi/agents",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Name   string            `json:"name"`
		Chains map[string]string `json:"chains"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Chains["ethereum"] != chain.ModeMock || resp.Chains["cardano"] != chain.ModeMock {
		t.Errorf("Expected both chains in mock mode, got %v", resp.Chains)
	}
}

// ---------------------------------------------------------------------------
// Middleware tests
// ---------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/health/live", nil)
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("Expected generated UUID request ID, got %q", w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest("GET", "/health/live", nil)
	req.Header.Set("X-Request-ID", "frontend-123")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "frontend-123" {
		t.Errorf("Expected propagated request ID, got %q", got)
	}
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest("GET", "/wallet/ethereum/"+testAddr+"/risk", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff header")
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Expected CORS header")
	}
	if !strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "X-Risk-Source") {
		t.Error("Expected X-Risk-Source to be exposed to the browser")
	}
}

func TestPanicRecovery(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(s, "GET", "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_error") {
		t.Errorf("Expected JSON error body, got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// End-to-end tests on mock chains
// ---------------------------------------------------------------------------

func TestRiskOnMockChain(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/wallet/ethereum/"+testAddr+"/risk", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Risk-Source"); got != "live" {
		t.Errorf("Expected mock fixtures to be served as live, got %q", got)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	details, _ := resp["details"].(map[string]interface{})
	if details["count"] != float64(2) {
		t.Errorf("Expected count 2 from fixtures, got %v", details["count"])
	}
}

func TestRiskUpstreamDown(t *testing.T) {
	clients := chain.NewClientsFrom(&downClient{id: chain.Ethereum})

	s := newTestServer(t, testConfig(), WithChains(clients))
	w := serve(s, "GET", "/wallet/ethereum/"+testAddr+"/risk", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}

	cfg := testConfig()
	cfg.FallbackOnFetchError = true
	s = newTestServer(t, cfg, WithChains(clients))
	w = serve(s, "GET", "/wallet/ethereum/"+testAddr+"/risk", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-Risk-Source") != "fallback_demo" {
		t.Errorf("Expected fallback demo, got %d %q", w.Code, w.Header().Get("X-Risk-Source"))
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, "GET", "/v1/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Masumi wiring
// ---------------------------------------------------------------------------

type masumiFake struct {
	mu        sync.Mutex
	paths     []string
	decisions int
	done      chan struct{}
}

func (m *masumiFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.paths = append(m.paths, r.Method+" "+r.URL.Path)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/payments":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pay_42","status":"pending"}`))
	case r.URL.Path == "/agents/agent_7/decisions":
		m.mu.Lock()
		m.decisions++
		m.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
		m.done <- struct{}{}
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

func TestMasumiWiring(t *testing.T) {
	fake := &masumiFake{done: make(chan struct{}, 4)}
	upstream := httptest.NewServer(fake)
	defer upstream.Close()

	cfg := testConfig()
	cfg.MasumiRegistryURL = upstream.URL
	cfg.MasumiPaymentURL = upstream.URL
	cfg.MasumiAgentID = "agent_7"

	mc := masumi.NewClient(masumi.Config{RegistryURL: upstream.URL, PaymentURL: upstream.URL}, upstream.Client())
	s := newTestServer(t, cfg, WithMasumi(mc), WithResolver(publicResolver{}))

	w := serve(s, "POST", "/masumi/create-payment", strings.NewReader(`{"chain":"ethereum","address":"`+testAddr+`"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "pay_42") {
		t.Errorf("Expected payment passthrough, got %s", w.Body.String())
	}

	w = serve(s, "GET", "/wallet/cardano/addr_any/risk?demo=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	select {
	case <-fake.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Decision event was not posted")
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.decisions != 1 {
		t.Errorf("Expected 1 decision event, got %d", fake.decisions)
	}
}

func TestShutdownWithoutRun(t *testing.T) {
	s := newTestServer(t, testConfig())
	if err := s.Shutdown(); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if s.ready.Load() {
		t.Error("Expected server to be not ready after shutdown")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
