// Package walletrisk routes wallet risk requests to the chain clients and
// decides between live and demo data.
//
// A request starts in one of three ways. demo=true serves a synthetic
// assessment outright. A known chain tries the live client; an empty result
// falls back to synthetic data. An unknown chain falls back immediately.
// Upstream failures are returned to the caller unless fallback on fetch
// errors is enabled.
package walletrisk

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/blockphantom/internal/chain"
	"github.com/mbd888/blockphantom/internal/logging"
	"github.com/mbd888/blockphantom/internal/masumi"
	"github.com/mbd888/blockphantom/internal/metrics"
	"github.com/mbd888/blockphantom/internal/report"
	"github.com/mbd888/blockphantom/internal/risk"
	"github.com/mbd888/blockphantom/internal/traces"
)

// Source says where an assessment came from.
type Source string

const (
	SourceForcedDemo   Source = "forced_demo"
	SourceLive         Source = "live"
	SourceFallbackDemo Source = "fallback_demo"
)

// Defaults
const (
	DefaultMaxTransfers    = 50
	DefaultDecisionTimeout = 10 * time.Second
	minHistory             = 3
	maxHistory             = 12
)

// Chains resolves a chain identifier to its client.
type Chains interface {
	Get(chain string) (chain.Client, error)
}

// DecisionLogger receives one event per served assessment.
type DecisionLogger interface {
	LogDecision(ctx context.Context, agentID string, event masumi.DecisionEvent) (json.RawMessage, error)
}

// Result is a routed assessment. Transfers is empty on demo paths.
type Result struct {
	Assessment risk.Assessment
	Transfers  []chain.Transfer
	Source     Source
}

// Config tunes the router.
type Config struct {
	MaxTransfers         int
	FallbackOnFetchError bool
	// AgentID enables decision logging when set together with a DecisionLogger.
	AgentID         string
	DecisionTimeout time.Duration
}

// Service is the risk router.
type Service struct {
	chains    Chains
	gen       *risk.Generator
	decisions DecisionLogger
	cfg       Config
	now       func() time.Time
	wg        sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator replaces the random source.
func WithGenerator(g *risk.Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithDecisionLogger posts decision events to d.
func WithDecisionLogger(d DecisionLogger) Option {
	return func(s *Service) { s.decisions = d }
}

// WithClock overrides the decision event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the router.
func NewService(chains Chains, cfg Config, opts ...Option) *Service {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = DefaultMaxTransfers
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = DefaultDecisionTimeout
	}
	s := &Service{
		chains: chains,
		gen:    risk.NewGenerator(nil),
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess routes one request.
func (s *Service) Assess(ctx context.Context, chainName, address string, demo bool) (res Result, err error) {
	ctx, span := traces.StartSpan(ctx, "walletrisk.assess", traces.Chain(chainName), traces.Address(address))
	defer func() {
		if err == nil {
			span.SetAttributes(traces.Source(string(res.Source)))
		}
		traces.End(span, err)
	}()

	res, err = s.route(ctx, chainName, address, demo)
	if err != nil {
		return Result{}, err
	}

	metrics.RiskAssessmentsTotal.WithLabelValues(chainLabel(chainName), string(res.Source)).Inc()
	logging.L(ctx).Info("risk assessed",
		logging.Chain(chainName),
		logging.Address(address),
		"source", res.Source,
		"score", res.Assessment.Score,
		"level", res.Assessment.Level,
	)
	s.logDecision(ctx, chainName, address, res)
	return res, nil
}

func (s *Service) route(ctx context.Context, chainName, address string, demo bool) (Result, error) {
	if demo {
		return s.synthetic(SourceForcedDemo), nil
	}

	client, err := s.chains.Get(chainName)
	if err != nil {
		logging.L(ctx).Debug("no client for chain, serving demo data", logging.Chain(chainName))
		return s.synthetic(SourceFallbackDemo), nil
	}

	transfers, err := client.ListTransfers(ctx, address, s.cfg.MaxTransfers)
	if err != nil {
		if !s.cfg.FallbackOnFetchError {
			return Result{}, err
		}
		logging.L(ctx).Warn("upstream fetch failed, serving demo data",
			logging.Chain(chainName), logging.Address(address), logging.Err(err))
		return s.synthetic(SourceFallbackDemo), nil
	}

	a := s.liveAssessment(transfers)
	if a.Details.Count == 0 {
		return s.synthetic(SourceFallbackDemo), nil
	}
	return Result{Assessment: a, Transfers: transfers, Source: SourceLive}, nil
}

// liveAssessment scores from the generator and summarises the fetched amounts.
// Count is the number of transfers, including those without a value.
func (s *Service) liveAssessment(transfers []chain.Transfer) risk.Assessment {
	a := s.gen.Risk()

	amounts := make([]decimal.Decimal, 0, len(transfers))
	for _, t := range transfers {
		if amt, ok := t.Amount(); ok {
			amounts = append(amounts, amt)
		}
	}
	a.Details = risk.SummarizeAmounts(amounts)
	a.Details.Count = len(transfers)
	a.Demo = false
	return a
}

func (s *Service) synthetic(src Source) Result {
	a := s.gen.Risk()
	a.Demo = true
	return Result{Assessment: a, Transfers: []chain.Transfer{}, Source: src}
}

// History returns 3 to 12 synthetic transactions. Wallet history is not
// stored, so chain and address do not affect the result.
func (s *Service) History(ctx context.Context, chainName, address string) []risk.SyntheticTransaction {
	return s.gen.Transactions(s.gen.IntN(minHistory, maxHistory))
}

// Transaction passes a lookup through to the chain client.
func (s *Service) Transaction(ctx context.Context, chainName, hash string) (chain.Transaction, error) {
	client, err := s.chains.Get(chainName)
	if err != nil {
		return nil, err
	}
	return client.GetTransaction(ctx, hash)
}

// Client returns the chain client, for callers that need its mode.
func (s *Service) Client(chainName string) (chain.Client, error) {
	return s.chains.Get(chainName)
}

// Report routes a live assessment and renders it. Samples are the fetched
// transfers, or synthetic transactions on demo paths.
func (s *Service) Report(ctx context.Context, chainName, address string) (*report.Document, Result, error) {
	res, err := s.Assess(ctx, chainName, address, false)
	if err != nil {
		return nil, Result{}, err
	}

	var in report.Input
	if res.Source == SourceLive {
		in = report.FromAssessment(chainName, address, res.Assessment, res.Transfers)
	} else {
		in = report.FromAssessment(chainName, address, res.Assessment, s.History(ctx, chainName, address))
	}

	doc, err := report.Render(ctx, in)
	if err != nil {
		return nil, Result{}, err
	}
	return doc, res, nil
}

// SyntheticReport renders a fresh synthetic assessment with no samples.
func (s *Service) SyntheticReport(ctx context.Context, chainName, address string) (*report.Document, error) {
	a := s.gen.Risk()
	a.Demo = true
	return report.Render(ctx, report.FromAssessment[risk.SyntheticTransaction](chainName, address, a, nil))
}

// logDecision posts the event in the background. Failures are logged and
// counted, never returned.
func (s *Service) logDecision(ctx context.Context, chainName, address string, res Result) {
	if s.decisions == nil || s.cfg.AgentID == "" {
		return
	}

	event := masumi.DecisionEvent{
		Address:   address,
		Chain:     chainName,
		Score:     res.Assessment.Score,
		Level:     string(res.Assessment.Level),
		Demo:      res.Assessment.Demo,
		Source:    string(res.Source),
		Timestamp: s.now().Unix(),
	}
	logger := logging.L(ctx)
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bg, s.cfg.DecisionTimeout)
		defer cancel()

		if _, err := s.decisions.LogDecision(ctx, s.cfg.AgentID, event); err != nil {
			metrics.DecisionLogFailuresTotal.Inc()
			logger.Warn("decision log failed", logging.Address(address), logging.Err(err))
		}
	}()
}

// Wait blocks until background decision posts finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// chainLabel keeps arbitrary path values out of metric labels.
func chainLabel(name string) string {
	if id, ok := chain.ParseID(name); ok {
		return string(id)
	}
	return "unknown"
}
