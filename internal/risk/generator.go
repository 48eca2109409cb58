package risk

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Generator draws synthetic assessments and transactions. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator reading from src. A nil src is seeded from
// the clock.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Generator{rng: rand.New(src)}
}

// intIn returns a uniform integer in [lo, hi].
func (g *Generator) intIn(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// floatIn returns a uniform float in [lo, hi) rounded to places.
func (g *Generator) floatIn(lo, hi float64, places int32) float64 {
	return round(decimal.NewFromFloat(lo+(hi-lo)*g.rng.Float64()), places)
}

// Risk returns a fresh synthetic assessment with Demo unset.
func (g *Generator) Risk() Assessment {
	g.mu.Lock()
	defer g.mu.Unlock()

	score := g.intIn(MinScore, MaxScore)
	level := LevelForScore(score)
	lo, hi := ProbabilityRange(level)

	return Assessment{
		Score:       score,
		Probability: g.floatIn(lo, hi, 3),
		Level:       level,
		Details: Details{
			Avg:   g.floatIn(0.01, 5.0, 4),
			Std:   g.floatIn(0.01, 2.0, 4),
			Count: g.intIn(1, 50),
		},
	}
}

// Transactions returns n fabricated transactions. n <= 0 yields an empty slice.
func (g *Generator) Transactions(n int) []SyntheticTransaction {
	if n <= 0 {
		return []SyntheticTransaction{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	txs := make([]SyntheticTransaction, n)
	for i := range txs {
		txs[i] = SyntheticTransaction{
			Hash:   fmt.Sprintf("tx_%d", g.intIn(10000, 99999)),
			Amount: g.floatIn(0.1, 3.0, 4),
		}
	}
	return txs
}

// IntN returns a uniform integer in [lo, hi].
func (g *Generator) IntN(lo, hi int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intIn(lo, hi)
}

var defaultGenerator = NewGenerator(nil)

// GenerateRandomRisk draws from the package generator.
func GenerateRandomRisk() Assessment {
	return defaultGenerator.Risk()
}

// GenerateRandomTransactions draws from the package generator.
func GenerateRandomTransactions(n int) []SyntheticTransaction {
	return defaultGenerator.Transactions(n)
}
