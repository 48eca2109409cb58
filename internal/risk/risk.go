// Package risk produces wallet risk assessments.
//
// Scores are synthetic: a uniform draw in [1,99] bucketed into a level, with a
// probability drawn from the range that belongs to the level. The level is
// always a pure function of the score.
package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Level is the bucketed risk verdict.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Score bounds and bucket thresholds.
const (
	MinScore        = 1
	MaxScore        = 99
	LowThreshold    = 30
	MediumThreshold = 60
)

// Details holds the supporting statistics of an assessment.
type Details struct {
	Avg   float64 `json:"avg"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// Assessment is the risk result returned to callers. Demo marks data that
// was not derived from real transactions.
type Assessment struct {
	Score       int     `json:"score"`
	Probability float64 `json:"probability"`
	Level       Level   `json:"level"`
	Details     Details `json:"details"`
	Demo        bool    `json:"demo"`
}

// LevelForScore maps a score onto its level: <=30 low, <=60 medium, else high.
func LevelForScore(score int) Level {
	switch {
	case score <= LowThreshold:
		return LevelLow
	case score <= MediumThreshold:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// ProbabilityRange returns the closed interval probabilities for a level are
// drawn from.
func ProbabilityRange(level Level) (lo, hi float64) {
	switch level {
	case LevelLow:
		return 0.01, 0.30
	case LevelMedium:
		return 0.30, 0.60
	default:
		return 0.60, 0.99
	}
}

// SyntheticTransaction is a fabricated history entry.
type SyntheticTransaction struct {
	Hash   string  `json:"hash"`
	Amount float64 `json:"amount"`
}

func (t SyntheticTransaction) String() string {
	return fmt.Sprintf("%s amount %s", t.Hash, decimal.NewFromFloat(t.Amount).String())
}

// SummarizeAmounts returns the population mean and standard deviation of
// amounts rounded to 4 places, with Count set to len(amounts).
func SummarizeAmounts(amounts []decimal.Decimal) Details {
	if len(amounts) == 0 {
		return Details{}
	}

	n := decimal.NewFromInt(int64(len(amounts)))
	mean := decimal.Sum(amounts[0], amounts[1:]...).Div(n)

	variance := decimal.Zero
	for _, a := range amounts {
		d := a.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)
	std := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))

	return Details{
		Avg:   round(mean, 4),
		Std:   round(std, 4),
		Count: len(amounts),
	}
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}
