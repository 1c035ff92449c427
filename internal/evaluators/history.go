package evaluators

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tradegate/tradegate/internal/decision"
)

const (
	historyMinSamples = 5
	maxAbsZScore      = 3.0
	maxLossStreak     = 3
)

// History judges a setup against the recent outcome record. It vetoes when
// the latest return is a statistical outlier against the window, or when the
// trailing loss streak says similar setups keep failing.
type History struct {
	minSamples int
	maxZ       float64
	lossStreak int
}

func NewHistory() *History {
	return &History{
		minSamples: historyMinSamples,
		maxZ:       maxAbsZScore,
		lossStreak: maxLossStreak,
	}
}

func (h *History) Name() string { return "history" }

func (h *History) Evaluate(_ context.Context, snap *decision.Snapshot) (decision.Verdict, error) {
	returns := snap.RecentReturns
	if len(returns) < h.minSamples {
		return decision.Approve("history", "insufficient history, no objection", 0.6), nil
	}

	if streak := trailingLosses(returns); streak >= h.lossStreak {
		return decision.Veto("history",
			fmt.Sprintf("%d consecutive losing outcomes", streak)), nil
	}

	mean, std := stat.MeanStdDev(returns, nil)
	latest := returns[len(returns)-1]
	if std > 0 {
		z := (latest - mean) / std
		if math.Abs(z) > h.maxZ {
			return decision.Veto("history",
				fmt.Sprintf("anomalous recent return (z=%.2f)", z)), nil
		}
		conf := clamp01(1 - math.Abs(z)/h.maxZ)
		if conf < 0.5 {
			conf = 0.5
		}
		return decision.Approve("history",
			fmt.Sprintf("recent outcomes within norm (z=%.2f)", z), conf), nil
	}

	return decision.Approve("history", "recent outcomes stable", 0.8), nil
}

// trailingLosses counts consecutive negative returns at the end of the window.
func trailingLosses(returns []float64) int {
	streak := 0
	for i := len(returns) - 1; i >= 0; i-- {
		if returns[i] >= 0 {
			break
		}
		streak++
	}
	return streak
}
