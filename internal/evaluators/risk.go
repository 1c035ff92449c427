package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/tradegate/tradegate/internal/decision"
)

// Risk limits. Capital preservation outranks opportunity capture.
const (
	minRiskReward  = 1.5
	dailyLossLimit = 0.05 // 5% of balance across recent outcomes
)

// Risk enforces risk/reward and loss limits. It vetoes any setup whose stop
// placement is invalid, whose reward does not justify its risk, or that
// arrives after the daily loss budget is spent.
type Risk struct {
	minRR     float64
	lossLimit float64
}

func NewRisk() *Risk {
	return &Risk{minRR: minRiskReward, lossLimit: dailyLossLimit}
}

func (r *Risk) Name() string { return "risk" }

func (r *Risk) Evaluate(_ context.Context, snap *decision.Snapshot) (decision.Verdict, error) {
	var risk, reward float64
	switch strings.ToLower(snap.Direction) {
	case "buy":
		risk = snap.Price - snap.StopLoss
		reward = snap.TakeProfit - snap.Price
	case "sell":
		risk = snap.StopLoss - snap.Price
		reward = snap.Price - snap.TakeProfit
	default:
		return decision.Verdict{}, fmt.Errorf("unknown direction %q", snap.Direction)
	}

	if risk <= 0 {
		return decision.Veto("risk", "invalid stop loss placement"), nil
	}
	rr := reward / risk
	if rr < r.minRR {
		return decision.Veto("risk",
			fmt.Sprintf("risk/reward too low (%.2f < %.2f)", rr, r.minRR)), nil
	}

	if loss := realizedLoss(snap.RecentReturns); loss >= r.lossLimit {
		return decision.Veto("risk",
			fmt.Sprintf("daily loss limit reached (%.1f%%)", loss*100)), nil
	}

	// Confidence grows with the R:R margin over the floor, saturating at 2x.
	confidence := 0.6 + 0.35*clamp01((rr-r.minRR)/r.minRR)
	return decision.Approve("risk",
		fmt.Sprintf("risk/reward %.2f", rr), confidence), nil
}

// realizedLoss sums the losing side of the recent outcome window.
func realizedLoss(returns []float64) float64 {
	var loss float64
	for _, ret := range returns {
		if ret < 0 {
			loss -= ret
		}
	}
	return loss
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
