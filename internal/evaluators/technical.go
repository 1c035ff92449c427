// Package evaluators provides the built-in opinion sources wired into the
// decision orchestrator. Every evaluator is pure over the snapshot it is
// handed: it holds no references to the limiter, breaker, or orchestrator
// state, so a misbehaving evaluator can at worst veto its own cycle.
package evaluators

import (
	"context"
	"fmt"

	"github.com/tradegate/tradegate/internal/decision"
)

// Quality bands for a combined technical score.
const (
	minScoreRecommend = 65.0
	minTechConfidence = 0.6
)

// Technical scores trend alignment, momentum, and volume confirmation and
// vetoes setups below the minimum quality bar.
type Technical struct {
	minScore float64
}

func NewTechnical() *Technical {
	return &Technical{minScore: minScoreRecommend}
}

func (t *Technical) Name() string { return "technical" }

func (t *Technical) Evaluate(_ context.Context, snap *decision.Snapshot) (decision.Verdict, error) {
	trend := bandScore(abs(snap.TrendAlignment))
	momentum := bandScore(snap.Momentum)
	volume := bandScore(snap.VolumeConfirm)

	score := 0.4*trend + 0.3*momentum + 0.3*volume
	confidence := score / 100

	if score < t.minScore {
		return decision.Veto("technical",
			fmt.Sprintf("score below minimum (%.1f < %.1f)", score, t.minScore)), nil
	}
	if confidence < minTechConfidence {
		return decision.Veto("technical",
			fmt.Sprintf("low confidence in setup (%.2f)", confidence)), nil
	}
	return decision.Approve("technical",
		fmt.Sprintf("quality score %.1f", score), confidence), nil
}

// bandScore maps a 0..1 component reading onto the discrete quality bands.
func bandScore(v float64) float64 {
	switch {
	case v >= 0.8:
		return 100
	case v >= 0.6:
		return 80
	case v >= 0.4:
		return 60
	case v >= 0.2:
		return 40
	default:
		return 20
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
