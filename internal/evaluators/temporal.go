package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/tradegate/tradegate/internal/decision"
)

// Temporal applies session and news-window rules. News windows and dead
// off-hours sessions are untradeable regardless of signal quality.
type Temporal struct {
	confidence map[string]float64
}

func NewTemporal() *Temporal {
	return &Temporal{
		confidence: map[string]float64{
			"london_ny_overlap": 0.95,
			"london":            0.85,
			"ny":                0.85,
			"asia":              0.70,
		},
	}
}

func (t *Temporal) Name() string { return "temporal" }

func (t *Temporal) Evaluate(_ context.Context, snap *decision.Snapshot) (decision.Verdict, error) {
	if snap.NewsWindow {
		return decision.Veto("temporal", "high-impact news window"), nil
	}

	session := strings.ToLower(snap.Session)
	if session == "off_hours" {
		return decision.Veto("temporal", "off-hours session, liquidity too low"), nil
	}

	conf, ok := t.confidence[session]
	if !ok {
		conf = 0.6
	}
	return decision.Approve("temporal",
		fmt.Sprintf("session %s tradeable", session), conf), nil
}
