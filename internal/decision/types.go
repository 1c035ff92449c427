package decision

import (
	"context"
	"time"
)

// Outcome is the terminal result of one decision cycle.
type Outcome string

const (
	OutcomeExecute   Outcome = "execute"
	OutcomeRecommend Outcome = "recommend"
	OutcomeReject    Outcome = "reject"
	OutcomePaused    Outcome = "paused"
)

// Verdict is one evaluator's opinion for one cycle. It is produced once and
// never changed retroactively.
type Verdict struct {
	Name       string  `json:"name"`
	Approved   bool    `json:"approved"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Approve builds an approving verdict.
func Approve(name, reason string, confidence float64) Verdict {
	return Verdict{Name: name, Approved: true, Reason: reason, Confidence: clamp01(confidence)}
}

// Veto builds a blocking verdict. A veto is absolute: no other evaluator's
// approval can override it.
func Veto(name, reason string) Verdict {
	return Verdict{Name: name, Approved: false, Reason: reason}
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

// Snapshot is the read-only input one decision cycle evaluates. Evaluators
// never mutate it or any orchestrator-owned state.
type Snapshot struct {
	Symbol         string    `json:"symbol"`
	Direction      string    `json:"direction"` // "buy" or "sell"
	SignalStrength float64   `json:"signal_strength"`
	TrendAlignment float64   `json:"trend_alignment"`     // -1..1, sign is direction
	Momentum       float64   `json:"momentum"`            // 0..1
	VolumeConfirm  float64   `json:"volume_confirmation"` // 0..1
	Price          float64   `json:"price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	AccountBalance float64   `json:"account_balance"`
	Session        string    `json:"session"`
	NewsWindow     bool      `json:"news_window"`
	RecentReturns  []float64 `json:"recent_returns,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Evaluator is one independent opinion source. Implementations must be pure
// over the snapshot: no rate limiting, no circuit breaking, no orchestrator
// state. An error return becomes an automatic veto for the cycle, never a
// crash.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, snap *Snapshot) (Verdict, error)
}

// Executor performs the protected external call for an approved decision.
// The implementation owns the rate-limiter/breaker discipline.
type Executor interface {
	Name() string
	Execute(ctx context.Context, snap *Snapshot) error
}

// Decision is the final, immutable result of one cycle. Every rejection
// carries the complete ordered reason list; the system never returns an
// unexplained rejection.
type Decision struct {
	ID           string             `json:"id"`
	Outcome      Outcome            `json:"outcome"`
	Reason       string             `json:"reason"`
	Score        float64            `json:"score"`      // 0..100
	Confidence   float64            `json:"confidence"` // 0..1
	VetoCount    int                `json:"veto_count"`
	VetoReasons  []string           `json:"veto_reasons,omitempty"`
	Verdicts     map[string]Verdict `json:"verdicts,omitempty"`
	SafeMode     bool               `json:"safe_mode"`
	SystemHealth float64            `json:"system_health"`
	Timestamp    time.Time          `json:"timestamp"`
}
