package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/health"
	"github.com/tradegate/tradegate/internal/logging"
)

type stubEvaluator struct {
	name    string
	verdict Verdict
	err     error
	panics  bool
	calls   int
}

func (s *stubEvaluator) Name() string { return s.name }

func (s *stubEvaluator) Evaluate(_ context.Context, _ *Snapshot) (Verdict, error) {
	s.calls++
	if s.panics {
		panic("stub panic")
	}
	if s.err != nil {
		return Verdict{}, s.err
	}
	return s.verdict, nil
}

type stubExecutor struct {
	err   error
	calls int
}

func (s *stubExecutor) Name() string { return "venue" }

func (s *stubExecutor) Execute(_ context.Context, _ *Snapshot) error {
	s.calls++
	return s.err
}

func approver(name string, confidence float64) *stubEvaluator {
	return &stubEvaluator{name: name, verdict: Approve(name, "looks good", confidence)}
}

func vetoer(name, reason string) *stubEvaluator {
	return &stubEvaluator{name: name, verdict: Veto(name, reason)}
}

func newOrchestrator(t *testing.T, evaluators []Evaluator, opts Options) (*Orchestrator, *health.Monitor) {
	t.Helper()
	monitor := health.NewMonitor(logging.NewNop())
	return NewOrchestrator(evaluators, monitor, logging.NewNop(), opts), monitor
}

func snapshot() *Snapshot {
	return &Snapshot{
		Symbol:         "BTCUSDT",
		Direction:      "buy",
		SignalStrength: 0.9,
		Price:          50000,
		StopLoss:       49000,
		TakeProfit:     53000,
		AccountBalance: 10000,
		Session:        "london",
		Timestamp:      time.Now(),
	}
}

func TestVetoIsAbsolute(t *testing.T) {
	evals := []Evaluator{
		approver("technical", 0.99),
		vetoer("risk", "reward ratio too low"),
		approver("temporal", 0.99),
	}
	o, _ := newOrchestrator(t, evals, Options{Mode: "auto"})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.Equal(t, 1, d.VetoCount)
	assert.Equal(t, []string{"risk: reward ratio too low"}, d.VetoReasons)
	// Every evaluator still ran; the explanation is complete
	assert.Len(t, d.Verdicts, 3)
	for _, ev := range evals {
		assert.Equal(t, 1, ev.(*stubEvaluator).calls)
	}
}

func TestMultipleVetoesAllReported(t *testing.T) {
	o, _ := newOrchestrator(t, []Evaluator{
		vetoer("risk", "too risky"),
		vetoer("temporal", "dead session"),
		approver("technical", 0.9),
	}, Options{})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.Equal(t, 2, d.VetoCount)
	assert.Len(t, d.VetoReasons, 2)
	assert.NotEmpty(t, d.Reason)
}

func TestEvaluatorErrorBecomesVeto(t *testing.T) {
	failing := &stubEvaluator{name: "history", err: errors.New("storage offline")}
	o, _ := newOrchestrator(t, []Evaluator{
		approver("technical", 0.9),
		failing,
	}, Options{})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeReject, d.Outcome)
	require.Len(t, d.VetoReasons, 1)
	assert.Contains(t, d.VetoReasons[0], "evaluator failure: history")
	// The other evaluator's verdict is intact
	assert.True(t, d.Verdicts["technical"].Approved)
}

func TestEvaluatorPanicDoesNotCrashCycle(t *testing.T) {
	o, _ := newOrchestrator(t, []Evaluator{
		&stubEvaluator{name: "pattern", panics: true},
		approver("technical", 0.9),
	}, Options{})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.Contains(t, d.VetoReasons[0], "evaluator failure: pattern")
	assert.Len(t, d.Verdicts, 2)
}

func TestHybridModeNeverExecutes(t *testing.T) {
	executor := &stubExecutor{}
	o, _ := newOrchestrator(t, []Evaluator{
		approver("technical", 0.99),
	}, Options{Mode: "hybrid", Executor: executor})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeRecommend, d.Outcome)
	assert.Zero(t, executor.calls)
}

func TestAutoModeExecutes(t *testing.T) {
	executor := &stubExecutor{}
	o, monitor := newOrchestrator(t, []Evaluator{
		approver("technical", 0.95),
		approver("history", 0.92),
		approver("temporal", 0.93),
	}, Options{Mode: "auto", Executor: executor})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeExecute, d.Outcome)
	assert.Equal(t, 1, executor.calls)
	assert.Greater(t, d.Score, 90.0)
	// Successful execution reported healthy
	assert.Equal(t, 100.0, monitor.SystemHealth())
}

func TestAutoModeBelowThresholdRecommends(t *testing.T) {
	executor := &stubExecutor{}
	o, _ := newOrchestrator(t, []Evaluator{
		approver("technical", 0.6),
	}, Options{Mode: "auto", Executor: executor})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeRecommend, d.Outcome)
	assert.Zero(t, executor.calls)
}

func TestExecutionFailureSupersedesOutcome(t *testing.T) {
	executor := &stubExecutor{err: errors.New("circuit breaker \"venue\" is open")}
	o, monitor := newOrchestrator(t, []Evaluator{
		approver("technical", 0.95),
	}, Options{Mode: "auto", Executor: executor})

	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomeReject, d.Outcome)
	assert.Contains(t, d.Reason, "execution failed")
	// The original evaluation detail is preserved, only superseded
	assert.True(t, d.Verdicts["technical"].Approved)
	assert.Less(t, monitor.SystemHealth(), 100.01)
}

func TestPauseShortCircuits(t *testing.T) {
	ev := approver("technical", 0.9)
	o, _ := newOrchestrator(t, []Evaluator{ev}, Options{})

	o.Pause("operator hold")
	d := o.Decide(context.Background(), snapshot())

	assert.Equal(t, OutcomePaused, d.Outcome)
	assert.Equal(t, "operator hold", d.Reason)
	// No evaluator was invoked
	assert.Zero(t, ev.calls)

	o.Resume()
	d = o.Decide(context.Background(), snapshot())
	assert.NotEqual(t, OutcomePaused, d.Outcome)
}

func TestSafeModeAppliesFallbackThreshold(t *testing.T) {
	executor := &stubExecutor{}
	o, monitor := newOrchestrator(t, []Evaluator{
		approver("technical", 0.92),
	}, Options{Mode: "auto", Executor: executor})

	// 0.92 confidence executes under the normal 90 threshold
	d := o.Decide(context.Background(), snapshot())
	require.Equal(t, OutcomeExecute, d.Outcome)

	// Drive health under 50: fallback demands 95
	for i := 0; i < 3; i++ {
		monitor.Report("venue", false)
		monitor.Report("audit", false)
	}
	require.True(t, monitor.SafeModeActive())

	d = o.Decide(context.Background(), snapshot())
	assert.Equal(t, OutcomeRecommend, d.Outcome)
	assert.True(t, d.SafeMode)
}

func TestWeightedConfidenceBlend(t *testing.T) {
	policy := config.Policy{
		Weights:      map[string]float64{"technical": 0.4, "history": 0.3, "temporal": 0.3},
		ExecuteScore: 90,
		ExecuteConf:  0.8,
	}
	o, _ := newOrchestrator(t, []Evaluator{
		approver("technical", 1.0),
		approver("history", 0.5),
		approver("temporal", 0.5),
	}, Options{Policy: policy})

	d := o.Decide(context.Background(), snapshot())

	// 0.4*1.0 + 0.3*0.5 + 0.3*0.5 = 0.70
	assert.InDelta(t, 0.70, d.Confidence, 0.001)
	assert.InDelta(t, 70.0, d.Score, 0.1)
}

func TestUnweightedEvaluatorsAverage(t *testing.T) {
	policy := config.Policy{Weights: map[string]float64{"unrelated": 1}, ExecuteScore: 90, ExecuteConf: 0.8}
	o, _ := newOrchestrator(t, []Evaluator{
		approver("a", 0.8),
		approver("b", 0.4),
	}, Options{Policy: policy})

	d := o.Decide(context.Background(), snapshot())
	assert.InDelta(t, 0.6, d.Confidence, 0.001)
}

func TestDecisionIsExplainedAndStamped(t *testing.T) {
	o, _ := newOrchestrator(t, []Evaluator{vetoer("risk", "no")}, Options{})

	d := o.Decide(context.Background(), snapshot())

	assert.NotEmpty(t, d.ID)
	assert.False(t, d.Timestamp.IsZero())
	assert.NotEmpty(t, d.Reason)
	assert.NotEmpty(t, d.VetoReasons)
}

type memJournal struct {
	entries []*Decision
}

func (j *memJournal) Append(d *Decision) error {
	j.entries = append(j.entries, d)
	return nil
}

func TestJournalReceivesEveryDecision(t *testing.T) {
	journal := &memJournal{}
	o, _ := newOrchestrator(t, []Evaluator{approver("technical", 0.9)}, Options{Journal: journal})

	o.Decide(context.Background(), snapshot())
	o.Pause("hold")
	o.Decide(context.Background(), snapshot())

	require.Len(t, journal.entries, 2)
	assert.Equal(t, OutcomeRecommend, journal.entries[0].Outcome)
	assert.Equal(t, OutcomePaused, journal.entries[1].Outcome)
}
