package decision

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/health"
	"github.com/tradegate/tradegate/internal/logging"
	"github.com/tradegate/tradegate/internal/monitoring"
)

// Journal receives every final decision for durable audit.
type Journal interface {
	Append(d *Decision) error
}

// Orchestrator coordinates one decision cycle: preliminary gate, evaluator
// phase, aggregation, and the protected execute side effect. It exclusively
// owns the health monitor and executor; evaluators receive read-only
// snapshots.
type Orchestrator struct {
	evaluators []Evaluator // fixed, deterministic order
	executor   Executor
	monitor    *health.Monitor
	metrics    *monitoring.Metrics
	logger     *logging.Logger
	journal    Journal

	mode         string
	evalTimeout  time.Duration
	policy       config.Policy
	paused       atomic.Bool
	pauseReason  atomic.Value // string
	cyclesTotal  atomic.Uint64
	rejectsTotal atomic.Uint64
}

// Options configures an Orchestrator.
type Options struct {
	Mode             string // "hybrid" or "auto"
	EvaluatorTimeout time.Duration
	Policy           config.Policy
	Executor         Executor
	Journal          Journal
	Metrics          *monitoring.Metrics
}

// NewOrchestrator creates an orchestrator over the given evaluators, which
// run in the order supplied on every cycle.
func NewOrchestrator(evaluators []Evaluator, monitor *health.Monitor, logger *logging.Logger, opts Options) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = "hybrid"
	}
	if opts.EvaluatorTimeout == 0 {
		opts.EvaluatorTimeout = 5 * time.Second
	}
	if opts.Policy.Weights == nil {
		opts.Policy = config.DefaultPolicy()
	}

	o := &Orchestrator{
		evaluators:  evaluators,
		executor:    opts.Executor,
		monitor:     monitor,
		metrics:     opts.Metrics,
		logger:      logger.Named("orchestrator"),
		journal:     opts.Journal,
		mode:        opts.Mode,
		evalTimeout: opts.EvaluatorTimeout,
		policy:      opts.Policy,
	}
	o.pauseReason.Store("")
	return o
}

// Pause short-circuits every subsequent cycle to the Paused outcome until
// Resume is called.
func (o *Orchestrator) Pause(reason string) {
	o.pauseReason.Store(reason)
	o.paused.Store(true)
	o.logger.Warn("orchestrator paused", zap.String("reason", reason))
}

// Resume clears the pause flag.
func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	o.pauseReason.Store("")
	o.logger.Info("orchestrator resumed")
}

// Paused reports whether the external pause flag is set.
func (o *Orchestrator) Paused() bool {
	return o.paused.Load()
}

// Decide runs one full decision cycle over the snapshot and returns the
// final, immutable decision. Evaluator failures degrade to vetoes for this
// cycle only; they never abort the orchestrator.
func (o *Orchestrator) Decide(ctx context.Context, snap *Snapshot) *Decision {
	start := time.Now()
	d := o.decide(ctx, snap)
	o.finish(d, time.Since(start))
	return d
}

func (o *Orchestrator) decide(ctx context.Context, snap *Snapshot) *Decision {
	o.cyclesTotal.Add(1)

	// Phase 1: preliminary gate. The pause flag short-circuits before any
	// evaluator runs. Safe mode does not reject by itself; it swaps in the
	// conservative fallback thresholds for this cycle.
	if o.paused.Load() {
		reason, _ := o.pauseReason.Load().(string)
		if reason == "" {
			reason = "externally paused"
		}
		return o.terminal(OutcomePaused, reason, nil, nil)
	}

	safeMode := o.monitor.SafeModeActive()
	executeScore := o.policy.ExecuteScore
	if safeMode {
		fb := o.monitor.Fallback()
		executeScore = fb.MinScoreRequirement
		o.logger.Warn("safe mode active, using fallback thresholds",
			zap.Float64("min_score", executeScore),
			zap.Float64("system_health", o.monitor.SystemHealth()),
		)
	}

	// Phase 2: evaluation. Every evaluator always runs so the explanation
	// is complete; a veto never halts the pass early.
	verdicts := make(map[string]Verdict, len(o.evaluators))
	var vetoReasons []string
	for _, ev := range o.evaluators {
		verdict := o.runEvaluator(ctx, ev, snap)
		verdicts[verdict.Name] = verdict
		if !verdict.Approved {
			vetoReasons = append(vetoReasons, fmt.Sprintf("%s: %s", verdict.Name, verdict.Reason))
			if o.metrics != nil {
				o.metrics.RecordVeto(verdict.Name)
			}
		}
	}

	// Phase 3: aggregation. Veto is absolute.
	if len(vetoReasons) > 0 {
		d := o.terminal(OutcomeReject, fmt.Sprintf("%d evaluator(s) vetoed", len(vetoReasons)), verdicts, vetoReasons)
		d.SafeMode = safeMode
		return d
	}

	confidence := o.combinedConfidence(verdicts)
	score := confidence * 100

	outcome := OutcomeRecommend
	reason := "hybrid mode requires external confirmation"
	if o.mode == "auto" {
		if score >= executeScore && confidence >= o.policy.ExecuteConf {
			outcome = OutcomeExecute
			reason = fmt.Sprintf("score %.1f and confidence %.2f meet execution thresholds", score, confidence)
		} else {
			reason = fmt.Sprintf("score %.1f or confidence %.2f below execution thresholds", score, confidence)
		}
	}

	d := o.terminal(outcome, reason, verdicts, nil)
	d.Score = score
	d.Confidence = confidence
	d.SafeMode = safeMode

	// Phase 4: execute side effect through the protected call path. A
	// breaker-open or rate-limit failure supersedes the outcome with a
	// rejection; the verdicts stay part of the explanation.
	if outcome == OutcomeExecute && o.executor != nil {
		if err := o.executor.Execute(ctx, snap); err != nil {
			o.monitor.Report(o.executor.Name(), false)
			o.logger.Error("execution failed, superseding outcome",
				zap.String("decision_id", d.ID),
				zap.Error(err),
			)
			d.Outcome = OutcomeReject
			d.Reason = fmt.Sprintf("execution failed: %v", err)
			d.VetoCount = 1
			d.VetoReasons = []string{d.Reason}
		} else {
			o.monitor.Report(o.executor.Name(), true)
		}
	}

	return d
}

// runEvaluator invokes one evaluator with a bounded context, converting
// errors and panics into automatic vetoes.
func (o *Orchestrator) runEvaluator(ctx context.Context, ev Evaluator, snap *Snapshot) (verdict Verdict) {
	name := ev.Name()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("evaluator panicked",
				zap.String("evaluator", name),
				zap.Any("panic", r),
			)
			o.evaluatorFailed(name)
			verdict = Veto(name, fmt.Sprintf("evaluator failure: %s", name))
		}
	}()

	evalCtx, cancel := context.WithTimeout(ctx, o.evalTimeout)
	defer cancel()

	v, err := ev.Evaluate(evalCtx, snap)
	if err != nil {
		o.logger.Warn("evaluator failed",
			zap.String("evaluator", name),
			zap.Error(err),
		)
		o.evaluatorFailed(name)
		return Veto(name, fmt.Sprintf("evaluator failure: %s", name))
	}

	v.Name = name
	o.monitor.Report("evaluator."+name, true)
	return v
}

func (o *Orchestrator) evaluatorFailed(name string) {
	o.monitor.Report("evaluator."+name, false)
	if o.metrics != nil {
		o.metrics.RecordEvaluatorError(name)
	}
}

// combinedConfidence blends approved verdict confidences using the policy
// weights, normalized over the evaluators present. Evaluators without a
// configured weight contribute at weight 1 when no configured evaluator
// matched at all.
func (o *Orchestrator) combinedConfidence(verdicts map[string]Verdict) float64 {
	var weighted, total float64
	for name, v := range verdicts {
		if w, ok := o.policy.Weights[name]; ok && w > 0 {
			weighted += w * v.Confidence
			total += w
		}
	}

	if total == 0 {
		// No policy weight matched any evaluator: plain average
		for _, v := range verdicts {
			weighted += v.Confidence
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func (o *Orchestrator) terminal(outcome Outcome, reason string, verdicts map[string]Verdict, vetoReasons []string) *Decision {
	if outcome == OutcomeReject {
		o.rejectsTotal.Add(1)
	}
	return &Decision{
		ID:           uuid.NewString(),
		Outcome:      outcome,
		Reason:       reason,
		VetoCount:    len(vetoReasons),
		VetoReasons:  vetoReasons,
		Verdicts:     verdicts,
		SystemHealth: o.monitor.SystemHealth(),
		Timestamp:    time.Now().UTC(),
	}
}

func (o *Orchestrator) finish(d *Decision, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordDecision(string(d.Outcome), elapsed)
		o.metrics.RecordHealth(d.SystemHealth, d.SafeMode)
	}

	if o.journal != nil {
		if err := o.journal.Append(d); err != nil {
			o.logger.Warn("journal append failed", zap.Error(err))
			o.monitor.Report("audit", false)
		} else {
			o.monitor.Report("audit", true)
		}
	}

	o.logger.Info("decision complete",
		zap.String("decision_id", d.ID),
		zap.String("outcome", string(d.Outcome)),
		zap.Int("veto_count", d.VetoCount),
		zap.Float64("score", d.Score),
		zap.Duration("elapsed", elapsed),
	)
}

// Stats reports cycle counters for the status surface.
type Stats struct {
	Cycles  uint64 `json:"cycles"`
	Rejects uint64 `json:"rejects"`
	Paused  bool   `json:"paused"`
	Mode    string `json:"mode"`
}

// Stats returns orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Cycles:  o.cyclesTotal.Load(),
		Rejects: o.rejectsTotal.Load(),
		Paused:  o.paused.Load(),
		Mode:    o.mode,
	}
}
