package health

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/logging"
)

// DefaultMinHealth is the system health score below which safe mode
// activates.
const DefaultMinHealth = 50.0

// DefaultFailureFlagThreshold is the consecutive-failure count that flags a
// module unhealthy.
const DefaultFailureFlagThreshold = 3

// FallbackSettings is the conservative configuration substituted while safe
// mode is active.
type FallbackSettings struct {
	MinScoreRequirement  float64 `json:"min_score_requirement"`
	PositionSize         float64 `json:"position_size"`
	MaxConcurrentActions int     `json:"max_concurrent_actions"`
	RequireConfirmations bool    `json:"require_confirmations"`
}

// DefaultFallbackSettings mirrors the tightest operating profile: near-max
// score bar, minimum position, one action at a time.
func DefaultFallbackSettings() FallbackSettings {
	return FallbackSettings{
		MinScoreRequirement:  95,
		PositionSize:         0.001,
		MaxConcurrentActions: 1,
		RequireConfirmations: true,
	}
}

type moduleState struct {
	failures  int
	unhealthy bool
}

// Monitor aggregates failure signals from named modules into one 0-100
// health score and decides when the conservative fallback mode applies.
// Nothing is persisted across restarts.
type Monitor struct {
	minHealth     float64
	flagThreshold int
	fallback      FallbackSettings
	logger        *logging.Logger

	mu       sync.Mutex
	modules  map[string]*moduleState
	safeMode bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMinHealth overrides the safe-mode activation threshold.
func WithMinHealth(minHealth float64) Option {
	return func(m *Monitor) { m.minHealth = minHealth }
}

// WithFlagThreshold overrides the consecutive-failure flag count.
func WithFlagThreshold(n int) Option {
	return func(m *Monitor) { m.flagThreshold = n }
}

// WithFallback overrides the fallback settings.
func WithFallback(fb FallbackSettings) Option {
	return func(m *Monitor) { m.fallback = fb }
}

// NewMonitor creates a monitor with no modules reported; system health
// starts at 100.
func NewMonitor(logger *logging.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		minHealth:     DefaultMinHealth,
		flagThreshold: DefaultFailureFlagThreshold,
		fallback:      DefaultFallbackSettings(),
		logger:        logger,
		modules:       make(map[string]*moduleState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report records one healthy/unhealthy observation for a module. A healthy
// report clears the module's failure streak and flag; recovery is
// automatic, no manual reset is required.
func (m *Monitor) Report(module string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.modules[module]
	if !ok {
		state = &moduleState{}
		m.modules[module] = state
	}

	if healthy {
		state.failures = 0
		if state.unhealthy {
			state.unhealthy = false
			m.logger.Info("module recovered", zap.String("module", module))
		}
		return
	}

	state.failures++
	if state.failures >= m.flagThreshold && !state.unhealthy {
		state.unhealthy = true
		m.logger.Warn("module flagged unhealthy",
			zap.String("module", module),
			zap.Int("consecutive_failures", state.failures),
		)
	}
}

// SystemHealth returns the percentage of modules currently healthy,
// recomputed on every call. With no modules reported it is 100.
func (m *Monitor) SystemHealth() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.systemHealthLocked()
}

func (m *Monitor) systemHealthLocked() float64 {
	if len(m.modules) == 0 {
		return 100
	}

	healthy := 0
	for _, state := range m.modules {
		if !state.unhealthy {
			healthy++
		}
	}
	return float64(healthy) / float64(len(m.modules)) * 100
}

// SafeModeActive reports whether system health is below the activation
// threshold. The flag clears on its own once health recovers.
func (m *Monitor) SafeModeActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.systemHealthLocked() < m.minHealth
	if active && !m.safeMode {
		m.logger.Warn("safe mode activated",
			zap.Float64("system_health", m.systemHealthLocked()),
			zap.Float64("threshold", m.minHealth),
		)
	}
	m.safeMode = active
	return active
}

// Fallback returns the conservative settings the orchestrator must use
// while safe mode is active.
func (m *Monitor) Fallback() FallbackSettings {
	return m.fallback
}

// ModuleHealth describes one module's state in a status report.
type ModuleHealth struct {
	FailureCount int  `json:"failure_count"`
	Healthy      bool `json:"healthy"`
}

// Report snapshot, consumed by the observability surface.
type Report struct {
	SystemHealth float64                 `json:"system_health"`
	SafeMode     bool                    `json:"safe_mode"`
	Modules      map[string]ModuleHealth `json:"modules"`
}

// Status returns a read-only report of system and per-module health.
func (m *Monitor) Status() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	modules := make(map[string]ModuleHealth, len(m.modules))
	for name, state := range m.modules {
		modules[name] = ModuleHealth{
			FailureCount: state.failures,
			Healthy:      !state.unhealthy,
		}
	}

	health := m.systemHealthLocked()
	return Report{
		SystemHealth: health,
		SafeMode:     health < m.minHealth,
		Modules:      modules,
	}
}
