package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8600", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.OpenTimeout)
	assert.Equal(t, 50, cfg.RateLimit.OrdersPerSecond)
	assert.Equal(t, 1200, cfg.RateLimit.WeightPerMinute)
	assert.Equal(t, 200000, cfg.RateLimit.OrdersPerDay)
	assert.Equal(t, "hybrid", cfg.Decision.Mode)
	assert.Equal(t, 50.0, cfg.Health.MinHealthForNormalMode)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("DECISION_MODE", "auto")
	t.Setenv("LIMIT_ORDERS_PER_SECOND", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "auto", cfg.Decision.Mode)
	assert.Equal(t, 10, cfg.RateLimit.OrdersPerSecond)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero failure threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"zero probe budget", func(c *Config) { c.Breaker.HalfOpenMaxProbes = 0 }},
		{"negative rate ceiling", func(c *Config) { c.RateLimit.WeightPerMinute = -1 }},
		{"zero cache size", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"health threshold out of range", func(c *Config) { c.Health.MinHealthForNormalMode = 150 }},
		{"unknown decision mode", func(c *Config) { c.Decision.Mode = "yolo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("DECISION_MODE", "manual")

	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultPolicyWeights(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 0.4, p.Weights["technical"])
	assert.Equal(t, 0.3, p.Weights["history"])
	assert.Equal(t, 0.3, p.Weights["temporal"])
	assert.Equal(t, 90.0, p.ExecuteScore)
	assert.Equal(t, 0.8, p.ExecuteConf)
}

func TestDecisionPolicySeedsFromEnvironment(t *testing.T) {
	t.Setenv("DECISION_EXECUTE_SCORE", "85")
	t.Setenv("DECISION_EXECUTE_CONFIDENCE", "0.7")

	cfg, err := Load()
	require.NoError(t, err)

	p, err := cfg.DecisionPolicy()
	require.NoError(t, err)
	assert.Equal(t, 85.0, p.ExecuteScore)
	assert.Equal(t, 0.7, p.ExecuteConf)
	assert.Equal(t, DefaultPolicy().Weights, p.Weights)
}

func TestDecisionPolicyFileOverridesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execute_score: 95\n"), 0o644))

	t.Setenv("DECISION_EXECUTE_SCORE", "85")
	t.Setenv("DECISION_EXECUTE_CONFIDENCE", "0.7")
	t.Setenv("DECISION_POLICY_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	p, err := cfg.DecisionPolicy()
	require.NoError(t, err)
	assert.Equal(t, 95.0, p.ExecuteScore)
	// Keys the file omits keep their environment-seeded values.
	assert.Equal(t, 0.7, p.ExecuteConf)
}

func TestLoadPolicyEmptyPathReturnsDefault(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicyFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := []byte("weights:\n  technical: 0.5\n  history: 0.25\n  temporal: 0.25\nexecute_score: 85\nexecute_confidence: 0.75\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Weights["technical"])
	assert.Equal(t, 85.0, p.ExecuteScore)
	assert.Equal(t, 0.75, p.ExecuteConf)
}

func TestLoadPolicyRejectsNegativeWeight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  technical: -0.5\n"), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
