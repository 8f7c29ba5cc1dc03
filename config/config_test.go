package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD=X", "GBPUSD=X", "USDJPY=X", "GC=F", "SI=F"}, cfg.Symbols.Watch)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 70, cfg.LLM.MinConfidence)
	assert.Equal(t, 10, cfg.LLM.DisplayFloor)
	assert.InDelta(t, 10.0, cfg.Risk.RiskPercent, 1e-9)
	assert.InDelta(t, 100.0, cfg.Risk.VirtualBalance, 1e-9)
	assert.Equal(t, 5, cfg.LLM.SelfAssessAfterZero)
	assert.Equal(t, 48*time.Hour, cfg.ForceCloseAge())
	assert.Equal(t, 5*time.Hour, cfg.CooldownWindow())
	assert.Equal(t, 180*time.Second, cfg.LLMTimeout())
	assert.Contains(t, cfg.Symbols.Fallbacks, "GC=F")
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
symbols:
  watch: ["EURUSD=X"]
risk:
  risk_percent: 5
  virtual_balance: 250
llm:
  provider: ollama
  min_confidence: 80
scan:
  passes: 1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD=X"}, cfg.Symbols.Watch)
	assert.InDelta(t, 5.0, cfg.Risk.RiskPercent, 1e-9)
	assert.InDelta(t, 250.0, cfg.Risk.VirtualBalance, 1e-9)
	assert.Equal(t, 80, cfg.LLM.MinConfidence)
	assert.Equal(t, 1, cfg.Scan.Passes)
	// Lo no especificado conserva el default.
	assert.InDelta(t, 1.5, cfg.Risk.MinRiskReward, 1e-9)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("SNIPER_DSN", ":memory:")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "test-key", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Run("gemini without api key", func(t *testing.T) {
		cfg := &Config{}
		setDefaults(cfg)
		cfg.LLM.Provider = "gemini"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := &Config{}
		setDefaults(cfg)
		cfg.LLM.Provider = "gpt-sometimes"
		assert.Error(t, cfg.Validate())
	})

	t.Run("min rr above cap", func(t *testing.T) {
		cfg := &Config{}
		setDefaults(cfg)
		cfg.Risk.MinRiskReward = 20
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty watch list", func(t *testing.T) {
		cfg := &Config{}
		setDefaults(cfg)
		cfg.Symbols.Watch = nil
		assert.Error(t, cfg.Validate())
	})
}
