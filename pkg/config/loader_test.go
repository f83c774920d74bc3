package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsOnly(t *testing.T) {
	cfg, err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, "./data_store", cfg.Storage.DataRoot)
	assert.Equal(t, 0.60, cfg.Classifier.ChatThreshold)
	assert.Equal(t, 0.40, cfg.Classifier.AgentThreshold)
	assert.Equal(t, 20, cfg.Agent.BaseSteps)
	assert.Equal(t, 100, cfg.Agent.StepCeiling)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavTimeout.Std())
	assert.NotEmpty(t, cfg.Browser.UserAgents)
}

func TestInitialize_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexagent.yaml")
	content := `
server:
  port: "9100"
agent:
  base_steps: 10
  step_ceiling: 50
browser:
  nav_timeout: 5s
  nav_timeout_ceiling: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host) // default survives
	assert.Equal(t, 10, cfg.Agent.BaseSteps)
	assert.Equal(t, 50, cfg.Agent.StepCeiling)
	assert.Equal(t, 5*time.Second, cfg.Browser.NavTimeout.Std())
	// Untouched sections keep their defaults.
	assert.NotEmpty(t, cfg.Browser.AntiScrapingPatterns)
}

func TestInitialize_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "7777")
	t.Setenv(EnvDataRoot, "/tmp/nexa-test")

	cfg, err := Initialize("")
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "/tmp/nexa-test", cfg.Storage.DataRoot)
}

func TestInitialize_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  base_steps: 80\n  step_ceiling: 40\n"), 0o644))

	_, err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step_ceiling")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NEXA_TEST_KEY", "secret-123")

	out := ExpandEnv([]byte("search:\n  api_key: \"{{.NEXA_TEST_KEY}}\"\n"))
	assert.Contains(t, string(out), "secret-123")

	// Literal $ survives untouched (regex patterns in config).
	out = ExpandEnv([]byte("patterns:\n  - \"^secret.*$\"\n"))
	assert.Contains(t, string(out), "^secret.*$")
}

func TestDuration_Unmarshal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  llm_timeout: bogus\n"), 0o644))

	_, err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
