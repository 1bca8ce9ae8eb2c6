package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_ValidatesWithAgentID(t *testing.T) {
	cfg := Default()
	cfg.Agent.ID = "agent-1"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RequiresAgentID(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)

	cfg.Agent.ID = "bad id with spaces"
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"agent": {"id": "agent-1", "source_group": "site-a"},
		"nats": {"url": "nats://kv:4222", "reconnect_wait": "3s"},
		"registry": {"heartbeat_window": "2m"},
		"correlation": {"local_latency_threshold": "5ms"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "agent-1", cfg.Agent.ID)
	assert.Equal(t, "nats://kv:4222", cfg.NATS.URL)
	assert.Equal(t, 3*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, 2*time.Minute, cfg.Registry.HeartbeatWindow)
	assert.Equal(t, 5*time.Millisecond, cfg.Correlation.LocalLatencyThreshold)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Registry.RecencyHalfLife, cfg.Registry.RecencyHalfLife)
	assert.Equal(t, Default().Stream.BufferCapacity, cfg.Stream.BufferCapacity)
	assert.Equal(t, "bridgekit-registry", cfg.NATS.RegistryBucket)
}

func TestLoad_LaterLayersWin(t *testing.T) {
	base := writeConfigFile(t, `{"agent": {"id": "agent-1"}, "metrics": {"listen_addr": ":9000"}}`)
	over := writeConfigFile(t, `{"metrics": {"listen_addr": ":9100"}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(over)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "agent-1", cfg.Agent.ID)
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BRIDGEKIT_AGENT_ID", "env-agent")
	t.Setenv("BRIDGEKIT_NATS_URL", "nats://env:4222")

	path := writeConfigFile(t, `{"agent": {"id": "file-agent"}}`)
	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "env-agent", cfg.Agent.ID)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeConfigFile(t, `{"agent": {"id": "agent-1"}, "stream": {"high_water": 0.2, "low_water": 0.9}}`)
	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestSafeConfig_UpdateValidates(t *testing.T) {
	cfg := Default()
	cfg.Agent.ID = "agent-1"
	sc := NewSafeConfig(cfg)

	bad := sc.Get()
	bad.Agent.ID = ""
	assert.Error(t, sc.Update(bad))
	assert.Equal(t, "agent-1", sc.Get().Agent.ID)

	good := sc.Get()
	good.Metrics.ListenAddr = ":9999"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, ":9999", sc.Get().Metrics.ListenAddr)
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	cfg.Agent.ID = "agent-1"

	clone := cfg.Clone()
	clone.Agent.ID = "agent-2"
	assert.Equal(t, "agent-1", cfg.Agent.ID)
}
