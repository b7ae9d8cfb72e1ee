package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GATEWAY_MANAGER", "GATEWAY_TOKEN", "GATEWAY_IDENTITY",
		"GATEWAY_CUSTOM_FORWARDING", "GATEWAY_LOG_LEVEL", "GATEWAY_LOG_JSON",
		"GATEWAY_WATCHDOG_INTERVAL", "GATEWAY_METRICS_ADDR", "GATEWAY_CONFIG_FILE",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_MANAGER", "wss://manager.example/ws")
	t.Setenv("GATEWAY_TOKEN", "secret-token")
	t.Setenv("GATEWAY_IDENTITY", "gw-east-1")
	t.Setenv("GATEWAY_WATCHDOG_INTERVAL", "5s")
	t.Setenv("GATEWAY_CUSTOM_FORWARDING", "https://a.example/=10.0.0.5:8080,ssh://b.example/=10.0.0.6:22")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://manager.example/ws", cfg.ManagerURL)
	assert.Equal(t, "secret-token", cfg.Token)
	assert.Equal(t, "gw-east-1", cfg.Identity)
	assert.Equal(t, 5*time.Second, cfg.WatchdogInterval)
	assert.Equal(t, "10.0.0.5:8080", cfg.CustomForwarding["https://a.example/"])
	assert.Equal(t, "10.0.0.6:22", cfg.CustomForwarding["ssh://b.example/"])
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaultsWatchdogIntervalWhenUnset(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultWatchdogInterval, cfg.WatchdogInterval)
}

func TestValidateRequiresManagerTokenIdentity(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "GATEWAY_MANAGER")
}

func TestOverlayFileFillsOnlyUnsetFields(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := dir + "/gatewayd.hcl"
	require.NoError(t, os.WriteFile(path, []byte(`
manager_url = "wss://file.example/ws"
identity    = "from-file"
watchdog_interval = "20s"
custom_forwarding = ["https://c.example/=10.0.0.9:443"]
`), 0644))

	t.Setenv("GATEWAY_MANAGER", "wss://env.example/ws")
	t.Setenv("GATEWAY_TOKEN", "tok")
	t.Setenv("GATEWAY_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	// Environment value wins over the file's.
	assert.Equal(t, "wss://env.example/ws", cfg.ManagerURL)
	// File fills in what the environment left unset.
	assert.Equal(t, "from-file", cfg.Identity)
	assert.Equal(t, 20*time.Second, cfg.WatchdogInterval)
	assert.Equal(t, "10.0.0.9:443", cfg.CustomForwarding["https://c.example/"])
}
