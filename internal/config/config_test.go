package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Workers.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Workers.DefaultMaxWait)
	assert.Equal(t, 60*time.Second, cfg.Workers.HardTimeout)
	assert.Equal(t, "https://www.google.com/search?udm=50&q=", cfg.Scraper.StartURL)
	assert.Equal(t, "textarea[jsname='qyBLR']", cfg.Scraper.SearchBoxSelector)
	assert.Equal(t, time.Second, cfg.Scraper.PollInterval)
	assert.Equal(t, 3840, cfg.Window.ScreenWidth)
	assert.Equal(t, 40, cfg.Window.Margin)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("HEADLESS_MODE", "true")
	t.Setenv("CAPTCHA_API_KEY", "captcha-key")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Workers.PoolSize)
	assert.True(t, cfg.Scraper.HeadlessMode)
	assert.Equal(t, "captcha-key", cfg.Scraper.Captcha.APIKey)
	assert.True(t, cfg.Scraper.Captcha.EnableAutoSolve)
}

func TestLoadConfigExpandsEnvVarsInYAML(t *testing.T) {
	t.Setenv("TEST_API_KEY_VALUE", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  api_key: \"${TEST_API_KEY_VALUE}\"\n  port: 8080\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfigUnsetEnvVarExpandsEmpty(t *testing.T) {
	require.NoError(t, os.Unsetenv("TEST_UNSET_KEY_VALUE"))

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  api_key: \"${TEST_UNSET_KEY_VALUE}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// The placeholder must not survive as a literal key, an empty value
	// means authentication stays disabled.
	assert.Empty(t, cfg.Server.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.Workers.PoolSize = 0
	assert.Error(t, cfg.Validate())

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	cfg.Window.WindowWidth = 0
	assert.Error(t, cfg.Validate())

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	cfg.Scraper.PollInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestProxyEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.ProxyEnabled())

	cfg.Proxy.Host = "proxy.example.com"
	assert.False(t, cfg.ProxyEnabled())

	cfg.Proxy.Port = 8080
	assert.True(t, cfg.ProxyEnabled())
	assert.Equal(t, "http://proxy.example.com:8080", cfg.ProxyServerFlag())
}
