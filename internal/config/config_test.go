package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("LAPIDA_ORIGIN", "")
	t.Setenv("LAPIDA_API_PORTS", "")
	t.Setenv("SEARCH_PAGE_SIZE", "")

	cfg := config.NewConfig()

	assert.Equal(t, "http://localhost:3000", cfg.DiscoveryConfig.Origin)
	assert.Equal(t, config.DefaultPorts, cfg.DiscoveryConfig.Ports)
	assert.Equal(t, 12, cfg.SearchConfig.PageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchConfig.QueryDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.SearchConfig.FilterDebounce)
	assert.Nil(t, cfg.HTTPConfig.AuthToken)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("LAPIDA_ORIGIN", "https://lapida.example/")
	t.Setenv("LAPIDA_API_PORTS", "5005, 8080")
	t.Setenv("LAPIDA_AUTH_TOKEN", "secret")
	t.Setenv("HTTP_TIMEOUT_SECS", "7")

	cfg := config.NewConfig()

	assert.Equal(t, "https://lapida.example", cfg.DiscoveryConfig.Origin)
	assert.Equal(t, []int{5005, 8080}, cfg.DiscoveryConfig.Ports)
	require.NotNil(t, cfg.HTTPConfig.AuthToken)
	assert.Equal(t, "secret", *cfg.HTTPConfig.AuthToken)
	assert.Equal(t, 7*time.Second, cfg.HTTPConfig.Timeout)
}

func TestLoadDefaultInts_MalformedFallsBack(t *testing.T) {
	t.Setenv("PORT_LIST", "5000,abc")
	assert.Equal(t, []int{1, 2}, config.LoadDefaultInts("PORT_LIST", []int{1, 2}))

	t.Setenv("PORT_LIST", "5000,-1")
	assert.Equal(t, []int{1, 2}, config.LoadDefaultInts("PORT_LIST", []int{1, 2}))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LAPIDA_TEST_FROM_DOTENV=yes\n"), 0o600))
	t.Setenv("LAPIDA_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("LAPIDA_TEST_FROM_DOTENV"))

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("LAPIDA_TEST_FROM_DOTENV"))

	assert.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoadRequiredString_Panics(t *testing.T) {
	t.Setenv("LAPIDA_REQUIRED", "")
	assert.Panics(t, func() { config.LoadRequiredString("LAPIDA_REQUIRED") })
}
