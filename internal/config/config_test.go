package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Hostname)
	assert.Equal(t, ProviderScripted, cfg.Provider.Kind)
}

func TestLoadJSONCFile(t *testing.T) {
	dir := t.TempDir()
	content := `{
		// development settings
		"port": 9999,
		"provider": {
			"kind": "http",
			"baseURL": "http://localhost:4000/v1",
		},
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inkwell.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, ProviderHTTP, cfg.Provider.Kind)
	assert.Equal(t, "http://localhost:4000/v1", cfg.Provider.BaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inkwell.json"), []byte(`{"port": 9000}`), 0644))

	t.Setenv("INKWELL_PORT", "7000")
	t.Setenv("INKWELL_PROVIDER", "http")
	t.Setenv("INKWELL_MODEL", "test-model")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, ProviderHTTP, cfg.Provider.Kind)
	assert.Equal(t, "test-model", cfg.Provider.Model)
}

func TestOpenAIEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "https://api.example.com/v1")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "https://api.example.com/v1", cfg.Provider.BaseURL)
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INKWELL_LOG_LEVEL=DEBUG\n"), 0644))
	t.Setenv("INKWELL_LOG_LEVEL", "") // ensure a clean slate; godotenv fills it

	// godotenv does not overwrite existing vars, so clear it entirely.
	os.Unsetenv("INKWELL_LOG_LEVEL")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestMalformedConfigFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inkwell.json"), []byte(`{"port": "not a number"`), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
