package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("acme")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "acme", cfg.Marketplace.Name)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.True(t, cfg.IsCatalogAdmin("admin"))
	assert.False(t, cfg.IsCatalogAdmin("client-1"))
	assert.False(t, cfg.IsCatalogAdmin(""))
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("marketplace:\n  name: cleaners\nlog:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "cleaners", cfg.Marketplace.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad level":        "log:\n  level: loud\n",
		"bad format":       "log:\n  format: xml\n",
		"base path":        "server:\n  base_path: v0\n",
		"burst":            "server:\n  rate_limit:\n    rps: 5\n    burst: 0\n",
		"empty admin":      "catalog:\n  admins: [\"\"]\n",
		"dev login secret": "auth:\n  dev_login: true\n",
		"blank name":       "marketplace:\n  name: \"\"\n",
		"broken yaml":      "log: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = config.Load(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(config.GenerateDefault("x")), 0o644))
	cfg, err = config.LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	out, err := cfg.YAML()
	require.NoError(t, err)
	again, err := config.FromYAML(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte("log: ["), 0o644))
	_, err = config.LoadOptional(dir)
	assert.Error(t, err)
}
