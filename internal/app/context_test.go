package app_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/app"
	"servicehub/internal/config"
	"servicehub/internal/migrate"
)

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	ws, err := app.Open(app.Options{Workspace: dir, LogLevel: "debug", LogFormat: "json", LogOut: &out})
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, "servicehub", ws.Config.Marketplace.Name)
	v, err := migrate.Version(ws.DB)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, 1)
	assert.Contains(t, out.String(), "workspace opened")
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("log:\n  level: loud\n"), 0o644))
	_, err := app.Open(app.Options{Workspace: dir})
	assert.ErrorContains(t, err, "config.log.level")

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("cleaners")), 0o644))
	_, err = app.Open(app.Options{Workspace: dir, LogFormat: "xml"})
	assert.ErrorContains(t, err, "config.log.format")
}
