package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf.yaml")
	err := os.WriteFile(file, []byte(`
name: tasks-test
httpServer:
  addr: ":9090"
engine:
  definitionCacheSize: 5
  definitionCacheTTL: PT1H30M
  scriptPoolMax: 4
  scriptPoolMin: 2
log:
  level: warn
`), 0o600)
	require.NoError(t, err)

	conf, err := ReadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, "tasks-test", conf.Name)
	assert.Equal(t, ":9090", conf.HttpServer.Addr)
	assert.Equal(t, "/", conf.HttpServer.Context)
	assert.Equal(t, 5, conf.Engine.DefinitionCacheSize)
	assert.Equal(t, 4, conf.Engine.ScriptPoolMax)
	assert.Equal(t, "warn", conf.Log.Level)
	ttl, err := conf.Engine.CacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, ttl)
}

func TestReadConfigDefaults(t *testing.T) {
	conf, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", conf.HttpServer.Addr)
	assert.Equal(t, 100, conf.Engine.DefinitionCacheSize)
	ttl, err := conf.Engine.CacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestReadConfigFromEnv(t *testing.T) {
	t.Setenv("REST_API_ADDR", ":7070")
	t.Setenv("ENGINE_SCRIPT_POOL_MAX", "16")

	conf, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", conf.HttpServer.Addr)
	assert.Equal(t, 16, conf.Engine.ScriptPoolMax)
}

func TestInvalidEngineConfigIsRejected(t *testing.T) {
	t.Setenv("ENGINE_DEFINITION_CACHE_TTL", "ten minutes")
	t.Setenv("ENGINE_SCRIPT_POOL_MIN", "9")

	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.ErrorContains(t, err, "definitionCacheTTL")
	assert.ErrorContains(t, err, "script pool")
}
