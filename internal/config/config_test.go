package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "EPSG:4326", cfg.CRS.Default)
	assert.Equal(t, "ogr2ogr", cfg.Export.Ogr2ogrPath)
	assert.Equal(t, "public", cfg.Export.Schema)
	assert.Equal(t, 5*time.Minute, cfg.Export.ToolTimeout())
	assert.Equal(t, "public", cfg.Store.Schema)
	assert.Equal(t, 10000, cfg.Store.BatchSize)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, "geodata.db", cfg.Store.JournalPath)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "geodata/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 5*time.Minute, cfg.Fetch.Timeout())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(256<<20), cfg.Server.MaxUploadBytes())
	assert.Equal(t, 4, cfg.Batch.Concurrency)

	assert.NoError(t, cfg.Validate("convert"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
crs:
  default: EPSG:3857
export:
  ogr2ogr_path: /opt/gdal/bin/ogr2ogr
server:
  port: 9090
  allowed_origins: ["https://maps.example.com"]
batch:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "/opt/gdal/bin/ogr2ogr", cfg.Export.Ogr2ogrPath)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://maps.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, "public", cfg.Export.Schema)

	def, err := cfg.CRS.DefaultCRS()
	require.NoError(t, err)
	assert.Equal(t, 3857, def.EPSG())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
store:
  schema: staging
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("GEODATA_LOG_LEVEL", "warn")
	t.Setenv("GEODATA_STORE_SCHEMA", "gis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "gis", cfg.Store.Schema)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("GEODATA_STORE_DATABASE_URL=postgres://localhost/gis\n"), 0o644))
	t.Setenv("GEODATA_SERVER_PORT", "3000")
	t.Cleanup(func() { os.Unsetenv("GEODATA_STORE_DATABASE_URL") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/gis", cfg.Store.DatabaseURL)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestDefaultCRS(t *testing.T) {
	c, err := CRSConfig{}.DefaultCRS()
	require.NoError(t, err)
	assert.True(t, c.Equal(crs.WGS84))

	c, err = CRSConfig{Default: "3857"}.DefaultCRS()
	require.NoError(t, err)
	assert.Equal(t, 3857, c.EPSG())

	_, err = CRSConfig{Default: "not a crs"}.DefaultCRS()
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults Validate depends on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.CRS.Default = "EPSG:4326"
	cfg.Batch.Concurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateLoad(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/gis"
	assert.NoError(t, cfg.Validate("load"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.CRS.Default = "bogus"
	cfg.Batch.Concurrency = 0

	err := cfg.Validate("convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crs.default")
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 64")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
