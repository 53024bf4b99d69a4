package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
minio:
  endpoint: minio:9000
token:
  secret: s3cret
export:
  owner_password: owner
  user_password: user
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://minio:9000", cfg.MinIO.PublicURL)
	assert.Equal(t, "facegate", cfg.MinIO.Bucket)
	assert.Equal(t, 2*time.Second, cfg.Scan.Duration)
	assert.Equal(t, 2*time.Second, cfg.Verification.FallbackDelay)
	assert.Equal(t, 3, cfg.Export.ThumbnailAttempts)
	assert.Equal(t, "/dev/video0", cfg.Camera.FrontDevice)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
scan:
  duration: 500ms
verification:
  fallback_delay: 3s
minio:
  endpoint: s3.local
  use_ssl: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.Duration)
	assert.Equal(t, 3*time.Second, cfg.Verification.FallbackDelay)
	assert.Equal(t, "https://s3.local", cfg.MinIO.PublicURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db
`)
	t.Setenv("FG_SERVER_PORT", "7000")
	t.Setenv("FG_DB_HOST", "pg.internal")
	t.Setenv("FG_TOKEN_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.Token.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate_MissingSecrets(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token.secret")
	assert.Contains(t, err.Error(), "export.owner_password")
	assert.Contains(t, err.Error(), "minio.endpoint")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, Name: "n", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", d.DSN())
}
