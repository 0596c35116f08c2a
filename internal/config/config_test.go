package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INVOFOX_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Settlement.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.Settlement.BaseDelay)
	assert.Equal(t, time.UTC, cfg.Settlement.Location())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invofox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
storage:
  backend: memory
settlement:
  max_attempts: 5
  base_delay: 10ms
  timezone: Asia/Jerusalem
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
`), 0o644))

	t.Setenv("INVOFOX_CONFIG", path)
	t.Setenv("APP_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Settlement.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Settlement.BaseDelay)
	assert.Equal(t, "Asia/Jerusalem", cfg.Settlement.Location().String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Settlement.JitterPercent)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "mongo"
	cfg.Settlement.MaxAttempts = 0
	cfg.Settlement.Timezone = "Mars/Base"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "timezone")

	cfg = Default()
	cfg.Storage.Backend = BackendFirestore
	assert.ErrorContains(t, cfg.Validate(), "project_id")
}
