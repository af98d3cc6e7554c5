package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.AppAddr)
	assert.Equal(t, "fleet_rental", cfg.MongoDB)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 3*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 20, cfg.SubmitRateLimit)
	assert.Empty(t, cfg.MQTTBroker)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("ORACLE_TIMEOUT", "750ms")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.OracleTimeout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)

	_, isJSON := cfg.NewLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MONGO_DB=from_file\nSUBMIT_RATE_LIMIT=5\n"), 0o600))
	t.Setenv("SUBMIT_RATE_LIMIT", "7")
	// godotenv sets MONGO_DB for the process; restore it afterwards.
	t.Setenv("MONGO_DB", "")
	require.NoError(t, os.Unsetenv("MONGO_DB"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.MongoDB)
	assert.Equal(t, 7, cfg.SubmitRateLimit)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	base := Config{JWTExpiry: time.Hour, OracleTimeout: time.Second, LogLevel: "info", LogFormat: "text"}
	require.NoError(t, base.Validate())

	bad := base
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())

	bad = base
	bad.LogFormat = "xml"
	assert.Error(t, bad.Validate())

	bad = base
	bad.OracleTimeout = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.SubmitRateLimit = -1
	assert.Error(t, bad.Validate())
}
