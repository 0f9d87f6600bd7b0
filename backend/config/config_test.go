package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) *viper.Viper {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codeweaveConfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	v := viper.New()
	v.SetConfigFile(path)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(writeConfig(t, "running:\n  port: 3000\n"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Running.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "dev_secret_key_123", cfg.Auth.JWTSecret)
	assert.Equal(t, 5, cfg.Relay.MaxParticipants)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 5*time.Second, cfg.Relay.CheckpointInterval)
	assert.Equal(t, "codeweave.edits", cfg.Kafka.Topic)
}

func TestLoadFileValues(t *testing.T) {
	cfg, err := load(writeConfig(t, `
relay:
  maxParticipants: 0
  checkpointInterval: 2s
kafka:
  brokers: ["k1:9092", "k2:9092"]
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Relay.MaxParticipants)
	assert.Equal(t, 2*time.Second, cfg.Relay.CheckpointInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "8080")

	cfg, err := load(writeConfig(t, "running:\n  port: 3000\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Running.Port)
	assert.Equal(t, StoreMongo, cfg.Store.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.Auth.JWTSecret = "secret"
	cfg.AI.APIKey = "sk-123"

	r := cfg.Redacted()
	assert.Equal(t, "***", r.Auth.JWTSecret)
	assert.Equal(t, "***", r.AI.APIKey)
	assert.Equal(t, "", r.Mongo.URI)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
}
