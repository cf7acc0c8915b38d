package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3013, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3013", cfg.Server.APIBaseURL)
	assert.NotEmpty(t, cfg.Server.ServerID)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 10, cfg.Engine.MaxWorkers)
	assert.Equal(t, "workscript", cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "4000")
	t.Setenv("API_BASE_URL", "http://api.internal:4000")
	t.Setenv("SERVER_ID", "node-7")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "http://api.internal:4000", cfg.Server.APIBaseURL)
	assert.Equal(t, "node-7", cfg.Server.ServerID)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestDSNAndAddr(t *testing.T) {
	db := DatabaseConfig{
		Host: "dbhost", Port: 5433, User: "u", Password: "p",
		Database: "workscript", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=dbhost port=5433 user=u password=p dbname=workscript sslmode=disable",
		db.DSN())

	r := RedisConfig{Host: "redishost", Port: 6380}
	assert.Equal(t, "redishost:6380", r.Addr())
}
