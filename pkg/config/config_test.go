package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry())
	assert.Equal(t, 14*24*time.Hour, cfg.Alerts.TTL())
	assert.Equal(t, []string{"gmail.com", "googlemail.com"}, cfg.OAuth.FederatedDomains)
	assert.False(t, cfg.OAuth.GoogleEnabled())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "log", cfg.Push.Driver)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.chimeo.io, https://admin.chimeo.io")
	t.Setenv("ALERT_TTL_DAYS", "3")
	t.Setenv("GEOCODER_DEFAULT_LAT", "33.2148")
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, []string{"https://app.chimeo.io", "https://admin.chimeo.io"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*24*time.Hour, cfg.Alerts.TTL())
	assert.InDelta(t, 33.2148, cfg.Geocoder.DefaultLat, 0.0001)
	assert.True(t, cfg.OAuth.GoogleEnabled())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "chimeo", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=chimeo sslmode=disable", d.DSN())
}
