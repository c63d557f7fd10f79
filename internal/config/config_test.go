package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", ":9090")
	t.Setenv("REPORT_CACHE_TTL", "30s")
	t.Setenv("WEBHOOK_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Http.Port)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, "minio", cfg.Photos.Store)
	assert.EqualValues(t, 5<<20, cfg.Photos.MaxBytes)
	assert.True(t, cfg.Webhook.Disabled, "no URL disables webhooks")
	assert.Equal(t, 256, cfg.Feed.Buffer)
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Http:     HttpConfig{Port: ":8080"},
			Postgres: PostgresConfig{Host: "db"},
			Auth:     AuthConfig{JWTSecret: "s"},
			Photos:   PhotoConfig{Store: "minio", MaxBytes: 1},
		}
	}

	cases := map[string]func(c *Config){
		"port without colon": func(c *Config) { c.Http.Port = "8080" },
		"no postgres host":   func(c *Config) { c.Postgres.Host = "" },
		"no jwt secret":      func(c *Config) { c.Auth.JWTSecret = "" },
		"unknown store":      func(c *Config) { c.Photos.Store = "s3" },
		"cloudinary no keys": func(c *Config) { c.Photos.Store = "cloudinary" },
		"zero max bytes":     func(c *Config) { c.Photos.MaxBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.True(t, getEnvBool("X_BOOL", true))
}
