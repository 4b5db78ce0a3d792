package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "CLAIM_TTL", "CLAIM_RATE_LIMIT", "HANDOFF_BCRYPT_COST"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite://lostfound.db", cfg.DatabaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.ClaimTTL)
	assert.Equal(t, 5, cfg.ClaimRateLimit)
	assert.Equal(t, 12, cfg.HandoffBcryptCost)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CLAIM_TTL", "48h")
	t.Setenv("THREAD_IDLE_TTL", "90m")
	t.Setenv("CLAIM_RATE_LIMIT", "3")
	t.Setenv("ENV", "production")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 48*time.Hour, cfg.ClaimTTL)
	assert.Equal(t, 90*time.Minute, cfg.ThreadIdleTTL)
	assert.Equal(t, 3, cfg.ClaimRateLimit)
	assert.True(t, cfg.IsProduction())
}

func TestValidateJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "development")
	require.NoError(t, Load().Validate())

	t.Setenv("ENV", "production")
	cfg := Load()
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	assert.NoError(t, Load().Validate())
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CLAIM_TTL", "a week")
	t.Setenv("CLAIM_RATE_WINDOW", "-5m")
	t.Setenv("CLAIM_RATE_LIMIT", "many")

	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.ClaimTTL)
	assert.Equal(t, time.Hour, cfg.ClaimRateWindow)
	assert.Equal(t, 5, cfg.ClaimRateLimit)
}

func TestOpenSQL(t *testing.T) {
	db, err := OpenSQL("sqlite://file::memory:", true)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.Equal(t, "sqlite", db.Dialector.Name())

	_, err = OpenSQL("mysql://localhost/db", true)
	assert.ErrorContains(t, err, "unsupported DATABASE_URL scheme")
}
