package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// unset clears keys for the duration of the test
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	unset(t, "DB_NAME", "TENANT_CACHE_NAMESPACE", "AMQP_SESSIONS_REVOKED_QUEUE", "AMQP_PUBLISH_TIMEOUT",
		"REDIS_TIMEOUT", "REDIS_ADDR", "DB_LOG_LEVEL", "JWT_EXPIRATION_HOURS")

	cfg, err := Load("tenant-service")
	require.NoError(t, err)

	assert.Equal(t, "tenant-service", cfg.DB.DBName)
	assert.Equal(t, "selected_tcid", cfg.Cache.Namespace)
	assert.Equal(t, "tenant.sessions.revoked", cfg.AMQP.RevokedQueue)
	assert.Equal(t, 5*time.Second, cfg.AMQP.PublishTimeout)
	assert.Equal(t, 2*time.Second, cfg.Redis.Timeout)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, logger.Warn, cfg.DB.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TENANT_CACHE_NAMESPACE", "tcid")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AMQP_PUBLISH_TIMEOUT", "750ms")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("JWT_EXPIRATION_HOURS", "not-a-number")

	cfg, err := Load("tenant-service")
	require.NoError(t, err)

	assert.Equal(t, "tcid", cfg.Cache.Namespace)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 750*time.Millisecond, cfg.AMQP.PublishTimeout)
	assert.Equal(t, logger.Silent, cfg.DB.LogLevel)
	assert.Equal(t, 24, cfg.JWT.ExpirationHours)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("TENANT_CACHE_NAMESPACE", "")
	_, err := Load("tenant-service")
	assert.Error(t, err)

	t.Setenv("TENANT_CACHE_NAMESPACE", "selected_tcid")
	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	_, err = Load("tenant-service")
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.GetDSN())
}
