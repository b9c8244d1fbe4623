package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestLoadConfigDefaults(t *testing.T) {
	withEnv(t, map[string]string{})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreBackendFile, cfg.StoreBackend)
	assert.Equal(t, LockBackendMemory, cfg.LockBackend)
	assert.Equal(t, ResetModeCalendar, cfg.ResetMode)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 6379, cfg.CachePort)
	assert.Equal(t, "free", cfg.FreePlanID)
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	withEnv(t, map[string]string{"LEDGER_STORE": "mongo"})

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_STORE")
}

func TestLoadConfigMySQLRequiresDBName(t *testing.T) {
	withEnv(t, map[string]string{"LEDGER_STORE": "mysql"})

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRollingReset(t *testing.T) {
	withEnv(t, map[string]string{"USAGE_RESET_MODE": "rolling", "USAGE_ROLLING_DAYS": "0"})
	_, err := LoadConfig()
	require.Error(t, err)

	withEnv(t, map[string]string{"USAGE_RESET_MODE": "rolling", "USAGE_ROLLING_DAYS": "7"})
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RollingPeriodDay)
}

func TestResetLocation(t *testing.T) {
	cfg := &Config{ResetTimezone: "UTC"}
	loc, err := cfg.ResetLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.ResetTimezone = "Not/AZone"
	_, err = cfg.ResetLocation()
	require.Error(t, err)
}

func TestSnapshotRequiresFileStoreAndBucket(t *testing.T) {
	withEnv(t, map[string]string{"SNAPSHOT_ENABLED": "true"})
	_, err := LoadConfig()
	require.Error(t, err)

	withEnv(t, map[string]string{
		"SNAPSHOT_ENABLED":     "true",
		"S3_BUCKET_NAME":       "ledger-backups",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
	})
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.SnapshotEnabled)
}

func TestMySQLDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "ledger"}
	assert.Equal(t, "u:p@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.MySQLDSN())
}
