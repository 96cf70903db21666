package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "")
	t.Setenv("LEDGER_TIMEOUT", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("RECONCILE_SCHEDULE", "")

	cfg := Load()
	assert.Equal(t, "memory", cfg.LedgerDriver)
	assert.Equal(t, 30*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "@every 1m", cfg.ReconcileSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "ethereum")
	t.Setenv("LEDGER_TIMEOUT", "5s")
	t.Setenv("LEDGER_CHAIN_ID", "11155111")
	t.Setenv("DB_PASSWORD", "secret")

	cfg := Load()
	assert.Equal(t, "ethereum", cfg.LedgerDriver)
	assert.Equal(t, 5*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, int64(11155111), cfg.LedgerChainID)
	assert.Contains(t, cfg.DSN(), "password=secret")
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, 15*time.Minute, parseDuration("soon"))
}
