package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/debtsync/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 85, cfg.Reconcile.ConfidenceThreshold)
	assert.Equal(t, "0.005", cfg.DriftThreshold().String())
	assert.Equal(t, "50000", cfg.MaxAdjustment().String())
	assert.Equal(t, "postgres://postgres:@localhost:5432/debtsync?sslmode=disable", cfg.ConnectionString())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DRIFT_THRESHOLD", "0.01")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("DB_NAME", "ledger")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.01", cfg.DriftThreshold().String())
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Contains(t, cfg.ConnectionString(), "/ledger?")
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Setenv("DRIFT_THRESHOLD", "half a percent")

	_, err := config.Load()
	assert.Error(t, err)
}
