package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{DefaultProgram: "bash"}
	cfg.applyDefaults()

	require.Equal(t, "bash", cfg.DefaultProgram)
	require.Equal(t, 100, cfg.BlockCapacity)
	require.Equal(t, 3*time.Second, cfg.IdleResetDelay())
	require.Equal(t, 5*time.Second, cfg.SnapshotCooldown())
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		DefaultProgram:     "aider",
		BlockCapacity:      50,
		IdleResetDelayMs:   1000,
		SnapshotCooldownMs: 10000,
	}
	cfg.applyDefaults()

	require.Equal(t, 50, cfg.BlockCapacity)
	require.Equal(t, time.Second, cfg.IdleResetDelay())
	require.Equal(t, 10*time.Second, cfg.SnapshotCooldown())
}
