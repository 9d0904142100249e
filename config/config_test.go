package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
mazda:
  email: "driver@example.com"
  password: "hunter2"
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "MNAO", cfg.Mazda.Region)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 15*time.Minute, cfg.Polling.StatusInterval)
	assert.Equal(t, time.Hour, cfg.Polling.HealthInterval)
	assert.Equal(t, 2*time.Second, cfg.Polling.VehicleDelay)
	assert.Equal(t, time.Second, cfg.Polling.EndpointDelay)
	assert.Equal(t, 30*time.Second, cfg.Polling.HealthVehicleDelay)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxBackoff)

	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 3, cfg.Push.FailureThreshold)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mazda:
  email: "driver@example.com"
  password: "hunter2"
  region: "MME"
polling:
  status_interval_minutes: 30
  health_interval_minutes: 120
  vehicle_delay_seconds: 5
retry:
  max_attempts: 5
  initial_delay_seconds: 0.5
  max_backoff_seconds: 60
`))
	require.NoError(t, err)

	assert.Equal(t, "MME", cfg.Mazda.Region)
	assert.Equal(t, 30*time.Minute, cfg.Polling.StatusInterval)
	assert.Equal(t, 2*time.Hour, cfg.Polling.HealthInterval)
	assert.Equal(t, 5*time.Second, cfg.Polling.VehicleDelay)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, time.Minute, cfg.Retry.MaxBackoff)
}

func TestLoad_MissingCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
mazda:
  email: "driver@example.com"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mazda.password")
}

func TestLoad_RangeValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "status interval too small",
			yaml:    "polling:\n  status_interval_minutes: 2\n",
			wantErr: "status_interval_minutes",
		},
		{
			name:    "status interval too large",
			yaml:    "polling:\n  status_interval_minutes: 2000\n",
			wantErr: "status_interval_minutes",
		},
		{
			name:    "health vehicle delay too small",
			yaml:    "polling:\n  health_vehicle_delay_seconds: 2\n",
			wantErr: "health_vehicle_delay_seconds",
		},
		{
			name:    "vehicle delay too large",
			yaml:    "polling:\n  vehicle_delay_seconds: 120\n",
			wantErr: "vehicle_delay_seconds",
		},
		{
			name:    "too many retry attempts",
			yaml:    "retry:\n  max_attempts: 11\n",
			wantErr: "max_attempts",
		},
		{
			name:    "initial delay too small",
			yaml:    "retry:\n  initial_delay_seconds: 0.1\n",
			wantErr: "initial_delay_seconds",
		},
		{
			name:    "max backoff too large",
			yaml:    "retry:\n  max_backoff_seconds: 600\n",
			wantErr: "max_backoff_seconds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, minimalConfig+tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
