// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/cadence")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Cadence.WeekCap)
	assert.Equal(t, 19, cfg.Cadence.DueHour)
	assert.Equal(t, 7, cfg.Cadence.IntervalDays)
	assert.Equal(t, 168*time.Hour, cfg.Cadence.TrialLength)
	assert.Equal(t, "UTC", cfg.Cadence.DefaultTimezone)
	assert.Equal(t, time.Minute, cfg.Cadence.SkewTolerance)
	assert.Equal(t, int64(65536), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoad_FileThenEnv(t *testing.T) {
	requiredEnv(t)
	t.Setenv("CADENCE_DUE_HOUR", "20")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cadence:
  week_cap: 12
  due_hour: 18
  default_timezone: Europe/Berlin
stripe:
  webhook_secret: whsec_test
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Cadence.WeekCap)
	assert.Equal(t, 20, cfg.Cadence.DueHour)
	assert.Equal(t, "Europe/Berlin", cfg.Cadence.DefaultTimezone)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}},
		{"due hour out of range", map[string]string{"CADENCE_DUE_HOUR": "24"}},
		{"zero week cap", map[string]string{"CADENCE_WEEK_CAP": "0"}},
		{"bad default timezone", map[string]string{"CADENCE_DEFAULT_TIMEZONE": "Mars/Olympus"}},
		{"production without webhook secrets", map[string]string{"ENVIRONMENT": "production"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	requiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
