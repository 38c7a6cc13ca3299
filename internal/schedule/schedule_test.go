// AngelaMos | 2026
// schedule_test.go

package schedule

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/config"
)

func quietPolicy() Policy {
	p := DefaultPolicy()
	p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return p
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestNextDueInstant_SpringForward(t *testing.T) {
	baseline := mustParse(t, "2024-03-08T12:00:00Z")

	due := quietPolicy().NextDueInstant(baseline, "America/New_York")

	assert.Equal(t, mustParse(t, "2024-03-15T23:00:00Z"), due)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := due.In(loc)
	assert.Equal(t, 19, local.Hour())
	assert.Equal(t, 0, local.Minute())
	_, offset := local.Zone()
	assert.Equal(t, -4*3600, offset)
}

func TestNextDueInstant_FallBack(t *testing.T) {
	baseline := mustParse(t, "2024-10-31T12:00:00Z")

	due := quietPolicy().NextDueInstant(baseline, "America/New_York")

	assert.Equal(t, mustParse(t, "2024-11-08T00:00:00Z"), due)
}

func TestNextDueInstant_SouthernHemisphere(t *testing.T) {
	// Sydney leaves daylight time on 2024-04-07.
	baseline := mustParse(t, "2024-04-03T00:00:00Z")

	due := quietPolicy().NextDueInstant(baseline, "Australia/Sydney")

	assert.Equal(t, mustParse(t, "2024-04-10T09:00:00Z"), due)
}

func TestNextDueInstant_UsesLocalCalendarDate(t *testing.T) {
	// 03:00Z on the 9th is still the evening of the 8th in New York.
	baseline := mustParse(t, "2024-03-09T03:00:00Z")

	due := quietPolicy().NextDueInstant(baseline, "America/New_York")

	assert.Equal(t, mustParse(t, "2024-03-15T23:00:00Z"), due)
}

func TestNextDueInstant_LocalHourAlwaysPinned(t *testing.T) {
	zones := []string{
		"America/New_York",
		"America/Los_Angeles",
		"Europe/London",
		"Europe/Berlin",
		"Australia/Sydney",
		"Asia/Kolkata",
		"Pacific/Auckland",
	}
	start := mustParse(t, "2024-01-01T06:30:00Z")

	for _, tz := range zones {
		loc, err := time.LoadLocation(tz)
		require.NoError(t, err)

		for day := 0; day < 366; day += 5 {
			baseline := start.AddDate(0, 0, day)
			due := quietPolicy().NextDueInstant(baseline, tz)

			local := due.In(loc)
			assert.Equal(t, 19, local.Hour(), "tz=%s baseline=%s", tz, baseline)
			assert.Equal(t, 0, local.Minute(), "tz=%s baseline=%s", tz, baseline)

			by, bm, bd := baseline.In(loc).Date()
			want := time.Date(by, bm, bd+7, 0, 0, 0, 0, time.UTC)
			ly, lm, ld := local.Date()
			assert.Equal(t, want, time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC))
		}
	}
}

func TestNextDueInstant_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	baseline := mustParse(t, "2024-03-08T12:00:00Z")
	want := mustParse(t, "2024-03-15T19:00:00Z")

	for _, tz := range []string{"", "   ", "Not/AZone", "Local", "../etc/passwd"} {
		assert.NotPanics(t, func() {
			assert.Equal(t, want, quietPolicy().NextDueInstant(baseline, tz), "tz=%q", tz)
		})
	}
}

func TestNextDueInstant_IsPure(t *testing.T) {
	baseline := mustParse(t, "2024-06-01T23:59:59Z")

	first := NextDueInstant(baseline, "Europe/Berlin")
	second := NextDueInstant(baseline, "Europe/Berlin")

	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}

func TestNewPolicy_FromConfig(t *testing.T) {
	p := NewPolicy(config.CadenceConfig{
		DueHour:         8,
		IntervalDays:    14,
		DefaultTimezone: "Europe/London",
	}, nil)

	due := p.NextDueInstant(mustParse(t, "2024-07-01T10:00:00Z"), "")

	// Europe/London is on BST (+01:00) in July.
	assert.Equal(t, mustParse(t, "2024-07-15T07:00:00Z"), due)
}

func TestNewPolicy_ClampsInvalidValues(t *testing.T) {
	p := NewPolicy(config.CadenceConfig{DueHour: 42, IntervalDays: 0}, nil)

	assert.Equal(t, DefaultDueHour, p.DueHour)
	assert.Equal(t, DefaultIntervalDays, p.IntervalDays)
}

func TestNormalizeTimezone(t *testing.T) {
	assert.Equal(t, "Asia/Tokyo", NormalizeTimezone(" Asia/Tokyo ", "UTC"))
	assert.Equal(t, "UTC", NormalizeTimezone("Mars/Olympus", "UTC"))
	assert.Equal(t, "UTC", NormalizeTimezone("", "UTC"))
}
