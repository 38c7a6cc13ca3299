// AngelaMos | 2026
// score_test.go

package score

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

func TestParseSnapshot_Current(t *testing.T) {
	raw := []byte(`{"version":1,"score":72.5,"potential":86.3,"model_version":"m2",` +
		`"generated_at":"2024-03-08T12:00:00Z","source":"weekly_checkin","checkin_id":"c1"}`)

	s, err := ParseSnapshot(raw)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, CurrentVersion, s.Version)
	assert.InDelta(t, 72.5, s.Score, 0.001)
	require.NotNil(t, s.Potential)
	assert.InDelta(t, 86.3, *s.Potential, 0.001)
	assert.Equal(t, "m2", s.ModelVersion)
	assert.Equal(t, SourceWeeklyCheckin, s.Source)
	assert.Equal(t, "c1", s.CheckinID)
	assert.True(t, time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC).Equal(s.GeneratedAt))
}

func TestParseSnapshot_MigratesLegacyShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		score     float64
		potential *float64
		model     string
		at        time.Time
	}{
		{
			name:  "camel case",
			raw:   `{"score":61,"potentialScore":80,"modelVersion":"v0","generatedAt":"2023-12-01T08:00:00Z"}`,
			score: 61, potential: ptr(80), model: "v0",
			at: time.Date(2023, 12, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			name:  "nested result with epoch millis",
			raw:   `{"result":{"score":"55.5","model":"legacy","timestamp":1700000000000}}`,
			score: 55.5, model: "legacy",
			at: time.UnixMilli(1700000000000).UTC(),
		},
		{
			name:  "bare score",
			raw:   `{"value":40}`,
			score: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSnapshot([]byte(tt.raw))
			require.NoError(t, err)
			require.NotNil(t, s)

			assert.Equal(t, CurrentVersion, s.Version)
			assert.InDelta(t, tt.score, s.Score, 0.001)
			assert.Equal(t, tt.model, s.ModelVersion)
			assert.True(t, tt.at.Equal(s.GeneratedAt))
			if tt.potential == nil {
				assert.Nil(t, s.Potential)
			} else {
				require.NotNil(t, s.Potential)
				assert.InDelta(t, *tt.potential, *s.Potential, 0.001)
			}
		})
	}
}

func TestParseSnapshot_EmptyAndInvalid(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		s, err := ParseSnapshot([]byte(raw))
		assert.NoError(t, err)
		assert.Nil(t, s)
	}

	_, err := ParseSnapshot([]byte(`{"potential":3}`))
	assert.Error(t, err)

	_, err = ParseSnapshot([]byte(`{"version":9,"score":1}`))
	assert.Error(t, err)

	_, err = ParseSnapshot([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestSnapshot_ValueScanRoundTrip(t *testing.T) {
	p := 90.0
	in := Snapshot{Score: 80, Potential: &p, ModelVersion: "m", Source: SourceIntake,
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	v, err := in.Value()
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, out.Scan(v))
	assert.Equal(t, CurrentVersion, out.Version)
	assert.InDelta(t, 80.0, out.Score, 0.001)
	assert.Equal(t, SourceIntake, out.Source)
	assert.True(t, in.GeneratedAt.Equal(out.GeneratedAt))

	require.NoError(t, out.Scan(string(v.([]byte))))
	assert.Error(t, out.Scan(12))
}

func TestHeuristicScorer(t *testing.T) {
	at := time.Date(2024, 3, 8, 12, 0, 0, 0, time.FixedZone("X", 3600))
	s := NewHeuristicScorer()

	snap, err := s.Score(context.Background(), Input{
		Source:     SourceWeeklyCheckin,
		CheckinID:  "c1",
		WeekNumber: 3,
		At:         at,
		Answers: map[string]any{
			"sleep":     8.0,
			"energy":    "6",
			"exercised": true,
			"stress":    42,
			"notes":     "felt fine",
		},
	})
	require.NoError(t, err)

	// (8 + 6 + 10 + 10) / 4 * 10
	assert.InDelta(t, 85.0, snap.Score, 0.001)
	require.NotNil(t, snap.Potential)
	assert.InDelta(t, 92.5, *snap.Potential, 0.001)
	assert.Equal(t, DefaultModelVersion, snap.ModelVersion)
	assert.Equal(t, time.UTC, snap.GeneratedAt.Location())
	assert.Equal(t, "c1", snap.CheckinID)
	require.NotNil(t, snap.WeekNumber)
	assert.Equal(t, 3, *snap.WeekNumber)
}

func TestHeuristicScorer_Deterministic(t *testing.T) {
	in := Input{Answers: map[string]any{"a": 1.0, "b": 9.0, "c": 4.0}}
	s := NewHeuristicScorer()

	first, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Score(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHeuristicScorer_GeneratedAtHasStorePrecision(t *testing.T) {
	at := time.Date(2024, 3, 8, 12, 0, 0, 123456789, time.UTC)

	snap, err := NewHeuristicScorer().Score(context.Background(), Input{
		Answers: map[string]any{"a": 5.0},
		At:      at,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 8, 12, 0, 0, 123456000, time.UTC), snap.GeneratedAt)

	entry := NewHistoryEntry("u1", Snapshot{GeneratedAt: at}, nil)
	assert.True(t, snap.GeneratedAt.Equal(entry.GeneratedAt))
}

func TestHeuristicScorer_RejectsEmptyAnswers(t *testing.T) {
	_, err := NewHeuristicScorer().Score(context.Background(), Input{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestParseAnswers(t *testing.T) {
	answers, err := ParseAnswers([]byte(`{"primary_goal":"sleep","mood":7}`))
	require.NoError(t, err)
	assert.Equal(t, "sleep", StringAnswer(answers, "primary_goal"))
	assert.Empty(t, StringAnswer(answers, "mood"))

	for _, raw := range []string{``, `[]`, `{}`, `"x"`, `{"a":`} {
		_, err := ParseAnswers([]byte(raw))
		assert.ErrorIs(t, err, core.ErrInvalidInput, "raw=%q", raw)
	}
}

func ptr(v float64) *float64 {
	return &v
}
