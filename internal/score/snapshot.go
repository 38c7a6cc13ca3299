// AngelaMos | 2026
// snapshot.go

package score

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CurrentVersion is the snapshot layout written by this service. Rows
// without a version field predate it and are migrated on read.
const CurrentVersion = 1

type Source string

const (
	SourceIntake        Source = "intake"
	SourceWeeklyCheckin Source = "weekly_checkin"
	SourceRecalc        Source = "recalc"
)

func (s Source) Valid() bool {
	switch s {
	case SourceIntake, SourceWeeklyCheckin, SourceRecalc:
		return true
	}
	return false
}

type Snapshot struct {
	Version      int       `json:"version"`
	Score        float64   `json:"score"`
	Potential    *float64  `json:"potential,omitempty"`
	ModelVersion string    `json:"model_version"`
	GeneratedAt  time.Time `json:"generated_at"`
	Source       Source    `json:"source,omitempty"`
	CheckinID    string    `json:"checkin_id,omitempty"`
	WeekNumber   *int      `json:"week_number,omitempty"`
}

// ParseSnapshot decodes a stored snapshot. Empty input and JSON null yield
// (nil, nil).
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	if _, ok := fields["version"]; ok {
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
		if s.Version > CurrentVersion {
			return nil, fmt.Errorf("parse snapshot: unsupported version %d", s.Version)
		}
		s.Version = CurrentVersion
		return &s, nil
	}

	return migrateV0(fields)
}

// migrateV0 reads the untyped shapes written before snapshots carried a
// version: flat objects with camelCase or snake_case keys, optionally nested
// under "result", with timestamps as RFC 3339 strings or epoch millis.
func migrateV0(fields map[string]json.RawMessage) (*Snapshot, error) {
	if nested, ok := fields["result"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			fields = inner
		}
	}

	scoreRaw, ok := pick(fields, "score", "value")
	if !ok {
		return nil, fmt.Errorf("parse snapshot: missing score")
	}
	value, err := parseNumber(scoreRaw)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: score: %w", err)
	}

	s := &Snapshot{Version: CurrentVersion, Score: value}

	if raw, ok := pick(fields, "potential", "potentialScore", "potential_score"); ok {
		if p, err := parseNumber(raw); err == nil {
			s.Potential = &p
		}
	}

	if raw, ok := pick(fields, "model_version", "modelVersion", "model"); ok {
		_ = json.Unmarshal(raw, &s.ModelVersion) //nolint:errcheck // optional field
	}

	if raw, ok := pick(fields, "generated_at", "generatedAt", "timestamp"); ok {
		if ts, err := parseTimestamp(raw); err == nil {
			s.GeneratedAt = ts
		}
	}

	if raw, ok := pick(fields, "source"); ok {
		var src string
		if json.Unmarshal(raw, &src) == nil && Source(src).Valid() {
			s.Source = Source(src)
		}
	}

	if raw, ok := pick(fields, "checkin_id", "checkinId"); ok {
		_ = json.Unmarshal(raw, &s.CheckinID) //nolint:errcheck // optional field
	}

	return s, nil
}

func pick(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		return ts.UTC(), nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp: %s", string(raw))
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (s Snapshot) Value() (driver.Value, error) {
	s.Version = CurrentVersion
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

func (s *Snapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = Snapshot{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan snapshot: unsupported type %T", src)
	}

	parsed, err := ParseSnapshot(raw)
	if err != nil {
		return err
	}
	if parsed == nil {
		*s = Snapshot{}
		return nil
	}
	*s = *parsed
	return nil
}
