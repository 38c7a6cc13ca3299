// AngelaMos | 2026
// scorer.go

package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

const (
	DefaultModelVersion = "heuristic-v1"
	answerScale         = 10.0
)

type Input struct {
	UserID     string
	Source     Source
	CheckinID  string
	WeekNumber int
	Answers    map[string]any
	At         time.Time
}

type Scorer interface {
	Score(ctx context.Context, in Input) (Snapshot, error)
}

// HeuristicScorer averages the numeric answers on a 0-10 scale and reports
// the result on 0-100. Potential is the score plus half the remaining
// headroom. Non-numeric answers are carried but not scored.
type HeuristicScorer struct {
	ModelVersion string
}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{ModelVersion: DefaultModelVersion}
}

func (h *HeuristicScorer) Score(ctx context.Context, in Input) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if len(in.Answers) == 0 {
		return Snapshot{}, fmt.Errorf("score answers: %w", core.ErrInvalidInput)
	}

	keys := make([]string, 0, len(in.Answers))
	for k := range in.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	var n int
	for _, k := range keys {
		v, ok := numeric(in.Answers[k])
		if !ok {
			continue
		}
		sum += math.Max(0, math.Min(answerScale, v))
		n++
	}

	var value float64
	if n > 0 {
		value = round1(sum / float64(n) * (100 / answerScale))
	}
	potential := round1(value + (100-value)/2)

	model := h.ModelVersion
	if model == "" {
		model = DefaultModelVersion
	}

	snap := Snapshot{
		Version:      CurrentVersion,
		Score:        value,
		Potential:    &potential,
		ModelVersion: model,
		GeneratedAt:  StoredInstant(in.At),
		Source:       in.Source,
		CheckinID:    in.CheckinID,
	}
	if in.WeekNumber > 0 {
		week := in.WeekNumber
		snap.WeekNumber = &week
	}
	return snap, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return answerScale, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseAnswers decodes a flat JSON object of answers. Anything other than a
// non-empty object is rejected with core.ErrInvalidInput.
func ParseAnswers(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("answers must be a JSON object: %w", core.ErrInvalidInput)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var answers map[string]any
	if err := dec.Decode(&answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", core.ErrInvalidInput)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("answers are empty: %w", core.ErrInvalidInput)
	}
	return answers, nil
}

// StringAnswer returns answers[key] when it is a non-empty string.
func StringAnswer(answers map[string]any, key string) string {
	if s, ok := answers[key].(string); ok {
		return s
	}
	return ""
}
