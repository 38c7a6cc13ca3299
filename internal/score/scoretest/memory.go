// AngelaMos | 2026
// memory.go

// Package scoretest provides in-memory score history and a counting scorer.
package scoretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

type History struct {
	mu      sync.Mutex
	entries []score.HistoryEntry

	// LatestErr is returned by LatestBySource when set.
	LatestErr error
}

func NewHistory(seed ...*score.HistoryEntry) *History {
	h := &History{}
	for _, e := range seed {
		h.entries = append(h.entries, *e)
	}
	return h
}

func (h *History) Insert(_ context.Context, entry *score.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry.CheckinID != nil {
		for _, e := range h.entries {
			if e.CheckinID != nil && *e.CheckinID == *entry.CheckinID {
				return fmt.Errorf("insert score history: %w", core.ErrDuplicateKey)
			}
		}
	}
	entry.CreatedAt = time.Now().UTC()
	h.entries = append(h.entries, *entry)
	return nil
}

func (h *History) GetByCheckinID(_ context.Context, checkinID string) (*score.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.entries {
		if e.CheckinID != nil && *e.CheckinID == checkinID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("get score by checkin: %w", core.ErrNotFound)
}

func (h *History) LatestBySource(
	_ context.Context,
	userID string,
	source score.Source,
) (*score.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.LatestErr != nil {
		return nil, h.LatestErr
	}

	var matches []score.HistoryEntry
	for _, e := range h.entries {
		if e.UserID == userID && e.Source == source {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("latest score: %w", core.ErrNotFound)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].GeneratedAt.After(matches[j].GeneratedAt)
	})
	return &matches[0], nil
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

var _ score.HistoryRepository = (*History)(nil)

// CountingScorer wraps a scorer and counts invocations.
type CountingScorer struct {
	mu    sync.Mutex
	Inner score.Scorer
	calls int
}

func (c *CountingScorer) Score(ctx context.Context, in score.Input) (score.Snapshot, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	inner := c.Inner
	if inner == nil {
		inner = score.NewHeuristicScorer()
	}
	return inner.Score(ctx, in)
}

func (c *CountingScorer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
