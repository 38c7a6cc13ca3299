// AngelaMos | 2026
// memory.go

// Package ledgertest provides an in-memory ledger.Repository for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
)

type Ledger struct {
	mu   sync.Mutex
	rows map[string]ledger.Event

	// RecordErr, when set, is returned by every Record call.
	RecordErr error
	// ProcessErr is returned by the next MarkProcessed call.
	ProcessErr error
}

func New(seed ...ledger.Event) *Ledger {
	l := &Ledger{rows: make(map[string]ledger.Event)}
	for _, e := range seed {
		l.rows[e.ID] = e
	}
	return l
}

func (l *Ledger) Record(_ context.Context, event ledger.Event) (ledger.RecordResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.RecordErr != nil {
		return ledger.Inserted, l.RecordErr
	}
	if strings.TrimSpace(event.ID) == "" {
		return ledger.Inserted, fmt.Errorf("record event: %w", core.ErrInvalidInput)
	}
	if _, ok := l.rows[event.ID]; ok {
		return ledger.DuplicateIgnored, nil
	}
	l.rows[event.ID] = event
	return ledger.Inserted, nil
}

func (l *Ledger) Get(_ context.Context, id string) (*ledger.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.rows[id]
	if !ok {
		return nil, fmt.Errorf("get event: %w", core.ErrNotFound)
	}
	return &e, nil
}

func (l *Ledger) MarkProcessed(_ context.Context, id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ProcessErr != nil {
		err := l.ProcessErr
		l.ProcessErr = nil
		return err
	}
	e, ok := l.rows[id]
	if !ok {
		return fmt.Errorf("mark processed: %w", core.ErrNotFound)
	}
	at = at.UTC()
	e.ProcessedAt = &at
	e.LastError = nil
	l.rows[id] = e
	return nil
}

func (l *Ledger) MarkFailed(_ context.Context, id, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.rows[id]
	if !ok || e.ProcessedAt != nil {
		return nil
	}
	e.LastError = &reason
	l.rows[id] = e
	return nil
}

func (l *Ledger) ListUnprocessed(
	_ context.Context,
	olderThan time.Time,
	limit int,
) ([]ledger.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ledger.Event
	for _, e := range l.rows {
		if e.ProcessedAt == nil && !e.ReceivedAt.After(olderThan) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) CountUnprocessed(ctx context.Context) (int64, error) {
	s, err := l.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return s.Unprocessed, nil
}

func (l *Ledger) Stats(_ context.Context) (*ledger.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s ledger.Stats
	for _, e := range l.rows {
		s.Total++
		if e.ProcessedAt != nil {
			s.Processed++
			continue
		}
		s.Unprocessed++
		if e.LastError != nil {
			s.Failed++
		}
	}
	return &s, nil
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

var _ ledger.Repository = (*Ledger)(nil)
