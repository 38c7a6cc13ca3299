// AngelaMos | 2026
// mirror.go

package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/checkin"
	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/profile"
	"github.com/carterperez-dev/cadence-api/internal/schedule"
)

type Mirror struct {
	store   Store
	fetcher Fetcher
	policy  schedule.Policy
	clock   core.Clock
	logger  *slog.Logger

	// mu serializes load-merge-save. Fetches run outside it, so the last
	// reconciliation to finish wins.
	mu sync.Mutex
}

func New(
	store Store,
	fetcher Fetcher,
	policy schedule.Policy,
	clock core.Clock,
	logger *slog.Logger,
) *Mirror {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:   store,
		fetcher: fetcher,
		policy:  policy,
		clock:   clock,
		logger:  logger,
	}
}

// Current returns the local copy without contacting the server.
func (m *Mirror) Current(ctx context.Context) (State, error) {
	return m.store.Load(ctx)
}

// Reconcile fetches the server snapshot and folds it into the local copy.
// On a fetch failure the local copy is returned unchanged with the error.
func (m *Mirror) Reconcile(ctx context.Context) (State, error) {
	snap, fetchErr := m.fetcher.FetchEntitlement(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	local, err := m.store.Load(ctx)
	if err != nil {
		return State{}, err
	}
	if fetchErr != nil {
		m.logger.Warn("entitlement reconcile failed, keeping local copy", "error", fetchErr)
		return local, fetchErr
	}

	next := m.merge(local, snap)
	if err := m.store.Save(ctx, next); err != nil {
		return local, fmt.Errorf("save mirror state: %w", err)
	}
	return next, nil
}

// OnForeground runs when the app returns to the foreground.
func (m *Mirror) OnForeground(ctx context.Context) (State, error) {
	return m.Reconcile(ctx)
}

// AfterCheckin folds the check-in response into the local copy right away,
// then reconciles. The local update survives a failed reconcile.
func (m *Mirror) AfterCheckin(ctx context.Context, res *checkin.Result) (State, error) {
	if res != nil {
		if err := m.applyCheckin(ctx, res); err != nil {
			return State{}, err
		}
	}
	return m.Reconcile(ctx)
}

func (m *Mirror) applyCheckin(ctx context.Context, res *checkin.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	local, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	if !res.NextDueAt.IsZero() {
		due := res.NextDueAt.UTC()
		local.NextDueAt = &due
		local.FallbackDue = false
		local.ServerEstablished = true
	}
	if res.WeekNumber > 0 {
		week := res.WeekNumber
		local.CurrentWeek = &week
		local.ServerEstablished = true
	}
	dropStaleFallback(&local)

	return m.store.Save(ctx, local)
}

func (m *Mirror) merge(local State, snap *profile.EntitlementSnapshot) State {
	next := local
	next.Status = snap.Status
	next.HasAccess = snap.HasAccess
	next.SyncedAt = m.clock.Now().UTC()

	if snap.Timezone != "" {
		next.Timezone = snap.Timezone
	}
	if snap.TrialStartedAt != nil {
		next.TrialStartedAt = copyTime(snap.TrialStartedAt)
	}
	if snap.TrialEndsAt != nil {
		next.TrialEndsAt = copyTime(snap.TrialEndsAt)
	}
	if snap.LastResult != nil {
		r := *snap.LastResult
		next.LastResult = &r
	}
	if snap.CurrentWeek != nil {
		w := *snap.CurrentWeek
		next.CurrentWeek = &w
		next.ServerEstablished = true
	}
	if snap.NextDueAt != nil {
		next.NextDueAt = copyTime(snap.NextDueAt)
		next.FallbackDue = false
		next.ServerEstablished = true
	}

	if !next.ServerEstablished && next.TrialStartedAt != nil {
		due := m.policy.NextDueInstant(*next.TrialStartedAt, next.Timezone)
		next.NextDueAt = &due
		next.FallbackDue = true
	}
	dropStaleFallback(&next)

	return next
}

// dropStaleFallback clears a locally computed due instant once the server
// owns the cadence.
func dropStaleFallback(s *State) {
	if s.ServerEstablished && s.FallbackDue {
		s.NextDueAt = nil
		s.FallbackDue = false
	}
}

func copyTime(t *time.Time) *time.Time {
	v := t.UTC()
	return &v
}
