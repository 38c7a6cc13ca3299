// AngelaMos | 2026
// service.go

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/config"
	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/schedule"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

// Stores groups the repositories one unit of work needs, bound to the same
// connection or transaction.
type Stores struct {
	Profiles Repository
	History  score.HistoryRepository
}

type StoreFactory func(db core.DBTX) Stores

func NewStores(db core.DBTX) Stores {
	return Stores{
		Profiles: NewRepository(db),
		History:  score.NewHistoryRepository(db),
	}
}

type Deps struct {
	DB      core.DBTX
	Tx      core.Transactor
	Stores  StoreFactory
	Scorer  score.Scorer
	Clock   core.Clock
	Cadence config.CadenceConfig
	Logger  *slog.Logger
}

type Service struct {
	db          core.DBTX
	tx          core.Transactor
	stores      StoreFactory
	scorer      score.Scorer
	clock       core.Clock
	policy      schedule.Policy
	trialLength time.Duration
	defaultTZ   string
	logger      *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stores := deps.Stores
	if stores == nil {
		stores = NewStores
	}
	clock := deps.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	defaultTZ := deps.Cadence.DefaultTimezone
	if defaultTZ == "" {
		defaultTZ = schedule.DefaultTimezone
	}

	return &Service{
		db:          deps.DB,
		tx:          deps.Tx,
		stores:      stores,
		scorer:      deps.Scorer,
		clock:       clock,
		policy:      schedule.NewPolicy(deps.Cadence, logger),
		trialLength: deps.Cadence.TrialLength,
		defaultTZ:   defaultTZ,
		logger:      logger,
	}
}

// Ensure creates the profile if missing. A valid timezone is stored when the
// profile has none yet.
func (s *Service) Ensure(
	ctx context.Context,
	userID, timezone string,
) (*EntitlementSnapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("ensure profile: %w", core.ErrUnauthorized)
	}
	tz, err := validTimezone(timezone, false)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	var p *Profile
	err = s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.stores(tx)

		locked, err := ensureLocked(ctx, st.Profiles, userID, tz)
		if err != nil {
			return err
		}

		if tz != "" && locked.Timezone == nil {
			locked.Timezone = &tz
			if err := st.Profiles.Save(ctx, locked); err != nil {
				return err
			}
		}
		p = locked
		return nil
	})
	if err != nil {
		return nil, core.StoreError("ensure profile", err)
	}

	return toSnapshot(p, s.clock.Now(), s.defaultTZ), nil
}

// EnsureProfile satisfies the registration hook used by auth.
func (s *Service) EnsureProfile(ctx context.Context, userID, timezone string) error {
	_, err := s.Ensure(ctx, userID, timezone)
	return err
}

// StartTrial opens the trial window and the weekly cadence. Calling it again
// once a trial exists returns the current state unchanged.
func (s *Service) StartTrial(
	ctx context.Context,
	userID, timezone string,
) (*EntitlementSnapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("start trial: %w", core.ErrUnauthorized)
	}
	tz, err := validTimezone(timezone, false)
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}

	now := s.clock.Now().UTC()

	var p *Profile
	err = s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.stores(tx)

		locked, err := ensureLocked(ctx, st.Profiles, userID, tz)
		if err != nil {
			return err
		}
		p = locked

		if locked.TrialStartedAt != nil {
			return nil
		}

		if tz != "" && locked.Timezone == nil {
			locked.Timezone = &tz
		}

		ends := now.Add(s.trialLength)
		locked.TrialStartedAt = &now
		locked.TrialEndsAt = &ends
		if locked.EntitlementStatus == entitlement.StatusNone {
			locked.EntitlementStatus = entitlement.StatusTrial
		}
		if locked.CurrentWeekNumber == nil {
			week := 1
			locked.CurrentWeekNumber = &week
		}
		if locked.NextWeekDueAt == nil {
			due := s.policy.NextDueInstant(now, locked.TimezoneOr(s.defaultTZ))
			locked.NextWeekDueAt = &due
		}

		return st.Profiles.Save(ctx, locked)
	})
	if err != nil {
		return nil, core.StoreError("start trial", err)
	}

	return toSnapshot(p, now, s.defaultTZ), nil
}

func (s *Service) UpdateTimezone(
	ctx context.Context,
	userID, timezone string,
) (*EntitlementSnapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("update timezone: %w", core.ErrUnauthorized)
	}
	tz, err := validTimezone(timezone, true)
	if err != nil {
		return nil, fmt.Errorf("update timezone: %w", err)
	}

	var p *Profile
	err = s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.stores(tx)

		locked, err := ensureLocked(ctx, st.Profiles, userID, tz)
		if err != nil {
			return err
		}
		locked.Timezone = &tz
		p = locked
		return st.Profiles.Save(ctx, locked)
	})
	if err != nil {
		return nil, core.StoreError("update timezone", err)
	}

	return toSnapshot(p, s.clock.Now(), s.defaultTZ), nil
}

// GetEntitlementSnapshot returns the reconciled profile. Missing derived
// preferences are backfilled from the latest intake; a failure to persist
// the backfill is logged and the values are still returned.
func (s *Service) GetEntitlementSnapshot(
	ctx context.Context,
	userID string,
) (*EntitlementSnapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("get entitlement: %w", core.ErrUnauthorized)
	}

	st := s.stores(s.db)

	if _, err := st.Profiles.EnsureExists(ctx, New(userID, "")); err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}

	p, err := st.Profiles.Get(ctx, userID)
	if err != nil {
		return nil, core.StoreError("get entitlement", err)
	}

	snap := toSnapshot(p, s.clock.Now(), s.defaultTZ)

	if !p.HasPreferences() {
		prefs, ok := s.backfillPreferences(ctx, st, p)
		if ok {
			snap.DerivedPreferences = prefs
		}
	}

	return snap, nil
}

// backfillPreferences fills each missing preference from the latest intake.
// Values already on the profile are kept.
func (s *Service) backfillPreferences(
	ctx context.Context,
	st Stores,
	p *Profile,
) (DerivedPreferences, bool) {
	userID := p.UserID
	entry, err := st.History.LatestBySource(ctx, userID, score.SourceIntake)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("load intake for preference backfill",
				"user_id", userID,
				"error", err,
			)
		}
		return DerivedPreferences{}, false
	}

	answers, err := score.ParseAnswers(entry.Payload)
	if err != nil {
		return DerivedPreferences{}, false
	}

	prefs := p.Preferences()
	derived := preferencesFrom(answers)
	filled := false
	if prefs.PrimaryGoal == "" && derived.PrimaryGoal != "" {
		prefs.PrimaryGoal = derived.PrimaryGoal
		filled = true
	}
	if prefs.FocusArea == "" && derived.FocusArea != "" {
		prefs.FocusArea = derived.FocusArea
		filled = true
	}
	if !filled {
		return DerivedPreferences{}, false
	}

	if err := st.Profiles.UpdatePreferences(ctx, userID, prefs.PrimaryGoal, prefs.FocusArea); err != nil {
		s.logger.Warn("persist backfilled preferences",
			"user_id", userID,
			"error", err,
		)
	}

	return prefs, true
}

// SubmitIntake scores onboarding answers, appends them to history and makes
// the result the profile's latest.
func (s *Service) SubmitIntake(
	ctx context.Context,
	userID string,
	raw []byte,
) (*IntakeResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("submit intake: %w", core.ErrUnauthorized)
	}

	answers, err := score.ParseAnswers(raw)
	if err != nil {
		return nil, fmt.Errorf("submit intake: %w", err)
	}

	snap, err := s.scorer.Score(ctx, score.Input{
		UserID:  userID,
		Source:  score.SourceIntake,
		Answers: answers,
		At:      s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit intake: %w", err)
	}
	snap.Source = score.SourceIntake
	snap.GeneratedAt = score.StoredInstant(snap.GeneratedAt)

	prefs := preferencesFrom(answers)

	err = s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.stores(tx)

		locked, err := ensureLocked(ctx, st.Profiles, userID, "")
		if err != nil {
			return err
		}

		if err := st.History.Insert(ctx, score.NewHistoryEntry(userID, snap, raw)); err != nil {
			return err
		}

		locked.LastResult = &snap
		if prefs.PrimaryGoal != "" {
			locked.PrimaryGoal = &prefs.PrimaryGoal
		}
		if prefs.FocusArea != "" {
			locked.FocusArea = &prefs.FocusArea
		}
		return st.Profiles.Save(ctx, locked)
	})
	if err != nil {
		return nil, core.StoreError("submit intake", err)
	}

	return &IntakeResponse{Result: snap, DerivedPreferences: prefs}, nil
}

// DeleteProfile hard-deletes the profile and everything hanging off it.
func (s *Service) DeleteProfile(ctx context.Context, userID string) error {
	return core.StoreError("delete profile", s.stores(s.db).Profiles.Delete(ctx, userID))
}

func ensureLocked(
	ctx context.Context,
	repo Repository,
	userID, timezone string,
) (*Profile, error) {
	if _, err := repo.EnsureExists(ctx, New(userID, timezone)); err != nil {
		return nil, err
	}
	return repo.GetForUpdate(ctx, userID)
}

var (
	errUnknownTimezone  = fmt.Errorf("unknown timezone: %w", core.ErrInvalidInput)
	errTimezoneRequired = fmt.Errorf("timezone is required: %w", core.ErrInvalidInput)
)

func validTimezone(tz string, required bool) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		if required {
			return "", errTimezoneRequired
		}
		return "", nil
	}
	if _, ok := schedule.ResolveLocation(tz); !ok {
		return "", fmt.Errorf("%q: %w", tz, errUnknownTimezone)
	}
	return tz, nil
}

func preferencesFrom(answers map[string]any) DerivedPreferences {
	prefs := DerivedPreferences{
		PrimaryGoal: score.StringAnswer(answers, "primary_goal"),
		FocusArea:   score.StringAnswer(answers, "focus_area"),
	}
	if prefs.PrimaryGoal == "" {
		prefs.PrimaryGoal = score.StringAnswer(answers, "primaryGoal")
	}
	if prefs.FocusArea == "" {
		prefs.FocusArea = score.StringAnswer(answers, "focusArea")
	}
	return prefs
}
