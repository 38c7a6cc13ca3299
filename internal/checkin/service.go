// AngelaMos | 2026
// service.go

package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/cadence-api/internal/config"
	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/profile"
	"github.com/carterperez-dev/cadence-api/internal/schedule"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

const (
	DefaultWeekCap       = 8
	DefaultSkewTolerance = time.Minute
)

type Stores struct {
	Checkins Repository
	Profiles profile.Repository
	History  score.HistoryRepository
}

type StoreFactory func(db core.DBTX) Stores

func NewStores(db core.DBTX) Stores {
	return Stores{
		Checkins: NewRepository(db),
		Profiles: profile.NewRepository(db),
		History:  score.NewHistoryRepository(db),
	}
}

type Deps struct {
	Tx      core.Transactor
	Stores  StoreFactory
	Scorer  score.Scorer
	Clock   core.Clock
	Cadence config.CadenceConfig
	Logger  *slog.Logger
}

// Service completes weekly check-ins. Each completion runs in one
// transaction; a retried or raced submission is detected through the score
// history and the checkins uniqueness constraints and replayed instead of
// scored twice.
type Service struct {
	tx        core.Transactor
	stores    StoreFactory
	scorer    score.Scorer
	clock     core.Clock
	policy    schedule.Policy
	weekCap   int
	skew      time.Duration
	maxAge    time.Duration
	defaultTZ string
	logger    *slog.Logger
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
	scorer := deps.Scorer
	if scorer == nil {
		scorer = score.NewHeuristicScorer()
	}

	weekCap := deps.Cadence.WeekCap
	if weekCap < 1 {
		weekCap = DefaultWeekCap
	}
	skew := deps.Cadence.SkewTolerance
	if skew <= 0 {
		skew = DefaultSkewTolerance
	}
	defaultTZ := deps.Cadence.DefaultTimezone
	if defaultTZ == "" {
		defaultTZ = schedule.DefaultTimezone
	}

	policy := schedule.NewPolicy(deps.Cadence, logger)

	return &Service{
		tx:        deps.Tx,
		stores:    stores,
		scorer:    scorer,
		clock:     clock,
		policy:    policy,
		weekCap:   weekCap,
		skew:      skew,
		maxAge:    time.Duration(policy.IntervalDays-1) * 24 * time.Hour,
		defaultTZ: defaultTZ,
		logger:    logger,
	}
}

func (s *Service) WeekCap() int {
	return s.weekCap
}

type submission struct {
	CompleteRequest
	answers map[string]any
	now     time.Time
}

// CompleteCheckin records a check-in, scores it once and advances the
// user's cadence. Resubmitting the same check-in id returns the stored
// score with Reused set and leaves the cadence where the first call put it.
func (s *Service) CompleteCheckin(
	ctx context.Context,
	req CompleteRequest,
) (*Result, error) {
	ctx, span := core.StartSpan(ctx, "checkin.complete",
		attribute.String("checkin.id", req.CheckinID),
		attribute.Int("checkin.week", req.WeekNumber),
	)
	defer span.End()

	sub, err := s.validate(req)
	if err != nil {
		core.SetSpanError(ctx, err)
		return nil, err
	}

	result, err := s.attempt(ctx, sub)
	if errors.Is(err, core.ErrDuplicateKey) {
		core.AddSpanEvent(ctx, "checkin.conflict")
		s.logger.Info("checkin insert conflicted, replaying",
			"user_id", sub.UserID,
			"checkin_id", sub.CheckinID,
			"week", sub.WeekNumber,
		)
		result, err = s.attempt(ctx, sub)
	}
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			err = fmt.Errorf("complete checkin: %w: %w", core.ErrRetryable, err)
		} else {
			err = core.StoreError("complete checkin", err)
		}
		core.SetSpanError(ctx, err)
		return nil, err
	}

	if result.Reused {
		core.AddSpanEvent(ctx, "checkin.replay")
	}
	return result, nil
}

func (s *Service) validate(req CompleteRequest) (submission, error) {
	now := s.clock.Now().UTC()

	if req.UserID == "" {
		return submission{}, fmt.Errorf("complete checkin: %w", core.ErrUnauthorized)
	}
	req.CheckinID = strings.TrimSpace(req.CheckinID)
	if req.CheckinID == "" {
		return submission{}, fmt.Errorf("complete checkin: missing checkin id: %w", core.ErrInvalidInput)
	}
	if req.WeekNumber < 1 || req.WeekNumber > s.weekCap {
		return submission{}, fmt.Errorf(
			"complete checkin: week %d outside 1..%d: %w",
			req.WeekNumber, s.weekCap, core.ErrInvalidInput,
		)
	}

	answers, err := score.ParseAnswers(req.Payload)
	if err != nil {
		return submission{}, fmt.Errorf("complete checkin: %w", err)
	}

	completed := req.CompletedAt.UTC()
	switch {
	case req.CompletedAt.IsZero():
		completed = now
	case completed.After(now.Add(s.skew)):
		return submission{}, fmt.Errorf(
			"complete checkin: completed_at in the future: %w", core.ErrInvalidInput)
	case completed.Before(now.Add(-s.maxAge)):
		// An offline submission older than one interval would schedule a due
		// instant that is already past.
		completed = now.Add(-s.maxAge)
	}
	req.CompletedAt = completed

	return submission{CompleteRequest: req, answers: answers, now: now}, nil
}

func (s *Service) attempt(ctx context.Context, sub submission) (*Result, error) {
	var result *Result

	err := s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.stores(tx)

		p, err := lockProfile(ctx, st.Profiles, sub.UserID)
		if err != nil {
			return err
		}

		hist, err := ownedHistory(ctx, st.History, sub.CheckinID, sub.UserID)
		if err != nil {
			return err
		}

		ck, err := ownedCheckin(ctx, st.Checkins, sub.CheckinID, sub.UserID)
		if err != nil {
			return err
		}

		switch {
		case hist != nil:
			if ck == nil {
				// Score recorded but the check-in row never landed.
				ck = sub.toCheckin(weekOf(hist, sub.WeekNumber))
				if err := st.Checkins.Insert(ctx, ck); err != nil {
					return err
				}
			}
			result, err = s.replay(ctx, st, p, ck, hist)
			return err

		case ck != nil:
			s.logger.Warn("finishing partially completed checkin",
				"user_id", sub.UserID,
				"checkin_id", ck.ID,
			)
			result, err = s.complete(ctx, st, p, ck, nil)
			return err
		}

		// A different check-in already claimed this week.
		other, err := st.Checkins.GetByUserWeek(ctx, sub.UserID, sub.WeekNumber)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		if other != nil {
			otherHist, err := ownedHistory(ctx, st.History, other.ID, sub.UserID)
			if err != nil {
				return err
			}
			if otherHist != nil {
				result, err = s.replay(ctx, st, p, other, otherHist)
				return err
			}
			result, err = s.complete(ctx, st, p, other, nil)
			return err
		}

		ck = sub.toCheckin(sub.WeekNumber)
		if err := st.Checkins.Insert(ctx, ck); err != nil {
			return err
		}
		result, err = s.complete(ctx, st, p, ck, sub.answers)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// complete scores ck and advances the cadence by one step.
func (s *Service) complete(
	ctx context.Context,
	st Stores,
	p *profile.Profile,
	ck *Checkin,
	answers map[string]any,
) (*Result, error) {
	if answers == nil {
		parsed, err := score.ParseAnswers(ck.Payload)
		if err != nil {
			return nil, err
		}
		answers = parsed
	}

	snap, err := s.scorer.Score(ctx, score.Input{
		UserID:     ck.UserID,
		Source:     score.SourceWeeklyCheckin,
		CheckinID:  ck.ID,
		WeekNumber: ck.WeekNumber,
		Answers:    answers,
		At:         s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	snap.Source = score.SourceWeeklyCheckin
	snap.CheckinID = ck.ID
	snap.GeneratedAt = score.StoredInstant(snap.GeneratedAt)

	if err := st.History.Insert(ctx, score.NewHistoryEntry(ck.UserID, snap, ck.Payload)); err != nil {
		return nil, err
	}

	prior := ck.WeekNumber
	if p.CurrentWeekNumber != nil {
		prior = *p.CurrentWeekNumber
	}
	week := min(s.weekCap, prior+1)

	due := s.policy.NextDueInstant(ck.SubmittedAt, p.TimezoneOr(s.defaultTZ))

	if err := st.Checkins.RecordAdvance(ctx, ck.ID, due, week); err != nil {
		return nil, err
	}

	p.CurrentWeekNumber = &week
	p.NextWeekDueAt = &due
	p.LastResult = &snap
	if err := st.Profiles.Save(ctx, p); err != nil {
		return nil, err
	}

	return &Result{
		Score:        snap.Score,
		Potential:    snap.Potential,
		ModelVersion: snap.ModelVersion,
		GeneratedAt:  snap.GeneratedAt,
		NextDueAt:    due,
		WeekNumber:   week,
		Reused:       false,
	}, nil
}

// replay returns the stored result of ck. The week reported is the one its
// first completion advanced the cadence to; replay never advances it again.
func (s *Service) replay(
	ctx context.Context,
	st Stores,
	p *profile.Profile,
	ck *Checkin,
	hist *score.HistoryEntry,
) (*Result, error) {
	due := s.policy.NextDueInstant(ck.SubmittedAt, p.TimezoneOr(s.defaultTZ))
	week := s.advancedWeek(p, ck)

	if ck.AdvancedWeek == nil || ck.DueAt == nil || !ck.DueAt.Equal(due) {
		if err := st.Checkins.RecordAdvance(ctx, ck.ID, due, week); err != nil {
			return nil, err
		}
	}

	changed := false
	if p.CurrentWeekNumber == nil {
		p.CurrentWeekNumber = &week
		changed = true
	}

	latest, err := st.Checkins.Latest(ctx, ck.UserID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	snap := hist.Snapshot()
	if latest != nil && latest.ID == ck.ID {
		if p.NextWeekDueAt == nil || !p.NextWeekDueAt.Equal(due) {
			p.NextWeekDueAt = &due
			changed = true
		}
		if p.LastResult == nil || p.LastResult.GeneratedAt.Before(snap.GeneratedAt) {
			p.LastResult = &snap
			changed = true
		}
	}

	if changed {
		if err := st.Profiles.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("replayed checkin",
		"user_id", ck.UserID,
		"checkin_id", ck.ID,
		"week", week,
	)

	return &Result{
		Score:        snap.Score,
		Potential:    snap.Potential,
		ModelVersion: snap.ModelVersion,
		GeneratedAt:  snap.GeneratedAt,
		NextDueAt:    due,
		WeekNumber:   week,
		Reused:       true,
	}, nil
}

// advancedWeek is the week ck's first completion moved the cadence to. Rows
// restored from score history carry no record of it; the profile was
// advanced in the same transaction as the history row, so its week stands.
func (s *Service) advancedWeek(p *profile.Profile, ck *Checkin) int {
	switch {
	case ck.AdvancedWeek != nil:
		return *ck.AdvancedWeek
	case p.CurrentWeekNumber != nil:
		return *p.CurrentWeekNumber
	}
	return min(s.weekCap, ck.WeekNumber+1)
}

func (sub submission) toCheckin(week int) *Checkin {
	return &Checkin{
		ID:          sub.CheckinID,
		UserID:      sub.UserID,
		WeekNumber:  week,
		SubmittedAt: sub.CompletedAt,
		Payload:     sub.Payload,
	}
}

func lockProfile(
	ctx context.Context,
	repo profile.Repository,
	userID string,
) (*profile.Profile, error) {
	if _, err := repo.EnsureExists(ctx, profile.New(userID, "")); err != nil {
		return nil, err
	}
	return repo.GetForUpdate(ctx, userID)
}

func ownedHistory(
	ctx context.Context,
	repo score.HistoryRepository,
	checkinID, userID string,
) (*score.HistoryEntry, error) {
	hist, err := repo.GetByCheckinID(ctx, checkinID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if hist.UserID != userID {
		return nil, fmt.Errorf("checkin %s: %w", checkinID, core.ErrUnauthorized)
	}
	return hist, nil
}

func ownedCheckin(
	ctx context.Context,
	repo Repository,
	checkinID, userID string,
) (*Checkin, error) {
	ck, err := repo.Get(ctx, checkinID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ck.OwnedBy(userID) {
		return nil, fmt.Errorf("checkin %s: %w", checkinID, core.ErrUnauthorized)
	}
	return ck, nil
}

func weekOf(hist *score.HistoryEntry, fallback int) int {
	if hist.WeekNumber != nil && *hist.WeekNumber > 0 {
		return *hist.WeekNumber
	}
	return fallback
}
