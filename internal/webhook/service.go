// AngelaMos | 2026
// service.go

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/cadence-api/internal/config"
	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/entitlement"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
	"github.com/carterperez-dev/cadence-api/internal/profile"
	"github.com/carterperez-dev/cadence-api/internal/schedule"
)

const defaultReprocessBatch = 100

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate_ignored"
	OutcomeUnresolvable Outcome = "unresolvable"
	OutcomeFailed       Outcome = "failed"
)

// UserDirectory reports whether an account id exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type Stores struct {
	Profiles profile.Repository
	Ledger   ledger.Repository
}

type StoreFactory func(db core.DBTX) Stores

func NewStores(db core.DBTX) Stores {
	return Stores{
		Profiles: profile.NewRepository(db),
		Ledger:   ledger.NewRepository(db),
	}
}

type Deps struct {
	DB        core.DBTX
	Tx        core.Transactor
	Stores    StoreFactory
	Users     UserDirectory
	Clock     core.Clock
	Cadence   config.CadenceConfig
	Webhook   config.WebhookConfig
	Logger    *slog.Logger
	Providers []Provider
}

type Service struct {
	stores      Stores
	tx          core.Transactor
	factory     StoreFactory
	users       UserDirectory
	clock       core.Clock
	policy      schedule.Policy
	trialLength time.Duration
	cfg         config.WebhookConfig
	providers   map[string]Provider
	logger      *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := deps.Stores
	if factory == nil {
		factory = NewStores
	}
	clock := deps.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	providers := make(map[string]Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Name()] = p
	}

	return &Service{
		stores:      factory(deps.DB),
		tx:          deps.Tx,
		factory:     factory,
		users:       deps.Users,
		clock:       clock,
		policy:      schedule.NewPolicy(deps.Cadence, logger),
		trialLength: deps.Cadence.TrialLength,
		cfg:         deps.Webhook,
		providers:   providers,
		logger:      logger,
	}
}

func (s *Service) Provider(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Ingest records a verified notification and applies it. Only a failure to
// write the ledger is returned as an error; once the event is recorded the
// provider is acknowledged and processing failures are kept on the ledger
// row for reprocessing.
func (s *Service) Ingest(ctx context.Context, env *Envelope) (Outcome, error) {
	ctx, span := core.StartSpan(ctx, "webhook.ingest",
		attribute.String("webhook.provider", env.Provider),
		attribute.String("webhook.event_id", env.ID),
		attribute.String("webhook.type", env.Type),
	)
	defer span.End()

	res, err := s.stores.Ledger.Record(ctx, ledger.Event{
		ID:         env.ID,
		Provider:   env.Provider,
		Type:       env.Type,
		Payload:    env.Payload,
		ReceivedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		core.SetSpanError(ctx, err)
		return "", fmt.Errorf("ingest webhook: %w", err)
	}

	if res == ledger.DuplicateIgnored {
		core.AddSpanEvent(ctx, "webhook.duplicate")
		s.logger.Info("webhook already recorded",
			"provider", env.Provider,
			"event_id", env.ID,
			"type", env.Type,
		)
		return OutcomeDuplicate, nil
	}

	if env.DecodeErr != nil || env.Event == nil {
		cause := env.DecodeErr
		if cause == nil {
			cause = fmt.Errorf("webhook %s carried no event: %w", env.ID, core.ErrInvalidInput)
		}
		s.fail(ctx, env.ID, env.Provider, cause)
		return OutcomeFailed, nil
	}

	return s.apply(ctx, env.ID, env.Provider, env.Event), nil
}

// ReprocessReport summarizes one ReprocessPending sweep.
type ReprocessReport struct {
	Scanned      int `json:"scanned"`
	Applied      int `json:"applied"`
	Unresolvable int `json:"unresolvable"`
	Failed       int `json:"failed"`
}

// ReprocessPending retries ledger rows that were recorded but never marked
// processed and are older than the configured grace period.
func (s *Service) ReprocessPending(ctx context.Context) (*ReprocessReport, error) {
	batch := s.cfg.ReprocessBatch
	if batch <= 0 {
		batch = defaultReprocessBatch
	}
	cutoff := s.clock.Now().UTC().Add(-s.cfg.ReprocessAfter)

	pending, err := s.stores.Ledger.ListUnprocessed(ctx, cutoff, batch)
	if err != nil {
		return nil, fmt.Errorf("reprocess webhooks: %w", err)
	}

	report := &ReprocessReport{Scanned: len(pending)}
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := s.reprocess(ctx, ev)
		switch outcome {
		case OutcomeApplied:
			report.Applied++
		case OutcomeUnresolvable:
			report.Unresolvable++
		default:
			report.Failed++
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("webhook reprocess sweep finished",
			"scanned", report.Scanned,
			"applied", report.Applied,
			"unresolvable", report.Unresolvable,
			"failed", report.Failed,
		)
	}
	return report, nil
}

func (s *Service) reprocess(ctx context.Context, ev ledger.Event) Outcome {
	provider, ok := s.providers[ev.Provider]
	if !ok {
		s.fail(ctx, ev.ID, ev.Provider, fmt.Errorf("no provider registered for %q", ev.Provider))
		return OutcomeFailed
	}

	parsed, err := provider.Parse(ev.Payload)
	if err != nil {
		s.fail(ctx, ev.ID, ev.Provider, err)
		return OutcomeFailed
	}

	return s.apply(ctx, ev.ID, ev.Provider, parsed)
}

func (s *Service) apply(
	ctx context.Context,
	eventID, provider string,
	ev entitlement.Event,
) Outcome {
	userID, err := s.resolve(ctx, ev.Ref())
	if errors.Is(err, core.ErrUnresolvable) {
		s.logger.Warn("webhook target not found, acknowledging",
			"provider", provider,
			"event_id", eventID,
			"kind", ev.Kind(),
			"user_id", ev.Ref().UserID,
			"customer_id", ev.Ref().CustomerID,
		)
		if err := s.stores.Ledger.MarkProcessed(ctx, eventID, s.clock.Now().UTC()); err != nil {
			s.fail(ctx, eventID, provider, err)
			return OutcomeFailed
		}
		return OutcomeUnresolvable
	}
	if err != nil {
		s.fail(ctx, eventID, provider, err)
		return OutcomeFailed
	}

	if err := s.transition(ctx, eventID, provider, userID, ev); err != nil {
		s.fail(ctx, eventID, provider, err)
		return OutcomeFailed
	}
	return OutcomeApplied
}

// resolve finds the profile owner by account id first, then by billing
// customer id.
func (s *Service) resolve(ctx context.Context, target entitlement.Target) (string, error) {
	if target.UserID != "" && s.users != nil {
		exists, err := s.users.Exists(ctx, target.UserID)
		if err != nil {
			return "", core.StoreError("resolve user", err)
		}
		if exists {
			return target.UserID, nil
		}
	}

	if target.CustomerID != "" {
		p, err := s.stores.Profiles.GetByBillingCustomerID(ctx, target.CustomerID)
		switch {
		case err == nil:
			return p.UserID, nil
		case !errors.Is(err, core.ErrNotFound):
			return "", core.StoreError("resolve customer", err)
		}
	}

	return "", fmt.Errorf("resolve webhook target: %w", core.ErrUnresolvable)
}

func (s *Service) transition(
	ctx context.Context,
	eventID, provider, userID string,
	ev entitlement.Event,
) error {
	now := s.clock.Now().UTC()

	return s.tx.WithinTx(ctx, func(tx core.DBTX) error {
		st := s.factory(tx)

		if _, err := st.Profiles.EnsureExists(ctx,
			profile.NewWithTrialDefaults(userID, now, s.trialLength)); err != nil {
			return err
		}
		p, err := st.Profiles.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		decision := entitlement.Transition(p.EntitlementState(), ev, now, s.policy)

		attrs := []any{
			"provider", provider,
			"event_id", eventID,
			"user_id", userID,
			"kind", ev.Kind(),
			"from", p.EntitlementStatus,
			"to", decision.Next.Status,
		}
		switch {
		case decision.Warn:
			s.logger.Warn(decision.Note, attrs...)
		case decision.Note != "":
			s.logger.Info(decision.Note, attrs...)
		case decision.Changed:
			s.logger.Info("entitlement updated", append(attrs, "cadence_started", decision.CadenceStarted)...)
		}

		if decision.Changed {
			p.ApplyEntitlement(decision.Next)
			if err := st.Profiles.Save(ctx, p); err != nil {
				return err
			}
		}

		return st.Ledger.MarkProcessed(ctx, eventID, now)
	})
}

func (s *Service) fail(ctx context.Context, eventID, provider string, cause error) {
	core.SetSpanError(ctx, cause)
	s.logger.Error("webhook processing failed",
		"provider", provider,
		"event_id", eventID,
		"error", cause,
	)
	if err := s.stores.Ledger.MarkFailed(ctx, eventID, cause.Error()); err != nil {
		s.logger.Error("record webhook failure",
			"event_id", eventID,
			"error", err,
		)
	}
}
