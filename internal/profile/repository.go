// AngelaMos | 2026
// repository.go

package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/score"
)

type Repository interface {
	Insert(ctx context.Context, p *Profile) error
	// EnsureExists inserts p unless a profile for p.UserID already exists.
	EnsureExists(ctx context.Context, p *Profile) (bool, error)
	Get(ctx context.Context, userID string) (*Profile, error)
	GetForUpdate(ctx context.Context, userID string) (*Profile, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	// UpdatePreferences sets only the preferences that are still empty.
	UpdatePreferences(ctx context.Context, userID, goal, focus string) error
	Delete(ctx context.Context, userID string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const profileColumns = `user_id, entitlement_status, trial_started_at, trial_ends_at,
		       ever_subscribed, platform, product_id, entitlement_expires_at,
		       billing_customer_id, current_week_number, next_week_due_at,
		       timezone, last_result, primary_goal, focus_area,
		       created_at, updated_at`

func (r *repository) Insert(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (user_id, entitlement_status, trial_started_at,
		                      trial_ends_at, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		p.UserID,
		p.EntitlementStatus,
		p.TrialStartedAt,
		p.TrialEndsAt,
		p.Timezone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert profile: %w", core.ErrDuplicateKey)
		}
		return core.StoreError("insert profile", err)
	}

	return nil
}

func (r *repository) EnsureExists(ctx context.Context, p *Profile) (bool, error) {
	query := `
		INSERT INTO profiles (user_id, entitlement_status, trial_started_at,
		                      trial_ends_at, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		p.UserID,
		p.EntitlementStatus,
		p.TrialStartedAt,
		p.TrialEndsAt,
		p.Timezone,
	)
	if err != nil {
		return false, core.StoreError("ensure profile", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, core.StoreError("ensure profile", err)
	}

	return rows == 1, nil
}

func (r *repository) Get(ctx context.Context, userID string) (*Profile, error) {
	return r.getOne(ctx, "get profile",
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
}

func (r *repository) GetForUpdate(ctx context.Context, userID string) (*Profile, error) {
	return r.getOne(ctx, "lock profile",
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *repository) GetByBillingCustomerID(
	ctx context.Context,
	customerID string,
) (*Profile, error) {
	return r.getOne(ctx, "get profile by customer",
		`SELECT `+profileColumns+` FROM profiles WHERE billing_customer_id = $1`, customerID)
}

func (r *repository) getOne(
	ctx context.Context,
	op, query string,
	args ...any,
) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StoreError(op, err)
	}

	return &p, nil
}

func (r *repository) Save(ctx context.Context, p *Profile) error {
	query := `
		UPDATE profiles
		SET entitlement_status = $2,
		    trial_started_at = $3,
		    trial_ends_at = $4,
		    ever_subscribed = $5,
		    platform = $6,
		    product_id = $7,
		    entitlement_expires_at = $8,
		    billing_customer_id = $9,
		    current_week_number = $10,
		    next_week_due_at = $11,
		    timezone = $12,
		    last_result = $13,
		    primary_goal = $14,
		    focus_area = $15,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &p.UpdatedAt, query,
		p.UserID,
		p.EntitlementStatus,
		p.TrialStartedAt,
		p.TrialEndsAt,
		p.EverSubscribed,
		p.Platform,
		p.ProductID,
		p.EntitlementExpiresAt,
		p.BillingCustomerID,
		p.CurrentWeekNumber,
		p.NextWeekDueAt,
		p.Timezone,
		lastResultValue(p.LastResult),
		p.PrimaryGoal,
		p.FocusArea,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save profile: %w", core.ErrNotFound)
	}
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("save profile: billing customer in use: %w", core.ErrDuplicateKey)
		}
		return core.StoreError("save profile", err)
	}

	return nil
}

func (r *repository) UpdatePreferences(
	ctx context.Context,
	userID, goal, focus string,
) error {
	query := `
		UPDATE profiles
		SET primary_goal = COALESCE(NULLIF(primary_goal, ''), NULLIF($2, '')),
		    focus_area = COALESCE(NULLIF(focus_area, ''), NULLIF($3, '')),
		    updated_at = NOW()
		WHERE user_id = $1`

	result, err := r.db.ExecContext(ctx, query, userID, goal, focus)
	if err != nil {
		return core.StoreError("update preferences", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.StoreError("update preferences", err)
	}

	if rows == 0 {
		return fmt.Errorf("update preferences: %w", core.ErrNotFound)
	}

	return nil
}

// Delete removes the profile. Check-ins and score history go with it via
// ON DELETE CASCADE.
func (r *repository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
		return core.StoreError("delete profile", err)
	}
	return nil
}

func lastResultValue(s *score.Snapshot) any {
	if s == nil {
		return nil
	}
	return *s
}
