// AngelaMos | 2026
// repository.go

package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, c *Checkin) error
	Get(ctx context.Context, id string) (*Checkin, error)
	GetByUserWeek(ctx context.Context, userID string, week int) (*Checkin, error)
	Latest(ctx context.Context, userID string) (*Checkin, error)
	RecordAdvance(ctx context.Context, id string, due time.Time, week int) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const checkinColumns = `id, user_id, week_number, submitted_at, payload, due_at,
		advanced_week, created_at`

// Insert fails with core.ErrDuplicateKey when the id or the (user, week)
// pair is already taken.
func (r *repository) Insert(ctx context.Context, c *Checkin) error {
	query := `
		INSERT INTO checkins (id, user_id, week_number, submitted_at, payload, due_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	payload := c.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.GetContext(ctx, &c.CreatedAt, query,
		c.ID,
		c.UserID,
		c.WeekNumber,
		c.SubmittedAt.UTC(),
		payload,
		c.DueAt,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert checkin: %w", core.ErrDuplicateKey)
		}
		return core.StoreError("insert checkin", err)
	}

	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Checkin, error) {
	return r.getOne(ctx, "get checkin",
		`SELECT `+checkinColumns+` FROM checkins WHERE id = $1`, id)
}

func (r *repository) GetByUserWeek(
	ctx context.Context,
	userID string,
	week int,
) (*Checkin, error) {
	return r.getOne(ctx, "get checkin by week",
		`SELECT `+checkinColumns+` FROM checkins WHERE user_id = $1 AND week_number = $2`,
		userID, week)
}

func (r *repository) Latest(ctx context.Context, userID string) (*Checkin, error) {
	return r.getOne(ctx, "latest checkin", `
		SELECT `+checkinColumns+`
		FROM checkins
		WHERE user_id = $1
		ORDER BY week_number DESC, submitted_at DESC
		LIMIT 1`, userID)
}

// RecordAdvance stores the due instant and the cadence week a completion
// produced.
func (r *repository) RecordAdvance(
	ctx context.Context,
	id string,
	due time.Time,
	week int,
) error {
	query := `UPDATE checkins SET due_at = $2, advanced_week = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, due.UTC(), week)
	if err != nil {
		return core.StoreError("update checkin due", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.StoreError("update checkin due", err)
	}

	if rows == 0 {
		return fmt.Errorf("update checkin due: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) getOne(
	ctx context.Context,
	op, query string,
	args ...any,
) (*Checkin, error) {
	var c Checkin
	err := r.db.GetContext(ctx, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StoreError(op, err)
	}

	return &c, nil
}
