// AngelaMos | 2026
// repository.go

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

const maxErrorLength = 1000

type Repository interface {
	Record(ctx context.Context, event Event) (RecordResult, error)
	Get(ctx context.Context, id string) (*Event, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListUnprocessed(
		ctx context.Context,
		olderThan time.Time,
		limit int,
	) ([]Event, error)
	CountUnprocessed(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// Record inserts the event. A second delivery of the same provider event id
// hits the primary key and is reported as DuplicateIgnored, not an error.
func (r *repository) Record(
	ctx context.Context,
	event Event,
) (RecordResult, error) {
	if strings.TrimSpace(event.ID) == "" {
		return Inserted, fmt.Errorf("record event: missing id: %w", core.ErrInvalidInput)
	}

	query := `
		INSERT INTO webhook_events (event_id, provider, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Provider,
		event.Type,
		payloadOrEmpty(event.Payload),
		event.ReceivedAt.UTC(),
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return DuplicateIgnored, nil
		}
		return Inserted, core.StoreError("record event", err)
	}

	return Inserted, nil
}

func (r *repository) Get(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT event_id, provider, event_type, payload, received_at,
		       processed_at, last_error
		FROM webhook_events
		WHERE event_id = $1`

	var event Event
	err := r.db.GetContext(ctx, &event, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get event: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StoreError("get event", err)
	}

	return &event, nil
}

func (r *repository) MarkProcessed(
	ctx context.Context,
	id string,
	at time.Time,
) error {
	query := `
		UPDATE webhook_events
		SET processed_at = $2, last_error = NULL
		WHERE event_id = $1`

	return r.execOne(ctx, "mark event processed", query, id, at.UTC())
}

func (r *repository) MarkFailed(ctx context.Context, id, reason string) error {
	if len(reason) > maxErrorLength {
		reason = reason[:maxErrorLength]
	}

	query := `
		UPDATE webhook_events
		SET last_error = $2
		WHERE event_id = $1 AND processed_at IS NULL`

	return r.execOne(ctx, "mark event failed", query, id, reason)
}

func (r *repository) ListUnprocessed(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT event_id, provider, event_type, payload, received_at,
		       processed_at, last_error
		FROM webhook_events
		WHERE processed_at IS NULL AND received_at <= $1
		ORDER BY received_at ASC
		LIMIT $2`

	var events []Event
	if err := r.db.SelectContext(ctx, &events, query, olderThan.UTC(), limit); err != nil {
		return nil, core.StoreError("list unprocessed events", err)
	}

	return events, nil
}

func (r *repository) CountUnprocessed(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM webhook_events WHERE processed_at IS NULL`

	var n int64
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, core.StoreError("count unprocessed events", err)
	}

	return n, nil
}

func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(processed_at) AS processed,
		       COUNT(*) FILTER (WHERE processed_at IS NULL) AS unprocessed,
		       COUNT(*) FILTER (WHERE processed_at IS NULL AND last_error IS NOT NULL) AS failed
		FROM webhook_events`

	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, core.StoreError("ledger stats", err)
	}

	return &stats, nil
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.StoreError(op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.StoreError(op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

func payloadOrEmpty(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	return payload
}
