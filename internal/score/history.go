// AngelaMos | 2026
// history.go

package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

// StorePrecision is the resolution of the TIMESTAMPTZ columns that persist
// score instants.
const StorePrecision = time.Microsecond

// StoredInstant returns t as it reads back from the store.
func StoredInstant(t time.Time) time.Time {
	return t.UTC().Truncate(StorePrecision)
}

// HistoryEntry is one append-only scoring result. A weekly check-in has at
// most one entry, keyed by CheckinID.
type HistoryEntry struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Source       Source    `db:"source"`
	CheckinID    *string   `db:"checkin_id"`
	WeekNumber   *int      `db:"week_number"`
	Score        float64   `db:"score"`
	Potential    *float64  `db:"potential"`
	ModelVersion string    `db:"model_version"`
	GeneratedAt  time.Time `db:"generated_at"`
	Payload      []byte    `db:"payload"`
	CreatedAt    time.Time `db:"created_at"`
}

func NewHistoryEntry(userID string, snap Snapshot, payload []byte) *HistoryEntry {
	entry := &HistoryEntry{
		ID:           uuid.New().String(),
		UserID:       userID,
		Source:       snap.Source,
		WeekNumber:   snap.WeekNumber,
		Score:        snap.Score,
		Potential:    snap.Potential,
		ModelVersion: snap.ModelVersion,
		GeneratedAt:  StoredInstant(snap.GeneratedAt),
		Payload:      payload,
	}
	if snap.CheckinID != "" {
		id := snap.CheckinID
		entry.CheckinID = &id
	}
	return entry
}

func (h *HistoryEntry) Snapshot() Snapshot {
	s := Snapshot{
		Version:      CurrentVersion,
		Score:        h.Score,
		Potential:    h.Potential,
		ModelVersion: h.ModelVersion,
		GeneratedAt:  h.GeneratedAt.UTC(),
		Source:       h.Source,
		WeekNumber:   h.WeekNumber,
	}
	if h.CheckinID != nil {
		s.CheckinID = *h.CheckinID
	}
	return s
}

type HistoryRepository interface {
	Insert(ctx context.Context, entry *HistoryEntry) error
	GetByCheckinID(ctx context.Context, checkinID string) (*HistoryEntry, error)
	LatestBySource(
		ctx context.Context,
		userID string,
		source Source,
	) (*HistoryEntry, error)
}

type historyRepository struct {
	db core.DBTX
}

func NewHistoryRepository(db core.DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

const historyColumns = `id, user_id, source, checkin_id, week_number, score, potential,
		       model_version, generated_at, payload, created_at`

func (r *historyRepository) Insert(ctx context.Context, entry *HistoryEntry) error {
	query := `
		INSERT INTO score_history (id, user_id, source, checkin_id, week_number,
		                           score, potential, model_version, generated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	payload := entry.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.GetContext(ctx, &entry.CreatedAt, query,
		entry.ID,
		entry.UserID,
		string(entry.Source),
		entry.CheckinID,
		entry.WeekNumber,
		entry.Score,
		entry.Potential,
		entry.ModelVersion,
		entry.GeneratedAt.UTC(),
		payload,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert score history: %w", core.ErrDuplicateKey)
		}
		return core.StoreError("insert score history", err)
	}

	return nil
}

func (r *historyRepository) GetByCheckinID(
	ctx context.Context,
	checkinID string,
) (*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM score_history
		WHERE checkin_id = $1`

	var entry HistoryEntry
	err := r.db.GetContext(ctx, &entry, query, checkinID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get score by checkin: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StoreError("get score by checkin", err)
	}

	return &entry, nil
}

func (r *historyRepository) LatestBySource(
	ctx context.Context,
	userID string,
	source Source,
) (*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM score_history
		WHERE user_id = $1 AND source = $2
		ORDER BY generated_at DESC, created_at DESC
		LIMIT 1`

	var entry HistoryEntry
	err := r.db.GetContext(ctx, &entry, query, userID, string(source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest score: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StoreError("latest score", err)
	}

	return &entry, nil
}
