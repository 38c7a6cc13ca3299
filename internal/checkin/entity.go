// AngelaMos | 2026
// entity.go

package checkin

import (
	"time"
)

// Checkin is one weekly submission. At most one row exists per user and
// week; DueAt is rewritten whenever the cadence is recomputed. AdvancedWeek
// is the cadence week the completion moved the profile to.
type Checkin struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	WeekNumber   int        `db:"week_number"`
	SubmittedAt  time.Time  `db:"submitted_at"`
	Payload      []byte     `db:"payload"`
	DueAt        *time.Time `db:"due_at"`
	AdvancedWeek *int       `db:"advanced_week"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (c *Checkin) OwnedBy(userID string) bool {
	return c.UserID == userID
}
