// AngelaMos | 2026
// dto.go

package checkin

import (
	"encoding/json"
	"time"
)

type SubmitCheckinRequest struct {
	CheckinID   string          `json:"checkin_id"   validate:"required,max=128"`
	WeekNumber  int             `json:"week_number"  validate:"required,min=1"`
	Payload     json.RawMessage `json:"payload"      validate:"required"`
	CompletedAt *time.Time      `json:"completed_at"`
}

type CompleteRequest struct {
	UserID      string
	CheckinID   string
	WeekNumber  int
	Payload     []byte
	CompletedAt time.Time
}

type Result struct {
	Score        float64   `json:"score"`
	Potential    *float64  `json:"potential,omitempty"`
	ModelVersion string    `json:"model_version"`
	GeneratedAt  time.Time `json:"generated_at"`
	NextDueAt    time.Time `json:"next_due_at"`
	WeekNumber   int       `json:"week_number"`
	Reused       bool      `json:"reused"`
}
