// AngelaMos | 2026
// entity.go

package ledger

import (
	"time"
)

const (
	ProviderStripe     = "stripe"
	ProviderRevenueCat = "revenuecat"
)

// Event is one provider notification as received. Rows are never deleted.
type Event struct {
	ID          string     `db:"event_id"`
	Provider    string     `db:"provider"`
	Type        string     `db:"event_type"`
	Payload     []byte     `db:"payload"`
	ReceivedAt  time.Time  `db:"received_at"`
	ProcessedAt *time.Time `db:"processed_at"`
	LastError   *string    `db:"last_error"`
}

func (e *Event) IsProcessed() bool {
	return e.ProcessedAt != nil
}

type RecordResult int

const (
	Inserted RecordResult = iota
	DuplicateIgnored
)

func (r RecordResult) String() string {
	if r == DuplicateIgnored {
		return "duplicate_ignored"
	}
	return "inserted"
}

type Stats struct {
	Total       int64 `db:"total"       json:"total"`
	Processed   int64 `db:"processed"   json:"processed"`
	Unprocessed int64 `db:"unprocessed" json:"unprocessed"`
	Failed      int64 `db:"failed"      json:"failed"`
}
