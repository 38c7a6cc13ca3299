// AngelaMos | 2026
// provider.go

package webhook

import (
	"net/http"

	"github.com/carterperez-dev/cadence-api/internal/entitlement"
)

// Envelope is a verified provider notification, translated and ready for
// the ledger. DecodeErr is set when the delivery authenticated but its body
// could not be translated; Event is nil then and the event is recorded as
// failed.
type Envelope struct {
	ID        string
	Provider  string
	Type      string
	Payload   []byte
	Event     entitlement.Event
	DecodeErr error
}

// Provider authenticates and decodes one payment provider's notifications.
// Parse skips authentication and is only used for payloads already in the
// ledger.
type Provider interface {
	Name() string
	Verify(header http.Header, body []byte) (*Envelope, error)
	Parse(body []byte) (entitlement.Event, error)
}
