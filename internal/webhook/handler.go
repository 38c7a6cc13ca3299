// AngelaMos | 2026
// handler.go

package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/cadence-api/internal/core"
)

const defaultMaxBodyBytes = 1 << 20

type Handler struct {
	service      *Service
	maxBodyBytes int64
}

func NewHandler(service *Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes mounts the provider endpoints. They carry no bearer auth;
// each provider authenticates its own deliveries.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/{provider}", h.Receive)
	})
}

type receiveResponse struct {
	Received bool    `json:"received"`
	EventID  string  `json:"event_id"`
	Outcome  Outcome `json:"outcome"`
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.service.Provider(chi.URLParam(r, "provider"))
	if !ok {
		core.NotFound(w, "webhook provider")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			core.JSONError(w, core.NewAppError(err, "payload too large",
				http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"))
			return
		}
		core.BadRequest(w, "could not read request body")
		return
	}

	env, err := provider.Verify(r.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnauthorized):
			core.Unauthorized(w, "invalid webhook signature")
		default:
			core.BadRequest(w, "malformed webhook payload")
		}
		return
	}

	outcome, err := h.service.Ingest(r.Context(), env)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, "malformed webhook payload")
		default:
			core.ServiceUnavailable(w)
		}
		return
	}

	core.OK(w, receiveResponse{
		Received: true,
		EventID:  env.ID,
		Outcome:  outcome,
	})
}
