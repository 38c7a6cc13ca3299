// AngelaMos | 2026
// handler.go

package checkin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	submitLimits ...func(http.Handler) http.Handler,
) {
	r.Route("/checkins", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(submitLimits...)

		r.Post("/", h.Submit)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	var completedAt time.Time
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	result, err := h.service.CompleteCheckin(r.Context(), CompleteRequest{
		UserID:      middleware.GetUserID(r.Context()),
		CheckinID:   req.CheckinID,
		WeekNumber:  req.WeekNumber,
		Payload:     req.Payload,
		CompletedAt: completedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrUnauthorized):
			core.Unauthorized(w, "sign in to submit your check-in")
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, "check-in could not be accepted, please review your answers")
		case errors.Is(err, core.ErrRetryable):
			core.ServiceUnavailable(w)
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	if result.Reused {
		core.OK(w, result)
		return
	}
	core.Created(w, result)
}
