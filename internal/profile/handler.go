// AngelaMos | 2026
// handler.go

package profile

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

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
) {
	r.Route("/profile", func(r chi.Router) {
		r.Use(authenticator)

		r.Post("/", h.Ensure)
		r.Get("/entitlement", h.GetEntitlement)
		r.Put("/timezone", h.UpdateTimezone)
		r.Post("/trial", h.StartTrial)
	})

	r.With(authenticator).Post("/intake", h.SubmitIntake)
}

func (h *Handler) Ensure(w http.ResponseWriter, r *http.Request) {
	var req EnsureProfileRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	snap, err := h.service.Ensure(r.Context(), middleware.GetUserID(r.Context()), req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, snap)
}

func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetEntitlementSnapshot(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, snap)
}

func (h *Handler) UpdateTimezone(w http.ResponseWriter, r *http.Request) {
	var req UpdateTimezoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	snap, err := h.service.UpdateTimezone(r.Context(), middleware.GetUserID(r.Context()), req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, snap)
}

func (h *Handler) StartTrial(w http.ResponseWriter, r *http.Request) {
	var req StartTrialRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	snap, err := h.service.StartTrial(r.Context(), middleware.GetUserID(r.Context()), req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, snap)
}

func (h *Handler) SubmitIntake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.SubmitIntake(r.Context(), middleware.GetUserID(r.Context()), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, resp)
}

// decodeOptional accepts an empty body as the zero request.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			core.BadRequest(w, "invalid request body")
			return false
		}
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		core.Unauthorized(w, "sign in to continue")
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, invalidMessage(err))
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "profile")
	case errors.Is(err, core.ErrRetryable):
		core.ServiceUnavailable(w)
	default:
		core.InternalServerError(w, err)
	}
}

func invalidMessage(err error) string {
	switch {
	case errors.Is(err, errUnknownTimezone):
		return "unknown timezone"
	case errors.Is(err, errTimezoneRequired):
		return "timezone is required"
	}
	return "invalid answers"
}
