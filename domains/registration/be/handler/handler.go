package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
)

// Registrar is the behaviour the handler needs from the registration service.
type Registrar interface {
	Register(ctx context.Context, in service.Input) (service.Result, error)
}

// Handler exposes tenant registration over HTTP.
type Handler struct {
	svc    Registrar
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Registrar, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("registration service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts POST /register on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/register", h.Register)
}

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Subdomain            string `json:"subdomain"`
}

type registerResponse struct {
	TenantID string `json:"tenant_id"`
	Domain   string `json:"domain"`
	UserID   string `json:"user_id"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  service.FieldErrors `json:"errors,omitempty"`
}

// Register implements POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "The request body must be a JSON object."})
		return
	}

	res, err := h.svc.Register(r.Context(), service.Input{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
		Subdomain:            req.Subdomain,
	})
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Message: "The given data was invalid.",
				Errors:  validationErr.Fields,
			})
			return
		}
		platformlogging.FromRequest(r, h.logger).Error("register tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Registration failed."})
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		TenantID: res.TenantID,
		Domain:   res.Domain,
		UserID:   res.UserID.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
