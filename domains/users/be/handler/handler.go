package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
)

// Handler exposes the authenticated user over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts GET /user on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/user", h.Me)
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	TenantID  *string   `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Me implements GET /api/user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	creds, _ := platformauth.UserFromContext(r.Context())

	user, err := h.svc.Me(r.Context(), creds)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: platformauth.MessageUnauthenticated})
		case errors.Is(err, service.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "User not found."})
		default:
			platformlogging.FromRequest(r, h.logger).Error("get current user", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error."})
		}
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		TenantID:  user.TenantID,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
