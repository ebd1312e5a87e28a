package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/service"
	usersservice "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
)

// Accounts resolves the central user behind verified credentials. The central row
// follows tenant renames, unlike the tenant claim of an already issued token.
type Accounts interface {
	Me(ctx context.Context, creds *platformauth.UserCredentials) (usersservice.User, error)
}

// Handler exposes the subdomain service over HTTP.
type Handler struct {
	svc      service.Service
	accounts Accounts
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, accounts Accounts, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("subdomains service is required")
	}
	if accounts == nil {
		panic("accounts are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, accounts: accounts, logger: logger}
}

// Routes mounts the subdomain endpoints on r. Update answers 401 itself when no
// credentials were attached by the auth middleware, and 403 when the caller belongs to
// another tenant.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/subdomain/check", h.Check)
	r.Post("/subdomain/update", h.Update)
	r.Get("/subdomain/current", h.Current)
}

type checkRequest struct {
	Subdomain string `json:"subdomain"`
}

type checkResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type updateRequest struct {
	CurrentSubdomain string `json:"current_subdomain"`
	NewSubdomain     string `json:"new_subdomain"`
}

type updateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	NewDomain string `json:"new_domain,omitempty"`
}

type currentResponse struct {
	Success bool   `json:"success"`
	Domain  string `json:"domain"`
}

// Check implements POST /api/subdomain/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, checkResponse{Available: false, Message: service.MessageInvalidFormat})
		return
	}

	result, err := h.svc.Check(r.Context(), req.Subdomain)
	if err != nil {
		platformlogging.FromRequest(r, h.logger).Error("check subdomain", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, checkResponse{Available: false, Message: "Internal server error."})
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Available: result.Available, Message: result.Message})
}

// Update implements POST /api/subdomain/update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := platformauth.UserFromContext(r.Context()); !ok {
		writeJSON(w, http.StatusUnauthorized, updateResponse{Message: platformauth.MessageUnauthenticated})
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, updateResponse{Message: service.MessageInvalidFormat})
		return
	}

	if status, message, ok := h.authorizeUpdate(r, req.CurrentSubdomain); !ok {
		writeJSON(w, status, updateResponse{Message: message})
		return
	}

	updated, err := h.svc.Update(r.Context(), req.CurrentSubdomain, req.NewSubdomain)
	if err != nil {
		status, message := h.statusForError(r, err)
		writeJSON(w, status, updateResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Success:   true,
		Message:   service.MessageUpdated,
		NewDomain: updated.Domain,
	})
}

// authorizeUpdate lets only users of the owning tenant move a subdomain. Unknown
// subdomains pass through so Update reports them with its usual status.
func (h *Handler) authorizeUpdate(r *http.Request, currentSubdomain string) (int, string, bool) {
	owner, err := h.svc.Owner(r.Context(), currentSubdomain)
	if errors.Is(err, service.ErrDomainNotFound) {
		return 0, "", true
	}
	if err != nil {
		status, message := h.statusForError(r, err)
		return status, message, false
	}

	tenantID, err := h.userTenant(r)
	if err != nil {
		platformlogging.FromRequest(r, h.logger).Error("resolve user tenant", zap.Error(err))
		return http.StatusInternalServerError, "Failed to update subdomain.", false
	}
	if tenantID == nil || *tenantID != owner {
		return http.StatusForbidden, platformauth.MessageForbidden, false
	}
	return 0, "", true
}

// Current implements GET /api/subdomain/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.userTenant(r)
	if err != nil {
		platformlogging.FromRequest(r, h.logger).Error("resolve user tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, currentResponse{Success: false})
		return
	}

	domain, err := h.svc.Current(r.Context(), tenantID, r.Host)
	if err != nil {
		platformlogging.FromRequest(r, h.logger).Error("resolve current domain", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, currentResponse{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, currentResponse{Success: true, Domain: domain})
}

// userTenant returns the tenant of the central user behind the request credentials.
// Callers without a central user fall back to the token's tenant claim.
func (h *Handler) userTenant(r *http.Request) (*string, error) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		return nil, nil
	}
	user, err := h.accounts.Me(r.Context(), creds)
	switch {
	case err == nil:
		return user.TenantID, nil
	case errors.Is(err, usersservice.ErrNotFound):
		return creds.TenantID, nil
	default:
		return nil, err
	}
}

func (h *Handler) statusForError(r *http.Request, err error) (int, string) {
	var updateErr *service.UpdateError
	switch {
	case errors.Is(err, service.ErrInvalidSubdomain):
		return http.StatusUnprocessableEntity, service.MessageInvalidFormat
	case errors.Is(err, service.ErrSubdomainTaken):
		return http.StatusUnprocessableEntity, service.MessageTaken
	case errors.Is(err, service.ErrDomainNotFound):
		return http.StatusNotFound, service.MessageCurrentNotFound
	case errors.As(err, &updateErr):
		platformlogging.FromRequest(r, h.logger).Error("update subdomain", zap.Error(err))
		return http.StatusInternalServerError, "Failed to update database: " + updateErr.Error()
	default:
		platformlogging.FromRequest(r, h.logger).Error("update subdomain", zap.Error(err))
		return http.StatusInternalServerError, "Failed to update subdomain."
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
