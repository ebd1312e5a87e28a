package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Service is the subset of the tenants service used over HTTP.
type Service interface {
	Find(ctx context.Context, id string) (service.Tenant, error)
	List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error)
}

// Handler exposes tenant information over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant endpoints on r. The tenant of GET /tenant comes from the
// host middleware; /admin/tenants requires the admin role.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenant", h.Current)
	r.With(platformauth.RequireAdmin).Get("/admin/tenants", h.List)
}

type tenantResponse struct {
	ID           string         `json:"id"`
	Domain       string         `json:"domain,omitempty"`
	DatabaseName string         `json:"database_name"`
	Data         map[string]any `json:"data"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type listResponse struct {
	Items []tenantResponse `json:"items"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Current implements GET /api/tenant.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "No tenant serves this host."})
		return
	}

	t, err := h.svc.Find(r.Context(), space.TenantID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "Tenant not found."})
			return
		}
		platformlogging.FromRequest(r, h.logger).Error("find tenant", zap.String("tenant_id", space.TenantID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error."})
		return
	}

	resp := toResponse(t)
	resp.Domain = space.Domain
	writeJSON(w, http.StatusOK, resp)
}

// List implements GET /api/admin/tenants?prefix=&limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	items, err := h.svc.List(r.Context(), opts)
	if err != nil {
		platformlogging.FromRequest(r, h.logger).Error("list tenants", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error."})
		return
	}

	resp := listResponse{Items: make([]tenantResponse, 0, len(items))}
	for _, t := range items {
		resp.Items = append(resp.Items, toResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListOptions(r *http.Request) (service.ListOptions, error) {
	q := r.URL.Query()

	var opts service.ListOptions
	if prefix := q.Get("prefix"); prefix != "" {
		opts.IDPrefix = &prefix
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return service.ListOptions{}, errors.New(name + " must be a non-negative integer")
		}
		*dst = n
	}
	return opts, nil
}

func toResponse(t service.Tenant) tenantResponse {
	data := t.Data
	if data == nil {
		data = map[string]any{}
	}
	return tenantResponse{
		ID:           t.ID,
		DatabaseName: t.DatabaseName,
		Data:         data,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
