// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the admin user-management API.
//
// Routes handled:
//   - GET  /admin/users                   -> ListUsers
//   - POST /admin/users/{uid}/role        -> SetRole
//   - POST /admin/users/{uid}/tier        -> SetTier
//   - POST /admin/users/{uid}/usage/reset -> ResetUsage
//   - POST /admin/users/{uid}/usage/grant -> GrantUsage
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
	"github.com/adforge/adforge/internal/identity"
	"github.com/adforge/adforge/internal/service"
)

// defaultUserListLimit caps the admin user listing page size.
const defaultUserListLimit = 100

// AdminHandler handles admin user-management requests. Every route is behind
// the admin guard; handlers trust that and do not re-check the role.
type AdminHandler struct {
	identities identity.Provider
	store      *entitlement.Store
	usage      service.UsageService
	logger     *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(identities identity.Provider, store *entitlement.Store, usage service.UsageService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		identities: identities,
		store:      store,
		usage:      usage,
		logger:     logger,
	}
}

// RegisterRoutes registers admin routes on the provided mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /admin/users", requireAdmin(http.HandlerFunc(h.ListUsers)))
	mux.Handle("POST /admin/users/{uid}/role", requireAdmin(http.HandlerFunc(h.SetRole)))
	mux.Handle("POST /admin/users/{uid}/tier", requireAdmin(http.HandlerFunc(h.SetTier)))
	mux.Handle("POST /admin/users/{uid}/usage/reset", requireAdmin(http.HandlerFunc(h.ResetUsage)))
	mux.Handle("POST /admin/users/{uid}/usage/grant", requireAdmin(http.HandlerFunc(h.GrantUsage)))
}

// ListUsers returns every user with their subscription and usage state.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := defaultUserListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= defaultUserListLimit {
			limit = n
		}
	}

	identities, err := h.identities.ListUsers(r.Context(), limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	users := make([]domain.UserSummary, 0, len(identities))
	for _, id := range identities {
		summary := domain.UserSummary{
			UID:           id.UID,
			Email:         id.Email,
			EmailVerified: id.EmailVerified,
		}

		if claims, err := h.identities.FetchClaims(r.Context(), id.UID); err == nil {
			summary.IsAdmin = claims.IsAdmin()
		}

		sub, err := h.store.GetSubscription(r.Context(), id.UID)
		if err != nil {
			h.logger.Warn("could not load subscription for listing", "error", err, "uid", id.UID)
			users = append(users, summary)
			continue
		}
		summary.Tier = sub.Tier
		summary.Status = sub.Status

		if usage, err := h.usage.Peek(r.Context(), id.UID); err == nil {
			summary.Used = usage.Used
			summary.Cap = usage.Cap
		}

		users = append(users, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type setRoleRequest struct {
	Role domain.Role `json:"role"`
}

// SetRole grants or clears the admin role on a user. Takes effect on the
// target's next force-refreshed claims fetch, not their current token.
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin_set_role"

	uid := r.PathValue("uid")

	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleNone {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown role"))
		return
	}

	if err := h.identities.SetRole(r.Context(), uid, req.Role); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("role updated", "uid", uid, "role", req.Role)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setTierRequest struct {
	Tier domain.SubscriptionTier `json:"tier"`
}

// SetTier grants a tier directly, bypassing billing. The record keeps its
// customer reference so a later real checkout still reconciles; the next
// webhook write overrides this grant.
func (h *AdminHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admin_set_tier"

	uid := r.PathValue("uid")

	var req setTierRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !validCheckoutTiers[req.Tier] {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown tier"))
		return
	}

	rec, err := h.store.GetSubscription(r.Context(), uid)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rec.Tier = req.Tier
	rec.RequestedTier = ""
	if !rec.IsActive() {
		rec.Status = domain.SubscriptionStatusActive
	}

	saved, err := h.store.SetSubscription(r.Context(), uid, rec)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("tier granted", "uid", uid, "tier", saved.Tier, "status", saved.Status)
	writeJSON(w, http.StatusOK, map[string]any{"tier": saved.Tier, "status": saved.Status})
}

// ResetUsage zeroes a user's usage counter for the current period.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	if err := h.usage.Reset(r.Context(), uid); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type grantUsageRequest struct {
	Count int `json:"count"`
}

// GrantUsage hands a user back some generations in the current period.
func (h *AdminHandler) GrantUsage(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	var req grantUsageRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rec, err := h.usage.Grant(r.Context(), uid, req.Count)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
