// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the account API: who am I, what do I get, how much
// have I used.
//
// Routes handled:
//   - GET /me    -> Me
//   - GET /usage -> Usage
package handler

import (
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/service"
)

// AccountHandler serves the signed-in user's account state.
type AccountHandler struct {
	usage  service.UsageService
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(usage service.UsageService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		usage:  usage,
		logger: logger,
	}
}

// RegisterRoutes registers account routes on the provided mux.
// Both only need a signed-in user: the subscribe page shows usage too.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /me", requireUser(http.HandlerFunc(h.Me)))
	mux.Handle("GET /usage", requireUser(http.HandlerFunc(h.Usage)))
}

// meResponse is the account snapshot the client boots from.
type meResponse struct {
	UID           string                    `json:"uid"`
	Email         string                    `json:"email"`
	EmailVerified bool                      `json:"emailVerified"`
	IsAdmin       bool                      `json:"isAdmin"`
	Tier          domain.SubscriptionTier   `json:"tier"`
	Status        domain.SubscriptionStatus `json:"status"`
	Access        string                    `json:"access"`
}

// Me returns the caller's identity, role, and entitlement decision.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	claims := auth.GetClaims(r.Context())
	decision := auth.Resolve(r.Context())

	resp := meResponse{
		UID:           identity.UID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		IsAdmin:       claims.IsAdmin(),
		Status:        domain.SubscriptionStatusChecking,
		Access:        string(decision.State),
	}
	if sub := auth.GetSubscription(r.Context()); sub != nil {
		resp.Tier = sub.Tier
		resp.Status = sub.Status
	}

	writeJSON(w, http.StatusOK, resp)
}

// Usage returns the caller's generation usage for the current period.
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rec, err := h.usage.Peek(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
