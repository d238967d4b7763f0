// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements subscription management backed by Stripe.
//
// Routes handled:
//   - POST /create-checkout-session -> CreateCheckout
//   - POST /create-portal-session   -> OpenPortal
//   - GET  /sync-subscription       -> SyncSubscription
//   - POST /billing/cancel          -> CancelSubscription
//   - POST /billing/reactivate      -> ReactivateSubscription
package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/billing"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
)

// BillingHandler handles billing and subscription management HTTP requests.
type BillingHandler struct {
	billing billing.Service
	store   *entitlement.Store
	poller  *entitlement.SyncPoller
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, store *entitlement.Store, poller *entitlement.SyncPoller, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		store:   store,
		poller:  poller,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
// All routes require a signed-in user; none require an active subscription,
// since this is how a user gets one.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /create-checkout-session", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /create-portal-session", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("GET /sync-subscription", requireUser(http.HandlerFunc(h.SyncSubscription)))
	mux.Handle("POST /billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
}

// validCheckoutTiers are the plans a user can check out into.
var validCheckoutTiers = map[domain.SubscriptionTier]bool{
	domain.TierTrial:    true,
	domain.TierStarter:  true,
	domain.TierPro:      true,
	domain.TierBusiness: true,
}

type checkoutRequest struct {
	Tier domain.SubscriptionTier `json:"tier"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckout creates a Stripe Checkout session for the requested tier and
// returns the URL the client redirects to. The in-flight session is recorded
// so the post-checkout sync knows what it is waiting for; starting a new
// checkout replaces any previous pending one.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_checkout"

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !validCheckoutTiers[req.Tier] {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, fmt.Sprintf("Unknown plan %q", req.Tier)))
		return
	}

	rec, err := h.store.GetSubscription(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// The subscription document must carry the customer ID before checkout
	// completes: webhook events identify users by customer, not UID.
	customerID := rec.CustomerID
	if customerID == "" {
		customerID, err = h.billing.CreateCustomer(identity.Email, identity.UID)
		if err != nil {
			h.logger.Error("failed to create billing customer", "error", err, "uid", identity.UID)
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Could not initialize billing"))
			return
		}
		rec.CustomerID = customerID
		if _, err := h.store.SetSubscription(r.Context(), identity.UID, rec); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	successURL := fmt.Sprintf("%s/account?checkout=success&session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/account?checkout=canceled", h.baseURL)

	sessionID, url, err := h.billing.CreateCheckoutSession(customerID, req.Tier, successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "uid", identity.UID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Could not create checkout session"))
		return
	}

	if err := h.store.PutPendingCheckout(r.Context(), identity.UID, entitlement.PendingCheckout{
		SessionID: sessionID,
		Tier:      req.Tier,
	}); err != nil {
		h.logger.Error("failed to record pending checkout", "error", err, "uid", identity.UID)
	}

	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: sessionID, URL: url})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.open_portal"

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	rec, err := h.store.GetSubscription(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if rec.CustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ECONFLICT, op, "No billing account yet. Subscribe first."))
		return
	}

	returnURL := fmt.Sprintf("%s/account", h.baseURL)
	url, err := h.billing.CreatePortalSession(rec.CustomerID, returnURL)
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "uid", identity.UID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Could not open billing portal"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// syncResponse reports the post-checkout activation result.
type syncResponse struct {
	Status domain.SubscriptionStatus `json:"status"`
	Tier   domain.SubscriptionTier   `json:"tier"`
}

// SyncSubscription is called by the client after returning from Stripe
// Checkout. The webhook is the authoritative write path; this endpoint pulls
// the latest state from Stripe as a fallback for missed webhooks, then polls
// the subscription document until activation lands or attempts run out.
func (h *BillingHandler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "handler.sync_subscription"

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	pending, err := h.store.TakePendingCheckout(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if pending != nil {
		h.logger.Info("syncing after checkout",
			"uid", identity.UID, "session_id", pending.SessionID, "tier", pending.Tier)
	}

	// Pull from Stripe directly in case the webhook has not arrived yet.
	if h.billing != nil {
		if rec, err := h.store.GetSubscription(r.Context(), identity.UID); err == nil && rec.CustomerID != "" {
			latest, err := h.billing.LatestSubscription(rec.CustomerID)
			if err != nil {
				h.logger.Warn("could not pull subscription from stripe", "error", err, "uid", identity.UID)
			} else if latest != nil {
				latest.CustomerID = rec.CustomerID
				if _, err := h.store.SetSubscription(r.Context(), identity.UID, latest); err != nil {
					h.logger.Error("failed to save pulled subscription", "error", err, "uid", identity.UID)
				}
			}
		}
	}

	rec, err := h.poller.AwaitActivation(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Status: rec.Status, Tier: rec.Tier})
}

// CancelSubscription sets the subscription to cancel at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.updateCancelFlag(w, r, "handler.cancel_subscription", true)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.updateCancelFlag(w, r, "handler.reactivate_subscription", false)
}

func (h *BillingHandler) updateCancelFlag(w http.ResponseWriter, r *http.Request, op string, cancel bool) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	rec, err := h.store.GetSubscription(r.Context(), identity.UID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if rec.CustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ECONFLICT, op, "No subscription to update"))
		return
	}

	if cancel {
		err = h.billing.CancelSubscription(rec.CustomerID)
	} else {
		err = h.billing.ReactivateSubscription(rec.CustomerID)
	}
	if err != nil {
		h.logger.Error("subscription update failed", "error", err, "uid", identity.UID, "cancel", cancel)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Could not update subscription"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
