// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/billing"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles incoming webhook events from Stripe. It is the
// authoritative writer of subscription documents: entitlement decisions
// follow whatever it persists.
type WebhookHandler struct {
	billing billing.Service
	store   *entitlement.Store
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, store *entitlement.Store, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		store:   store,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	// Route to event-specific handler
	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionChanged(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.Customer == nil {
		h.logger.Warn("checkout session missing customer", "session_id", session.ID)
		return
	}

	// The subscription.created event carries the full record; this event
	// only confirms the session completed.
	h.logger.Info("checkout completed", "session_id", session.ID, "customer_id", session.Customer.ID)
}

func (h *WebhookHandler) handleSubscriptionChanged(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	uid, err := h.uidForCustomer(sub.Customer.ID)
	if err != nil {
		h.logger.Warn("no user for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID)
		return
	}

	rec := h.billing.RecordFromSubscription(&sub)
	saved, err := h.store.SetSubscription(webhookCtx(), uid, rec)
	if err != nil {
		h.logger.Error("failed to save subscription", "error", err, "uid", uid)
		return
	}

	h.logger.Info("subscription event processed",
		"uid", uid, "status", saved.Status, "tier", saved.Tier, "version", saved.Version)
}

func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}
	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return
	}

	uid, err := h.uidForCustomer(sub.Customer.ID)
	if err != nil {
		h.logger.Warn("no user for subscription deletion", "customer_id", sub.Customer.ID)
		return
	}

	rec := &domain.SubscriptionRecord{
		Status:     domain.SubscriptionStatusCanceled,
		CustomerID: sub.Customer.ID,
	}
	if _, err := h.store.SetSubscription(webhookCtx(), uid, rec); err != nil {
		h.logger.Error("failed to mark subscription canceled", "error", err, "uid", uid)
		return
	}

	h.logger.Info("subscription deleted", "uid", uid, "subscription_id", sub.ID)
}

func (h *WebhookHandler) handlePaymentSucceeded(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}
	if invoice.Customer == nil {
		return
	}

	uid, err := h.uidForCustomer(invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("no user for payment succeeded", "customer_id", invoice.Customer.ID)
		return
	}

	// Recovery from past_due: pull the full record so the period dates are
	// fresh too, since a recovered invoice usually opens a new cycle.
	rec, err := h.billing.LatestSubscription(invoice.Customer.ID)
	if err != nil || rec == nil {
		h.logger.Warn("could not pull subscription after payment", "error", err, "uid", uid)
		return
	}
	rec.CustomerID = invoice.Customer.ID
	if _, err := h.store.SetSubscription(webhookCtx(), uid, rec); err != nil {
		h.logger.Error("failed to save subscription after payment", "error", err, "uid", uid)
	}
}

func (h *WebhookHandler) handlePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}
	if invoice.Customer == nil {
		return
	}

	uid, err := h.uidForCustomer(invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("no user for payment failed", "customer_id", invoice.Customer.ID)
		return
	}

	rec, err := h.store.GetSubscription(webhookCtx(), uid)
	if err != nil {
		h.logger.Error("failed to load subscription on payment failure", "error", err, "uid", uid)
		return
	}
	rec.Status = domain.SubscriptionStatusPastDue
	if _, err := h.store.SetSubscription(webhookCtx(), uid, rec); err != nil {
		h.logger.Error("failed to set past_due", "error", err, "uid", uid)
		return
	}

	h.logger.Warn("payment failed", "uid", uid, "customer_id", invoice.Customer.ID)
}

func (h *WebhookHandler) uidForCustomer(customerID string) (string, error) {
	return h.store.FindUIDByCustomer(webhookCtx(), customerID)
}

// webhookCtx returns a background context for webhook processing.
// Webhooks are async events and don't have a user request context.
func webhookCtx() context.Context {
	return context.Background()
}
