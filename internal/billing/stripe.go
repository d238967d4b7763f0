// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/adforge/adforge/internal/domain"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, uid string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for the tier.
	// Returns the session ID and the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID string, tier domain.SubscriptionTier, successURL, cancelURL string) (sessionID, url string, err error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// LatestSubscription returns the customer's most recent subscription as
	// a domain record, or nil when the customer has none.
	LatestSubscription(customerID string) (*domain.SubscriptionRecord, error)

	// CancelSubscription sets the customer's current subscription to cancel
	// at period end.
	CancelSubscription(customerID string) error

	// ReactivateSubscription removes the cancel_at_period_end flag from the
	// customer's current subscription.
	ReactivateSubscription(customerID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// RecordFromSubscription translates a Stripe subscription into the
	// domain record the entitlement store persists.
	RecordFromSubscription(sub *stripe.Subscription) *domain.SubscriptionRecord

	// TierForPriceID returns the subscription tier for a given Stripe price ID.
	TierForPriceID(priceID string) domain.SubscriptionTier
}

// PriceConfig holds the Stripe price IDs for each plan.
type PriceConfig struct {
	TrialMonthlyPriceID    string
	StarterMonthlyPriceID  string
	ProMonthlyPriceID      string
	BusinessMonthlyPriceID string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToTier   map[string]domain.SubscriptionTier
	tierToPrice   map[domain.SubscriptionTier]string
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which tiers.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToTier := make(map[string]domain.SubscriptionTier)
	tierToPrice := make(map[domain.SubscriptionTier]string)
	for tier, priceID := range map[domain.SubscriptionTier]string{
		domain.TierTrial:    prices.TrialMonthlyPriceID,
		domain.TierStarter:  prices.StarterMonthlyPriceID,
		domain.TierPro:      prices.ProMonthlyPriceID,
		domain.TierBusiness: prices.BusinessMonthlyPriceID,
	} {
		if priceID != "" {
			priceToTier[priceID] = tier
			tierToPrice[tier] = priceID
		}
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToTier:   priceToTier,
		tierToPrice:   tierToPrice,
	}
}

func (s *stripeService) CreateCustomer(email, uid string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.AddMetadata("uid", uid)
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID string, tier domain.SubscriptionTier, successURL, cancelURL string) (string, string, error) {
	priceID, ok := s.tierToPrice[tier]
	if !ok {
		return "", "", domain.Invalid("billing.CreateCheckoutSession", fmt.Sprintf("unknown tier %q", tier))
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) LatestSubscription(customerID string) (*domain.SubscriptionRecord, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(1)

	it := subscription.List(params)
	for it.Next() {
		return s.RecordFromSubscription(it.Subscription()), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe list subscriptions: %w", err)
	}
	return nil, nil
}

// latestSubscriptionID returns the ID of the customer's most recent
// subscription.
func (s *stripeService) latestSubscriptionID(customerID string) (string, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(1)

	it := subscription.List(params)
	for it.Next() {
		return it.Subscription().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("stripe list subscriptions: %w", err)
	}
	return "", domain.NotFound("billing.latestSubscriptionID", "subscription", customerID)
}

// RecordFromSubscription translates a Stripe subscription into the domain
// record the entitlement store persists.
func (s *stripeService) RecordFromSubscription(sub *stripe.Subscription) *domain.SubscriptionRecord {
	rec := &domain.SubscriptionRecord{
		Status:      statusFromStripe(sub.Status),
		CustomerID:  sub.Customer.ID,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		rec.Tier = s.TierForPriceID(sub.Items.Data[0].Price.ID)
	}
	return rec
}

func statusFromStripe(status stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return domain.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return domain.SubscriptionStatusPending
	default:
		return domain.SubscriptionStatusInactive
	}
}

func (s *stripeService) CancelSubscription(customerID string) error {
	subID, err := s.latestSubscriptionID(customerID)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	if _, err := subscription.Update(subID, params); err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) ReactivateSubscription(customerID string) error {
	subID, err := s.latestSubscriptionID(customerID)
	if err != nil {
		return err
	}
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	if _, err := subscription.Update(subID, params); err != nil {
		return fmt.Errorf("stripe reactivate subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) TierForPriceID(priceID string) domain.SubscriptionTier {
	return s.priceToTier[priceID]
}
