// Package domain contains core business types and interfaces.
//
// This file defines the identity and subscription types that feed entitlement
// decisions. The identity provider owns the Identity lifecycle; the billing
// backend owns the SubscriptionRecord — the service holds read-only copies.
package domain

// Role is a custom claim attached to an identity token.
type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
)

// SubscriptionStatus represents the possible states of a user's subscription.
//
// "checking" is the client-side initial state before the first snapshot of
// the subscription document arrives; it is never written by the backend.
type SubscriptionStatus string

const (
	SubscriptionStatusChecking SubscriptionStatus = "checking"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	TierTrial    SubscriptionTier = "trial_monthly"
	TierStarter  SubscriptionTier = "starter_monthly"
	TierPro      SubscriptionTier = "pro_monthly"
	TierBusiness SubscriptionTier = "business_monthly"
)

// Identity is the authenticated principal as reported by the identity
// provider. Claims are carried separately because they are only as fresh as
// the last force-refresh.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
}

// Claims holds force-refreshed custom claims for an identity.
//
// Fetched distinguishes "claims not yet loaded" from "loaded with no role";
// an unfetched Claims value must never grant anything.
type Claims struct {
	Role    Role
	Fetched bool
}

// IsAdmin returns true only for successfully fetched admin claims.
// A failed or pending claims fetch is fail-closed.
func (c Claims) IsAdmin() bool {
	return c.Fetched && c.Role == RoleAdmin
}

// SubscriptionRecord is the per-identity subscription document.
//
// Version increases monotonically with each backend write and implements
// last-writer-wins when snapshots arrive out of order.
type SubscriptionRecord struct {
	Status        SubscriptionStatus
	Tier          SubscriptionTier
	CustomerID    string
	RequestedTier SubscriptionTier // admin-initiated pending change, optional
	PeriodStart   int64            // unix seconds, billing cycle start (0 = no cycle yet)
	PeriodEnd     int64
	Version       int64
}

// IsActive returns true if the subscription grants paid-feature access.
// Trialing is equivalent to active for every gate.
func (s *SubscriptionRecord) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// PlanIncludes returns true if the record's tier is one of the given tiers.
func (s *SubscriptionRecord) PlanIncludes(tiers ...SubscriptionTier) bool {
	for _, t := range tiers {
		if s.Tier == t {
			return true
		}
	}
	return false
}

// UserSummary is the admin-facing view of a user, as returned by the admin
// listing endpoints.
type UserSummary struct {
	UID           string             `json:"uid"`
	Email         string             `json:"email"`
	EmailVerified bool               `json:"emailVerified"`
	Tier          SubscriptionTier   `json:"tier"`
	Status        SubscriptionStatus `json:"status"`
	Used          int                `json:"used"`
	Cap           int                `json:"cap"`
	IsAdmin       bool               `json:"isAdmin"`
}
