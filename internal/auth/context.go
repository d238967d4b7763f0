// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/adforge/adforge/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	identityContextKey     contextKey = "identity"
	claimsContextKey       contextKey = "claims"
	subscriptionContextKey contextKey = "subscription"
)

// GetIdentity retrieves the authenticated identity from the context.
// Returns nil for unauthenticated requests.
func GetIdentity(ctx context.Context) *domain.Identity {
	identity, ok := ctx.Value(identityContextKey).(*domain.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetIdentityFromRequest is a convenience wrapper around GetIdentity.
func GetIdentityFromRequest(r *http.Request) *domain.Identity {
	return GetIdentity(r.Context())
}

// SetIdentity stores an identity in the context. Called by the identity
// middleware after token verification.
func SetIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// GetClaims retrieves the force-refreshed custom claims from the context.
// The zero value (unfetched) is returned when no claims were resolved; it
// never grants anything.
func GetClaims(ctx context.Context) domain.Claims {
	claims, ok := ctx.Value(claimsContextKey).(domain.Claims)
	if !ok {
		return domain.Claims{}
	}
	return claims
}

// SetClaims stores resolved claims in the context.
func SetClaims(ctx context.Context, claims domain.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetSubscription retrieves the latest subscription snapshot from the
// context. Returns nil when no snapshot has been loaded, which entitlement
// resolution treats as still checking.
func GetSubscription(ctx context.Context) *domain.SubscriptionRecord {
	sub, ok := ctx.Value(subscriptionContextKey).(*domain.SubscriptionRecord)
	if !ok {
		return nil
	}
	return sub
}

// SetSubscription stores a subscription snapshot in the context.
func SetSubscription(ctx context.Context, sub *domain.SubscriptionRecord) context.Context {
	return context.WithValue(ctx, subscriptionContextKey, sub)
}

// Resolve derives the access decision from everything stored in the context.
func Resolve(ctx context.Context) domain.AccessDecision {
	return domain.Resolve(GetIdentity(ctx), GetClaims(ctx), GetSubscription(ctx))
}
