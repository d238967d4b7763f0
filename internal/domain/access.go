package domain

// This file defines the access decision derived from identity, claims, and
// subscription state. Resolve is pure: callers own every refresh trigger.

// DecisionState is the outcome of entitlement resolution.
type DecisionState string

const (
	DecisionPending       DecisionState = "pending"
	DecisionGranted       DecisionState = "granted"
	DecisionDenied        DecisionState = "denied"
	DecisionAdminOverride DecisionState = "admin-override"
)

// DenyReason explains a denied decision and selects the redirect target.
type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenySubscription    DenyReason = "subscription"
)

// Well-known paths used by redirect decisions.
const (
	LoginPath     = "/login"
	SubscribePath = "/subscribe"
	LandingPath   = "/adgenerator"
)

// AccessDecision is the derived, never-persisted access verdict for one
// identity against the paid-feature gate.
type AccessDecision struct {
	State        DecisionState
	Reason       DenyReason // set only when State == DecisionDenied
	RedirectPath string     // set only when State == DecisionDenied
}

// Allowed reports whether the decision grants paid-feature access.
func (d AccessDecision) Allowed() bool {
	return d.State == DecisionGranted || d.State == DecisionAdminOverride
}

// Resolve derives an AccessDecision from the current identity, its
// force-refreshed claims, and the latest subscription snapshot.
//
// Order matters: the admin override is checked before subscription state so
// admins keep access with an inactive subscription, and claims are checked
// before subscription so an unresolved admin check never leaks a denial.
func Resolve(identity *Identity, claims Claims, sub *SubscriptionRecord) AccessDecision {
	if identity == nil {
		return AccessDecision{
			State:        DecisionDenied,
			Reason:       DenyUnauthenticated,
			RedirectPath: LoginPath,
		}
	}
	if !claims.Fetched {
		return AccessDecision{State: DecisionPending}
	}
	if claims.IsAdmin() {
		return AccessDecision{State: DecisionAdminOverride}
	}
	if sub == nil || sub.Status == SubscriptionStatusChecking {
		return AccessDecision{State: DecisionPending}
	}
	if identity.EmailVerified && sub.IsActive() {
		return AccessDecision{State: DecisionGranted}
	}
	return AccessDecision{
		State:        DecisionDenied,
		Reason:       DenySubscription,
		RedirectPath: SubscribePath,
	}
}
