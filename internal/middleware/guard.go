// Package middleware contains HTTP middleware for the AdForge application.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/handler"
	"github.com/adforge/adforge/internal/metrics"
)

// pendingRetryAfterSeconds is sent with 503 responses while entitlement
// state is still resolving.
const pendingRetryAfterSeconds = 3

// IdentityProvider is the slice of the identity service the guard needs.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*domain.Identity, error)
	FetchClaims(ctx context.Context, uid string) (domain.Claims, error)
}

// SubscriptionSource loads the latest subscription snapshot for a user.
type SubscriptionSource interface {
	Current(ctx context.Context, uid string) (*domain.SubscriptionRecord, error)
}

// GuardMiddleware gates routes on identity, email verification, subscription
// state, and the admin role.
type GuardMiddleware struct {
	identity      IdentityProvider
	subscriptions SubscriptionSource
	logger        *slog.Logger
}

func NewGuardMiddleware(identity IdentityProvider, subscriptions SubscriptionSource, logger *slog.Logger) *GuardMiddleware {
	return &GuardMiddleware{
		identity:      identity,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// =============================================================================
// WithIdentity Middleware
// =============================================================================

// WithIdentity resolves the caller from the Authorization header and loads
// their claims and subscription snapshot into the request context.
//
// The request always continues: missing or invalid credentials simply leave
// the context unauthenticated for the Require* middleware to act on. Claims
// are re-read from the identity provider on every request rather than taken
// from the token, so a role revoked a second ago is already gone here.
func (m *GuardMiddleware) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.identity.VerifyToken(r.Context(), token)
		if err != nil {
			m.logger.Info("token verification failed",
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.SetIdentity(r.Context(), identity)

		claims, err := m.identity.FetchClaims(ctx, identity.UID)
		if err != nil {
			// Leave claims unfetched. Resolution treats this as pending,
			// never as a grant or a denial.
			m.logger.Warn("claims fetch failed", slog.String("uid", identity.UID), slog.Any("error", err))
		} else {
			ctx = auth.SetClaims(ctx, claims)
		}

		sub, err := m.subscriptions.Current(ctx, identity.UID)
		if err != nil {
			m.logger.Warn("subscription load failed", slog.String("uid", identity.UID), slog.Any("error", err))
		} else {
			ctx = auth.SetSubscription(ctx, sub)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser requires an authenticated identity.
//
// IMPORTANT: This middleware must be used AFTER WithIdentity in the chain.
// Unauthenticated API requests get 401; browser requests are redirected to
// the login page with the original URL preserved.
func (m *GuardMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetIdentity(r.Context()) == nil {
			m.denyUnauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireVerifiedEmail Middleware
// =============================================================================

// RequireVerifiedEmail requires the identity's email to be verified.
// Use AFTER RequireUser.
func (m *GuardMiddleware) RequireVerifiedEmail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity == nil {
			m.logger.Error("RequireVerifiedEmail called without identity in context")
			m.denyUnauthenticated(w, r)
			return
		}

		if !identity.EmailVerified {
			if isAPIRequest(r) {
				err := domain.Forbidden("", "Email verification required")
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}
			http.Redirect(w, r, "/verify-email-reminder", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequirePaid Middleware
// =============================================================================

// RequirePaid requires paid-feature access: a verified identity with an
// active (or trialing) subscription, or the admin role, which bypasses the
// subscription check entirely.
//
// While entitlement state is still resolving the request is answered with
// 503 and a Retry-After hint rather than a denial: a slow claims fetch must
// never bounce a paying user to the subscribe page.
//
// IMPORTANT: Use AFTER WithIdentity in the chain.
func (m *GuardMiddleware) RequirePaid(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := auth.Resolve(r.Context())
		metrics.RecordAccessDecision(string(decision.State))

		switch decision.State {
		case domain.DecisionGranted, domain.DecisionAdminOverride:
			next.ServeHTTP(w, r)

		case domain.DecisionPending:
			m.answerPending(w, r)

		default:
			if decision.Reason == domain.DenyUnauthenticated {
				m.denyUnauthenticated(w, r)
				return
			}
			if isAPIRequest(r) {
				handler.ErrorResponse(w, r, m.logger, domain.PaymentRequired(""))
				return
			}
			http.Redirect(w, r, decision.RedirectPath, http.StatusSeeOther)
		}
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin requires the admin role claim. Non-admins are sent back to
// the app landing page (browser) or get 403 (API). The check is fail-closed:
// claims that could not be fetched deny like a missing role.
//
// IMPORTANT: Use AFTER RequireUser in the chain.
func (m *GuardMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetIdentity(r.Context()) == nil {
			m.denyUnauthenticated(w, r)
			return
		}

		if !auth.GetClaims(r.Context()).IsAdmin() {
			if isAPIRequest(r) {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			http.Redirect(w, r, domain.LandingPath, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Response Helpers
// =============================================================================

func (m *GuardMiddleware) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		handler.UnauthorizedResponse(w, r, m.logger)
		return
	}

	// Preserve the original URL byte-for-byte so login can send the user
	// back exactly where they were headed. Escaped, so a query in the
	// original URL survives the login page's own query parsing.
	returnTo := r.URL.Path
	if r.URL.RawQuery != "" {
		returnTo += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, domain.LoginPath+"?return_to="+url.QueryEscape(returnTo), http.StatusSeeOther)
}

func (m *GuardMiddleware) answerPending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(pendingRetryAfterSeconds))
	if isAPIRequest(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"pending","message":"Entitlement check in progress. Retry shortly."}}`))
		return
	}
	http.Error(w, "Checking your subscription. Please retry shortly.", http.StatusServiceUnavailable)
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
//
// This is used to decide whether to redirect (browser) or return JSON errors
// (API).
func isAPIRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, guard.WithIdentity, guard.RequirePaid)
//	mux.Handle("POST /generate-ad", stack(generateHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Compile-time checks that middleware methods have the canonical signature.
var (
	_ func(http.Handler) http.Handler = (&GuardMiddleware{}).WithIdentity
	_ func(http.Handler) http.Handler = (&GuardMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&GuardMiddleware{}).RequireVerifiedEmail
	_ func(http.Handler) http.Handler = (&GuardMiddleware{}).RequirePaid
	_ func(http.Handler) http.Handler = (&GuardMiddleware{}).RequireAdmin
)
