package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
)

// =============================================================================
// Stubs
// =============================================================================

type stubIdentityProvider struct {
	identity  *domain.Identity
	verifyErr error
	claims    domain.Claims
	claimsErr error
}

func (s *stubIdentityProvider) VerifyToken(ctx context.Context, idToken string) (*domain.Identity, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.identity, nil
}

func (s *stubIdentityProvider) FetchClaims(ctx context.Context, uid string) (domain.Claims, error) {
	if s.claimsErr != nil {
		return domain.Claims{}, s.claimsErr
	}
	return s.claims, nil
}

type stubSubscriptionSource struct {
	rec *domain.SubscriptionRecord
	err error
}

func (s *stubSubscriptionSource) Current(ctx context.Context, uid string) (*domain.SubscriptionRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

func guardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func verifiedIdentity() *domain.Identity {
	return &domain.Identity{UID: "user-1", Email: "user@example.com", EmailVerified: true}
}

func memberClaims() domain.Claims {
	return domain.Claims{Fetched: true, Role: domain.RoleNone}
}

func adminClaims() domain.Claims {
	return domain.Claims{Fetched: true, Role: domain.RoleAdmin}
}

func activeRecord() *domain.SubscriptionRecord {
	return &domain.SubscriptionRecord{
		Status: domain.SubscriptionStatusActive,
		Tier:   domain.TierStarter,
	}
}

func newGuard(identities *stubIdentityProvider, subs *stubSubscriptionSource) *GuardMiddleware {
	return NewGuardMiddleware(identities, subs, guardLogger())
}

// okHandler records whether it ran.
func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

// =============================================================================
// WithIdentity Tests
// =============================================================================

func TestWithIdentity_NoTokenContinuesUnauthenticated(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var sawIdentity *domain.Identity
	handler := guard.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = auth.GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if sawIdentity != nil {
		t.Error("expected no identity in context without a token")
	}
}

func TestWithIdentity_LoadsClaimsAndSubscription(t *testing.T) {
	guard := newGuard(
		&stubIdentityProvider{identity: verifiedIdentity(), claims: adminClaims()},
		&stubSubscriptionSource{rec: activeRecord()},
	)

	var gotClaims domain.Claims
	var gotSub *domain.SubscriptionRecord
	handler := guard.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = auth.GetClaims(r.Context())
		gotSub = auth.GetSubscription(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !gotClaims.IsAdmin() {
		t.Error("expected admin claims in context")
	}
	if gotSub == nil || gotSub.Status != domain.SubscriptionStatusActive {
		t.Errorf("expected active subscription in context, got %+v", gotSub)
	}
}

func TestWithIdentity_ClaimsFetchFailureLeavesClaimsUnfetched(t *testing.T) {
	guard := newGuard(
		&stubIdentityProvider{identity: verifiedIdentity(), claimsErr: errors.New("backend down")},
		&stubSubscriptionSource{rec: activeRecord()},
	)

	var gotClaims domain.Claims
	handler := guard.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = auth.GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotClaims.Fetched {
		t.Error("failed claims fetch must leave claims unfetched")
	}
	if gotClaims.IsAdmin() {
		t.Error("failed claims fetch must never grant admin")
	}
}

func TestWithIdentity_InvalidTokenContinuesUnauthenticated(t *testing.T) {
	guard := newGuard(
		&stubIdentityProvider{verifyErr: errors.New("expired")},
		&stubSubscriptionSource{},
	)

	var sawIdentity *domain.Identity
	handler := guard.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = auth.GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if sawIdentity != nil {
		t.Error("invalid token must leave the request unauthenticated")
	}
}

// =============================================================================
// RequireUser Tests
// =============================================================================

func TestRequireUser_APIUnauthenticated401(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireUser(okHandler(&called))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run unauthenticated")
	}
}

func TestRequireUser_BrowserRedirectPreservesReturnTo(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireUser(okHandler(&called))

	req := httptest.NewRequest("GET", "/adgenerator?draft=7&tab=copy", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 redirect, got %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("redirect location does not parse: %v", err)
	}
	if location.Path != "/login" {
		t.Errorf("expected redirect to /login, got %q", location.Path)
	}
	// The original path and query must survive the login page's own query
	// parsing, including the second parameter after the &.
	if got := location.Query().Get("return_to"); got != "/adgenerator?draft=7&tab=copy" {
		t.Errorf("return_to must round-trip the original URL byte-for-byte, got %q", got)
	}
	if called {
		t.Error("handler must not run unauthenticated")
	}
}

// =============================================================================
// RequireVerifiedEmail Tests
// =============================================================================

func TestRequireVerifiedEmail_UnverifiedAPI403(t *testing.T) {
	identity := verifiedIdentity()
	identity.EmailVerified = false
	guard := newGuard(&stubIdentityProvider{identity: identity}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireVerifiedEmail(okHandler(&called))

	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(auth.SetIdentity(req.Context(), identity))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run with unverified email")
	}
}

func TestRequireVerifiedEmail_UnverifiedBrowserRedirect(t *testing.T) {
	identity := verifiedIdentity()
	identity.EmailVerified = false
	guard := newGuard(&stubIdentityProvider{identity: identity}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireVerifiedEmail(okHandler(&called))

	req := httptest.NewRequest("GET", "/adgenerator", nil)
	req = req.WithContext(auth.SetIdentity(req.Context(), identity))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/verify-email-reminder" {
		t.Errorf("expected redirect to verify-email reminder, got %q", got)
	}
}

// =============================================================================
// RequirePaid Tests
// =============================================================================

// paidContext builds a request context the way WithIdentity would.
func paidContext(identity *domain.Identity, claims *domain.Claims, sub *domain.SubscriptionRecord) context.Context {
	ctx := context.Background()
	if identity != nil {
		ctx = auth.SetIdentity(ctx, identity)
	}
	if claims != nil {
		ctx = auth.SetClaims(ctx, *claims)
	}
	if sub != nil {
		ctx = auth.SetSubscription(ctx, sub)
	}
	return ctx
}

func TestRequirePaid_ActiveSubscriptionPasses(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequirePaid(okHandler(&called))

	claims := memberClaims()
	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, activeRecord()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("active subscriber must pass the paid gate")
	}
}

func TestRequirePaid_AdminBypassesInactiveSubscription(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequirePaid(okHandler(&called))

	claims := adminClaims()
	canceled := &domain.SubscriptionRecord{Status: domain.SubscriptionStatusCanceled}
	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, canceled))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("admin must bypass the subscription check")
	}
}

func TestRequirePaid_UnfetchedClaimsAnswer503(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequirePaid(okHandler(&called))

	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), nil, activeRecord()))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while entitlement is unresolved, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on pending response")
	}
	if !strings.Contains(rec.Body.String(), `"code":"pending"`) {
		t.Errorf("expected pending error code in body, got %s", rec.Body.String())
	}
	if called {
		t.Error("handler must not run while entitlement is unresolved")
	}
}

func TestRequirePaid_MissingSubscriptionAnswers503(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequirePaid(okHandler(&called))

	claims := memberClaims()
	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, nil))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while subscription is loading, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run while subscription is loading")
	}
}

func TestRequirePaid_InactiveSubscriptionAPI402(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequirePaid(okHandler(&called))

	claims := memberClaims()
	canceled := &domain.SubscriptionRecord{Status: domain.SubscriptionStatusCanceled}
	req := httptest.NewRequest("POST", "/generate-ad", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, canceled))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402 for inactive subscription, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run for inactive subscription")
	}
}

func TestRequirePaid_InactiveSubscriptionBrowserRedirect(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	handler := guard.RequirePaid(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	claims := memberClaims()
	canceled := &domain.SubscriptionRecord{Status: domain.SubscriptionStatusCanceled}
	req := httptest.NewRequest("GET", "/adgenerator", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, canceled))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != domain.SubscribePath {
		t.Errorf("expected redirect to subscribe page, got %q", got)
	}
}

func TestRequirePaid_UnauthenticatedRedirectsToLogin(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	handler := guard.RequirePaid(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	req := httptest.NewRequest("GET", "/adgenerator", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); !strings.HasPrefix(got, domain.LoginPath) {
		t.Errorf("expected redirect to login, got %q", got)
	}
}

// =============================================================================
// RequireAdmin Tests
// =============================================================================

func TestRequireAdmin_NonAdminAPI403(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireAdmin(okHandler(&called))

	claims := memberClaims()
	req := httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, nil))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run for non-admin")
	}
}

func TestRequireAdmin_UnfetchedClaimsDenied(t *testing.T) {
	// Fail-closed: a claims fetch failure behaves like a missing role.
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireAdmin(okHandler(&called))

	req := httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), nil, nil))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unfetched claims, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run with unresolved claims")
	}
}

func TestRequireAdmin_AdminPasses(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	var called bool
	handler := guard.RequireAdmin(okHandler(&called))

	claims := adminClaims()
	req := httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("admin must pass the admin gate")
	}
}

func TestRequireAdmin_NonAdminBrowserRedirect(t *testing.T) {
	guard := newGuard(&stubIdentityProvider{}, &stubSubscriptionSource{})

	handler := guard.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	claims := memberClaims()
	req := httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(paidContext(verifiedIdentity(), &claims, nil))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != domain.LandingPath {
		t.Errorf("expected redirect to landing page, got %q", got)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", ""},
		{"bearer token", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
		{"surrounding whitespace", "Bearer   abc123", "abc123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := bearerToken(req); got != tc.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestIsAPIRequest(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		accept      string
		contentType string
		want        bool
	}{
		{"json accept", "/generate-ad", "application/json", "", true},
		{"json content type", "/generate-ad", "", "application/json", true},
		{"api prefix", "/api/anything", "", "", true},
		{"browser", "/adgenerator", "text/html", "", false},
		{"no hints", "/account", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			if got := isAPIRequest(req); got != tc.want {
				t.Errorf("isAPIRequest(%s) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}
