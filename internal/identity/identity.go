// Package identity verifies end-user credentials and resolves their role
// claims against the identity provider.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/adforge/adforge/internal/domain"
)

// Provider authenticates bearer tokens and resolves role claims.
type Provider interface {
	// VerifyToken validates an ID token and returns the caller's identity.
	VerifyToken(ctx context.Context, idToken string) (*domain.Identity, error)

	// FetchClaims reads the user's current custom claims from the identity
	// provider's user record. It deliberately bypasses the claims baked
	// into the verified token: role grants and revocations must take
	// effect without waiting for a token refresh.
	FetchClaims(ctx context.Context, uid string) (domain.Claims, error)

	// SetRole writes the user's role as a custom claim. An empty role
	// clears it.
	SetRole(ctx context.Context, uid string, role domain.Role) error

	// GetUser returns identity details for one user.
	GetUser(ctx context.Context, uid string) (*domain.Identity, error)

	// ListUsers pages through all users in the provider.
	ListUsers(ctx context.Context, limit int) ([]domain.Identity, error)
}

const roleClaim = "role"

// FirebaseProvider implements Provider against Firebase Authentication.
type FirebaseProvider struct {
	client *auth.Client
	logger *slog.Logger
}

// NewFirebaseApp initializes the Firebase app shared by the identity provider
// and the entitlement feed.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

// NewFirebaseProvider builds a Provider from an initialized Firebase app.
func NewFirebaseProvider(ctx context.Context, app *firebase.App, logger *slog.Logger) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseProvider{client: client, logger: logger}, nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, idToken string) (*domain.Identity, error) {
	const op = "identity.VerifyToken"

	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, &domain.Error{
			Code:    domain.EUNAUTHORIZED,
			Op:      op,
			Message: "Invalid or expired credentials.",
			Err:     err,
		}
	}

	identity := &domain.Identity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	return identity, nil
}

func (p *FirebaseProvider) FetchClaims(ctx context.Context, uid string) (domain.Claims, error) {
	const op = "identity.FetchClaims"

	record, err := p.client.GetUser(ctx, uid)
	if err != nil {
		// Claims stay unfetched: callers treat this as "not yet known",
		// never as a grant.
		return domain.Claims{}, &domain.Error{
			Code:    domain.EINTERNAL,
			Op:      op,
			Message: "Could not resolve account role.",
			Err:     err,
		}
	}

	claims := domain.Claims{Fetched: true}
	if role, ok := record.CustomClaims[roleClaim].(string); ok {
		claims.Role = domain.Role(role)
	}
	return claims, nil
}

func (p *FirebaseProvider) SetRole(ctx context.Context, uid string, role domain.Role) error {
	const op = "identity.SetRole"

	var claims map[string]any
	if role != domain.RoleNone {
		claims = map[string]any{roleClaim: string(role)}
	}
	if err := p.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return &domain.Error{
			Code:    domain.EINTERNAL,
			Op:      op,
			Message: "Could not update account role.",
			Err:     err,
		}
	}
	p.logger.Info("role updated", slog.String("uid", uid), slog.String("role", string(role)))
	return nil
}

func (p *FirebaseProvider) GetUser(ctx context.Context, uid string) (*domain.Identity, error) {
	const op = "identity.GetUser"

	record, err := p.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "User not found."}
		}
		return nil, &domain.Error{Code: domain.EINTERNAL, Op: op, Err: err}
	}
	return &domain.Identity{
		UID:           record.UID,
		Email:         record.Email,
		EmailVerified: record.EmailVerified,
	}, nil
}

func (p *FirebaseProvider) ListUsers(ctx context.Context, limit int) ([]domain.Identity, error) {
	const op = "identity.ListUsers"

	var users []domain.Identity
	it := p.client.Users(ctx, "")
	for {
		record, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &domain.Error{Code: domain.EINTERNAL, Op: op, Err: err}
		}
		users = append(users, domain.Identity{
			UID:           record.UID,
			Email:         record.Email,
			EmailVerified: record.EmailVerified,
		})
		if limit > 0 && len(users) >= limit {
			break
		}
	}
	return users, nil
}
