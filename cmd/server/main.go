package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"

	"github.com/adforge/adforge/internal"
	"github.com/adforge/adforge/internal/ai"
	"github.com/adforge/adforge/internal/ai/anthropic"
	"github.com/adforge/adforge/internal/ai/ideogram"
	"github.com/adforge/adforge/internal/ai/mock"
	"github.com/adforge/adforge/internal/billing"
	"github.com/adforge/adforge/internal/canvas"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
	"github.com/adforge/adforge/internal/handler"
	"github.com/adforge/adforge/internal/identity"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/middleware"
	"github.com/adforge/adforge/internal/service"
	"github.com/adforge/adforge/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize identity provider (Firebase Auth)
	app, err := identity.NewFirebaseApp(ctx, cfg.GoogleProjectID, cfg.GoogleCredentialsFile)
	if err != nil {
		return fmt.Errorf("firebase initialization failed: %w", err)
	}

	identities, err := identity.NewFirebaseProvider(ctx, app, logger)
	if err != nil {
		return fmt.Errorf("identity provider initialization failed: %w", err)
	}

	// Initialize entitlement store (Firestore)
	var fsOpts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		fsOpts = append(fsOpts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	fsClient, err := firestore.NewClient(ctx, cfg.GoogleProjectID, fsOpts...)
	if err != nil {
		return fmt.Errorf("firestore connection failed: %w", err)
	}
	defer fsClient.Close()

	store := entitlement.NewStore(fsClient, logger)
	feed := entitlement.NewFeed(store, logger)
	poller := entitlement.NewSyncPoller(store, logger, cfg.SyncMaxAttempts, cfg.SyncInterval)
	logger.Info("Entitlement store ready", "project", cfg.GoogleProjectID)

	// Grant the admin role to configured accounts before the server starts
	// taking traffic.
	if err := bootstrapAdmins(ctx, identities, cfg.AdminEmails, logger); err != nil {
		logger.Warn("Admin bootstrap incomplete", "error", err)
	}

	// Initialize file storage
	fileStore, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize AI providers
	copyProvider, imageProvider, err := newAIProviders(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}

	// Initialize billing. A nil service keeps the billing handlers running as
	// stubs in development.
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			TrialMonthlyPriceID:    cfg.StripeTrialPriceID,
			StarterMonthlyPriceID:  cfg.StripeStarterPriceID,
			ProMonthlyPriceID:      cfg.StripeProPriceID,
			BusinessMonthlyPriceID: cfg.StripeBusinessPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY not set")
	}

	// Load the compositing font set
	fonts, err := canvas.NewFontSet()
	if err != nil {
		return fmt.Errorf("font initialization failed: %w", err)
	}

	// Initialize services
	usageService := service.NewUsageService(store, feed, logger)
	generationService := service.NewGenerationService(copyProvider, imageProvider, usageService, feed, identities, fileStore, logger)
	compositeService := service.NewCompositeService(fonts, fileStore, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	guard := middleware.NewGuardMiddleware(identities, feed, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Burst protection ahead of the quota check. The monthly cap is the real
	// limit; this just keeps a runaway client from hammering the AI providers.
	generateLimiter := middleware.NewRateLimiter(30, time.Minute, logger)
	generateLimit := middleware.NewRateLimitMiddleware(generateLimiter, logger).Limit

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(generationService, logger)
	compositeHandler := handler.NewCompositeHandler(compositeService, logger)
	uploadHandler := handler.NewUploadHandler(generationService, logger)
	accountHandler := handler.NewAccountHandler(usageService, logger)
	billingHandler := handler.NewBillingHandler(billingService, store, poller, cfg.BaseURL, logger)
	streamHandler := handler.NewStreamHandler(feed, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, store, logger)
	adminHandler := handler.NewAdminHandler(identities, store, usageService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Locally stored files (development storage only)
	if local, ok := fileStore.(*storage.LocalStorage); ok {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(local.BasePath()))))
	}

	// Stripe webhooks authenticate by signature, not by user.
	webhookHandler.RegisterRoutes(mux)

	// Middleware stacks for protected routes
	requireUser := middleware.Stack(guard.WithIdentity, guard.RequireUser)
	requirePaid := middleware.Stack(guard.WithIdentity, guard.RequireUser, guard.RequireVerifiedEmail, guard.RequirePaid, generateLimit)
	requireAdmin := middleware.Stack(guard.WithIdentity, guard.RequireUser, guard.RequireAdmin)

	generateHandler.RegisterRoutes(mux, requirePaid)
	compositeHandler.RegisterRoutes(mux, requirePaid)
	uploadHandler.RegisterRoutes(mux, requirePaid)
	accountHandler.RegisterRoutes(mux, requireUser)
	billingHandler.RegisterRoutes(mux, requireUser)
	streamHandler.RegisterRoutes(mux, requireUser)
	adminHandler.RegisterRoutes(mux, requireAdmin)

	// Outermost middleware applies to every route.
	root := middleware.Stack(securityMw.Handler, loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage selects the file storage backend from configuration.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case "r2":
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

// newAIProviders selects the copy and image generation backends from
// configuration.
func newAIProviders(cfg *internal.Config, logger *slog.Logger) (ai.CopyProvider, ai.ImageProvider, error) {
	providerCfg := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.AIRequestTimeout,
	}

	var copyProvider ai.CopyProvider
	if cfg.AIProvider == "anthropic" {
		p, err := anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.AnthropicModel,
			ProviderConfig: providerCfg,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		copyProvider = p
	} else {
		copyProvider = mock.New(logger)
		logger.Warn("Using mock copy provider")
	}

	var imageProvider ai.ImageProvider
	if cfg.ImageProvider == "ideogram" {
		p, err := ideogram.New(ideogram.Config{
			APIKey:         cfg.IdeogramAPIKey,
			ProviderConfig: providerCfg,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		imageProvider = p
	} else {
		imageProvider = mock.NewImageProvider()
		logger.Warn("Using mock image provider")
	}

	return copyProvider, imageProvider, nil
}

// bootstrapAdmins grants the admin role claim to the configured email
// addresses. Accounts that have not signed up yet are skipped; they pick up
// the role on the next server start after registering.
func bootstrapAdmins(ctx context.Context, identities identity.Provider, emails []string, logger *slog.Logger) error {
	if len(emails) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(emails))
	for _, email := range emails {
		wanted[strings.ToLower(email)] = true
	}

	users, err := identities.ListUsers(ctx, 0)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, user := range users {
		if !wanted[strings.ToLower(user.Email)] {
			continue
		}
		claims, err := identities.FetchClaims(ctx, user.UID)
		if err == nil && claims.IsAdmin() {
			continue
		}
		if err := identities.SetRole(ctx, user.UID, domain.RoleAdmin); err != nil {
			logger.Warn("Admin grant failed", "email", user.Email, "error", err)
			continue
		}
		logger.Info("Admin role granted", "email", user.Email)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
