// Package service contains the business logic layer.
//
// This file implements the usage service for metering generations against
// per-tier monthly caps.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
	"github.com/adforge/adforge/internal/metrics"
)

// =============================================================================
// Interface Definitions
// =============================================================================

// UsageStore persists per-user usage counters.
type UsageStore interface {
	GetUsage(ctx context.Context, uid, periodKey string) (entitlement.UsageState, error)
	IncrementUsage(ctx context.Context, uid, periodKey string, cap int) (entitlement.UsageState, bool, error)
	ResetUsage(ctx context.Context, uid, periodKey string) error
	GrantUsage(ctx context.Context, uid, periodKey string, n int) (entitlement.UsageState, error)
}

// SubscriptionSource loads the latest subscription snapshot for a user.
type SubscriptionSource interface {
	Current(ctx context.Context, uid string) (*domain.SubscriptionRecord, error)
}

// UsageService defines operations for checking and consuming generation quota.
type UsageService interface {
	// Peek returns current usage without consuming any.
	Peek(ctx context.Context, uid string) (*domain.UsageRecord, error)

	// Consume checks the user's cap and records one generation. Returns
	// QuotaExceeded when the cap is already reached; nothing is recorded
	// in that case.
	Consume(ctx context.Context, uid string) (*domain.UsageCheck, error)

	// Reset zeroes the user's counter for the current period. Admin only.
	Reset(ctx context.Context, uid string) error

	// Grant hands back n generations in the current period. Admin only.
	Grant(ctx context.Context, uid string, n int) (*domain.UsageRecord, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	store         UsageStore
	subscriptions SubscriptionSource
	logger        *slog.Logger
	now           func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(store UsageStore, subscriptions SubscriptionSource, logger *slog.Logger) UsageService {
	return &usageService{
		store:         store,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// Peek returns current usage without consuming any.
func (s *usageService) Peek(ctx context.Context, uid string) (*domain.UsageRecord, error) {
	const op = "usage.peek"

	sub, err := s.subscriptions.Current(ctx, uid)
	if err != nil {
		return nil, err
	}

	cap := domain.CapForTier(sub.Tier)
	periodKey := s.periodKey(sub)

	state, err := s.store.GetUsage(ctx, uid, periodKey)
	if err != nil {
		return nil, err
	}

	return &domain.UsageRecord{
		Used:      state.Used,
		Cap:       cap,
		Remaining: cap - state.Used,
		Month:     s.monthKey(),
	}, nil
}

// Consume checks the user's cap and records one generation.
func (s *usageService) Consume(ctx context.Context, uid string) (*domain.UsageCheck, error) {
	const op = "usage.consume"

	sub, err := s.subscriptions.Current(ctx, uid)
	if err != nil {
		return nil, err
	}

	cap := domain.CapForTier(sub.Tier)
	periodKey := s.periodKey(sub)

	state, applied, err := s.store.IncrementUsage(ctx, uid, periodKey, cap)
	if err != nil {
		return nil, err
	}

	if !applied {
		metrics.QuotaRefusals.Inc()
		s.logger.Info("Generation quota exceeded",
			"uid", uid,
			"tier", sub.Tier,
			"used", state.Used,
			"cap", cap,
		)
		return nil, domain.QuotaExceeded(op, state.Used, cap)
	}

	return &domain.UsageCheck{
		Allowed:     true,
		Used:        state.Used,
		Cap:         cap,
		PeriodStart: sub.PeriodStart,
		PeriodEnd:   sub.PeriodEnd,
	}, nil
}

// Reset zeroes the user's counter for the current period.
func (s *usageService) Reset(ctx context.Context, uid string) error {
	sub, err := s.subscriptions.Current(ctx, uid)
	if err != nil {
		return err
	}
	if err := s.store.ResetUsage(ctx, uid, s.periodKey(sub)); err != nil {
		return err
	}
	s.logger.Info("Usage reset", "uid", uid)
	return nil
}

// Grant hands back n generations in the current period.
func (s *usageService) Grant(ctx context.Context, uid string, n int) (*domain.UsageRecord, error) {
	const op = "usage.grant"

	if n <= 0 {
		return nil, domain.Invalid(op, "Grant count must be positive")
	}

	sub, err := s.subscriptions.Current(ctx, uid)
	if err != nil {
		return nil, err
	}

	cap := domain.CapForTier(sub.Tier)
	state, err := s.store.GrantUsage(ctx, uid, s.periodKey(sub), n)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Usage granted", "uid", uid, "count", n, "used", state.Used)
	return &domain.UsageRecord{
		Used:      state.Used,
		Cap:       cap,
		Remaining: cap - state.Used,
		Month:     s.monthKey(),
	}, nil
}

// periodKey identifies the usage bucket. Counters are keyed on the billing
// cycle start so a renewal resets usage without any scheduled job; users
// without a cycle yet (trial before first invoice) fall back to the calendar
// month.
func (s *usageService) periodKey(sub *domain.SubscriptionRecord) string {
	if sub.PeriodStart > 0 {
		return fmt.Sprintf("ps-%d", sub.PeriodStart)
	}
	return s.monthKey()
}

func (s *usageService) monthKey() string {
	return s.now().UTC().Format("2006-01")
}
