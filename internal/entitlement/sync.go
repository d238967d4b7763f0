package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/adforge/adforge/internal/domain"
)

var errNotActiveYet = errors.New("subscription not active yet")

// SyncPoller waits for a subscription to reach an active state after the
// user returns from checkout. The billing webhook writes the document
// asynchronously, so the poller re-reads on a fixed interval for a bounded
// number of attempts instead of trusting the redirect alone.
type SyncPoller struct {
	store       *Store
	logger      *slog.Logger
	maxAttempts int
	interval    time.Duration
}

func NewSyncPoller(store *Store, logger *slog.Logger, maxAttempts int, interval time.Duration) *SyncPoller {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &SyncPoller{store: store, logger: logger, maxAttempts: maxAttempts, interval: interval}
}

// AwaitActivation polls until the user's subscription grants access, the
// attempt budget runs out, or ctx is canceled. On success it returns the
// activated record; on a run-out it returns the last observed record along
// with a conflict error so callers can report "still processing".
func (p *SyncPoller) AwaitActivation(ctx context.Context, uid string) (*domain.SubscriptionRecord, error) {
	const op = "entitlement.AwaitActivation"

	var last *domain.SubscriptionRecord
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), retry.NewConstant(p.interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		rec, err := p.store.GetSubscription(ctx, uid)
		if err != nil {
			// Transient read failures consume an attempt like any other.
			p.logger.Warn("activation poll read failed",
				slog.String("uid", uid),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return retry.RetryableError(err)
		}

		last = rec
		if rec.IsActive() {
			return nil
		}
		return retry.RetryableError(errNotActiveYet)
	})

	if err == nil {
		p.logger.Info("subscription activated",
			slog.String("uid", uid),
			slog.Int("attempts", attempt),
			slog.String("tier", string(last.Tier)))
		return last, nil
	}
	if ctx.Err() != nil {
		return last, domain.Wrap(ctx.Err(), domain.EINTERNAL, op, "Activation wait canceled.")
	}

	p.logger.Warn("subscription did not activate in time",
		slog.String("uid", uid),
		slog.Int("attempts", attempt))
	return last, &domain.Error{
		Code:    domain.ECONFLICT,
		Op:      op,
		Message: "Your subscription is still processing. Please refresh in a moment.",
	}
}
