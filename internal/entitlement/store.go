// Package entitlement owns subscription state: the Firestore documents the
// billing webhook writes, the live per-user feed derived from them, and the
// post-checkout activation poller.
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adforge/adforge/internal/domain"
)

// Firestore collections. One document per user in each.
const (
	subscriptionCollection = "subscriptions"
	usageCollection        = "usage"
	checkoutCollection     = "checkouts"
)

// subscriptionDoc is the Firestore shape of a subscription record.
type subscriptionDoc struct {
	Status        string `firestore:"status"`
	Tier          string `firestore:"tier"`
	CustomerID    string `firestore:"customerId"`
	RequestedTier string `firestore:"requestedTier"`
	PeriodStart   int64  `firestore:"periodStart"`
	PeriodEnd     int64  `firestore:"periodEnd"`
	Version       int64  `firestore:"version"`
}

func (d subscriptionDoc) toDomain() *domain.SubscriptionRecord {
	return &domain.SubscriptionRecord{
		Status:        domain.SubscriptionStatus(d.Status),
		Tier:          domain.SubscriptionTier(d.Tier),
		CustomerID:    d.CustomerID,
		RequestedTier: domain.SubscriptionTier(d.RequestedTier),
		PeriodStart:   d.PeriodStart,
		PeriodEnd:     d.PeriodEnd,
		Version:       d.Version,
	}
}

type usageDoc struct {
	Used      int    `firestore:"used"`
	PeriodKey string `firestore:"periodKey"`
	UpdatedAt int64  `firestore:"updatedAt"`
}

// PendingCheckout is the single-slot record of an in-flight checkout session.
// Starting a new checkout overwrites any previous one.
type PendingCheckout struct {
	SessionID string                  `firestore:"sessionId"`
	Tier      domain.SubscriptionTier `firestore:"tier"`
	CreatedAt int64                   `firestore:"createdAt"`
}

// Store reads and writes entitlement state in Firestore.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewStore(client *firestore.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// GetSubscription returns the user's subscription record. A missing document
// reads as an inactive subscription, never as an error: a user who has never
// checked out simply has nothing to grant.
func (s *Store) GetSubscription(ctx context.Context, uid string) (*domain.SubscriptionRecord, error) {
	const op = "entitlement.GetSubscription"

	snap, err := s.client.Collection(subscriptionCollection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &domain.SubscriptionRecord{Status: domain.SubscriptionStatusInactive}, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "Could not load subscription.")
	}

	var doc subscriptionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, domain.Internal(err, op, "Could not decode subscription.")
	}
	return doc.toDomain(), nil
}

// SetSubscription writes the record with a monotonically increased version.
// The version is assigned inside a transaction so concurrent writers (webhook
// and sync poller) cannot both claim the same version.
func (s *Store) SetSubscription(ctx context.Context, uid string, rec *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	const op = "entitlement.SetSubscription"

	ref := s.client.Collection(subscriptionCollection).Doc(uid)
	out := *rec

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var current int64
		switch {
		case status.Code(err) == codes.NotFound:
			current = 0
		case err != nil:
			return err
		default:
			var doc subscriptionDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			current = doc.Version
		}

		out.Version = current + 1
		return tx.Set(ref, subscriptionDoc{
			Status:        string(out.Status),
			Tier:          string(out.Tier),
			CustomerID:    out.CustomerID,
			RequestedTier: string(out.RequestedTier),
			PeriodStart:   out.PeriodStart,
			PeriodEnd:     out.PeriodEnd,
			Version:       out.Version,
		})
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Could not save subscription.")
	}

	s.logger.Info("subscription updated",
		slog.String("uid", uid),
		slog.String("status", string(out.Status)),
		slog.String("tier", string(out.Tier)),
		slog.Int64("version", out.Version))
	return &out, nil
}

// subscriptionSnapshots opens a snapshot stream over one user's subscription
// document. The feed consumes it; callers stop it by canceling the context.
func (s *Store) subscriptionSnapshots(ctx context.Context, uid string) *firestore.DocumentSnapshotIterator {
	return s.client.Collection(subscriptionCollection).Doc(uid).Snapshots(ctx)
}

// FindUIDByCustomer returns the UID whose subscription document carries the
// given billing customer ID, or ENOTFOUND. Webhook events identify users by
// customer, not UID, so this is the reverse lookup they need.
func (s *Store) FindUIDByCustomer(ctx context.Context, customerID string) (string, error) {
	const op = "entitlement.FindUIDByCustomer"

	iter := s.client.Collection(subscriptionCollection).
		Where("customerId", "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return "", domain.NotFound(op, "subscription", customerID)
	}
	if err != nil {
		return "", domain.Internal(err, op, "Could not look up customer.")
	}
	return snap.Ref.ID, nil
}

// UsageState is the stored usage counter for one user.
type UsageState struct {
	Used      int
	PeriodKey string
}

// GetUsage reads the usage counter, treating a period mismatch or missing
// document as zero used.
func (s *Store) GetUsage(ctx context.Context, uid, periodKey string) (UsageState, error) {
	const op = "entitlement.GetUsage"

	snap, err := s.client.Collection(usageCollection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return UsageState{Used: 0, PeriodKey: periodKey}, nil
	}
	if err != nil {
		return UsageState{}, domain.Internal(err, op, "Could not load usage.")
	}

	var doc usageDoc
	if err := snap.DataTo(&doc); err != nil {
		return UsageState{}, domain.Internal(err, op, "Could not decode usage.")
	}
	if doc.PeriodKey != periodKey {
		return UsageState{Used: 0, PeriodKey: periodKey}, nil
	}
	return UsageState{Used: doc.Used, PeriodKey: doc.PeriodKey}, nil
}

// IncrementUsage atomically bumps the usage counter for the given period,
// unless doing so would exceed cap. It returns the post-increment state and
// whether the increment was applied. A stored counter from a different period
// resets to zero before the check, which is how a new billing cycle restores
// quota without any scheduled job.
func (s *Store) IncrementUsage(ctx context.Context, uid, periodKey string, cap int) (UsageState, bool, error) {
	const op = "entitlement.IncrementUsage"

	ref := s.client.Collection(usageCollection).Doc(uid)
	var state UsageState
	var applied bool

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var doc usageDoc
		switch {
		case status.Code(err) == codes.NotFound:
			doc = usageDoc{PeriodKey: periodKey}
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.PeriodKey != periodKey {
				doc = usageDoc{PeriodKey: periodKey}
			}
		}

		if doc.Used >= cap {
			state = UsageState{Used: doc.Used, PeriodKey: periodKey}
			applied = false
			return nil
		}

		doc.Used++
		doc.UpdatedAt = time.Now().Unix()
		state = UsageState{Used: doc.Used, PeriodKey: periodKey}
		applied = true
		return tx.Set(ref, doc)
	})
	if err != nil {
		return UsageState{}, false, domain.Internal(err, op, "Could not record usage.")
	}
	return state, applied, nil
}

// ResetUsage zeroes the user's usage counter for the given period.
func (s *Store) ResetUsage(ctx context.Context, uid, periodKey string) error {
	const op = "entitlement.ResetUsage"

	ref := s.client.Collection(usageCollection).Doc(uid)
	_, err := ref.Set(ctx, usageDoc{PeriodKey: periodKey, UpdatedAt: time.Now().Unix()})
	if err != nil {
		return domain.Internal(err, op, "Could not reset usage.")
	}
	return nil
}

// GrantUsage hands back n generations by lowering the used counter, floored
// at zero. Counters from a different period reset first, same as increments.
func (s *Store) GrantUsage(ctx context.Context, uid, periodKey string, n int) (UsageState, error) {
	const op = "entitlement.GrantUsage"

	ref := s.client.Collection(usageCollection).Doc(uid)
	var state UsageState

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var doc usageDoc
		switch {
		case status.Code(err) == codes.NotFound:
			doc = usageDoc{PeriodKey: periodKey}
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.PeriodKey != periodKey {
				doc = usageDoc{PeriodKey: periodKey}
			}
		}

		doc.Used -= n
		if doc.Used < 0 {
			doc.Used = 0
		}
		doc.UpdatedAt = time.Now().Unix()
		state = UsageState{Used: doc.Used, PeriodKey: periodKey}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return UsageState{}, domain.Internal(err, op, "Could not grant usage.")
	}
	return state, nil
}

// PutPendingCheckout records the in-flight checkout session, replacing any
// previous one.
func (s *Store) PutPendingCheckout(ctx context.Context, uid string, pc PendingCheckout) error {
	const op = "entitlement.PutPendingCheckout"

	if pc.CreatedAt == 0 {
		pc.CreatedAt = time.Now().Unix()
	}
	if _, err := s.client.Collection(checkoutCollection).Doc(uid).Set(ctx, pc); err != nil {
		return domain.Internal(err, op, "Could not record checkout.")
	}
	return nil
}

// TakePendingCheckout returns and clears the pending checkout, or nil when
// none is in flight.
func (s *Store) TakePendingCheckout(ctx context.Context, uid string) (*PendingCheckout, error) {
	const op = "entitlement.TakePendingCheckout"

	ref := s.client.Collection(checkoutCollection).Doc(uid)
	var out *PendingCheckout

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			out = nil
			return nil
		}
		if err != nil {
			return err
		}
		var pc PendingCheckout
		if err := snap.DataTo(&pc); err != nil {
			return err
		}
		out = &pc
		return tx.Delete(ref)
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Could not read checkout.")
	}
	return out, nil
}
