package entitlement

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adforge/adforge/internal/domain"
)

// Snapshot is one observed subscription state. Err is set when the stream
// fails; the stream ends after an error snapshot.
type Snapshot struct {
	Record *domain.SubscriptionRecord
	Err    error
}

// Feed streams live subscription state per user from the store's snapshot
// listener. Each Subscribe call owns an independent stream; there is no
// shared fan-out state, so a canceled subscriber cannot stall another.
type Feed struct {
	store  *Store
	logger *slog.Logger
}

func NewFeed(store *Store, logger *slog.Logger) *Feed {
	return &Feed{store: store, logger: logger}
}

// Current returns the latest stored subscription state without subscribing.
func (f *Feed) Current(ctx context.Context, uid string) (*domain.SubscriptionRecord, error) {
	return f.store.GetSubscription(ctx, uid)
}

// Subscribe opens a live stream of subscription snapshots for one user. The
// first snapshot reflects current state (a missing document reads as
// inactive), and later ones arrive as the billing backend writes.
//
// Snapshots carry a version written by the backend; the stream drops any
// snapshot whose version is below one already delivered, so out-of-order
// arrivals cannot roll entitlement backwards. Call stop (or cancel ctx) to
// end the stream; the channel closes when the stream ends.
func (f *Feed) Subscribe(ctx context.Context, uid string) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		f.stream(ctx, uid, out)
	}()

	return out, cancel
}

func (f *Feed) stream(ctx context.Context, uid string, out chan<- Snapshot) {
	it := f.store.subscriptionSnapshots(ctx, uid)
	defer it.Stop()

	var lastVersion int64 = -1

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("subscription stream failed", slog.String("uid", uid), slog.Any("error", err))
			send(ctx, out, Snapshot{Err: domain.Internal(err, "entitlement.Subscribe", "Subscription stream failed.")})
			return
		}

		rec, err := decodeSnapshot(snap)
		if err != nil {
			f.logger.Error("subscription snapshot decode failed", slog.String("uid", uid), slog.Any("error", err))
			send(ctx, out, Snapshot{Err: err})
			return
		}

		if rec.Version < lastVersion {
			// Stale write delivered late. The newer state already won.
			continue
		}
		lastVersion = rec.Version

		if !send(ctx, out, Snapshot{Record: rec}) {
			return
		}
	}
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*domain.SubscriptionRecord, error) {
	if !snap.Exists() {
		return &domain.SubscriptionRecord{Status: domain.SubscriptionStatusInactive}, nil
	}
	var doc subscriptionDoc
	if err := snap.DataTo(&doc); err != nil {
		if status.Code(err) == codes.NotFound {
			return &domain.SubscriptionRecord{Status: domain.SubscriptionStatusInactive}, nil
		}
		return nil, domain.Internal(err, "entitlement.Subscribe", "Could not decode subscription.")
	}
	return doc.toDomain(), nil
}

func send(ctx context.Context, out chan<- Snapshot, s Snapshot) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
