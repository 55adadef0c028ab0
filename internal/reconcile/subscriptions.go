package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/resolve"
)

// Reconciles the submitted subscriptions against the server rows for the
// same feeds, loaded in one keyed query. Losing submissions queue no
// write at all; winners are upserted with the commit-time updated_at so
// they surface in delta queries.
func reconcileSubscriptions(ctx context.Context, tx podkeep.Tx, userID string, now time.Time, subs []podkeep.Subscription) ([]podkeep.ConflictRecord, error) {
	if len(subs) == 0 {
		return nil, nil
	}

	feedIDs := make([]string, 0, len(subs))
	for _, s := range subs {
		feedIDs = append(feedIDs, s.FeedID)
	}
	current, err := tx.SubscriptionsByFeed(ctx, userID, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("error loading subscriptions: %w", err)
	}
	byFeed := make(map[string]podkeep.Subscription, len(current))
	for _, s := range current {
		byFeed[s.FeedID] = s
	}

	var (
		upserts   []podkeep.Subscription
		conflicts []podkeep.ConflictRecord
	)
	for _, sub := range subs {
		sub.UserID = userID

		var server *podkeep.Subscription
		if cur, ok := byFeed[sub.FeedID]; ok {
			server = &cur
		}

		winner, res, conflict := resolve.Subscription(sub, server)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
		if res == podkeep.ResolutionServerWins {
			continue
		}

		winner.UserID = userID
		winner.UpdatedAt = now
		upserts = append(upserts, winner)
	}

	if err := tx.UpsertSubscriptions(ctx, upserts); err != nil {
		return nil, fmt.Errorf("error upserting subscriptions: %w", err)
	}

	return conflicts, nil
}
