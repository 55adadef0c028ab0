package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/podkeep/podkeep/internal/podkeep"
)

// buildDelta collects everything the user owns that moved past the
// watermark, including rows written earlier in the same call. Tombstoned
// playlists and unsubscribed feeds are returned flagged rather than
// omitted, so other devices learn about deletions.
func (e *Engine) buildDelta(ctx context.Context, userID string, since *time.Time) (podkeep.Delta, error) {
	subs, err := e.store.SubscriptionsSince(ctx, userID, since)
	if err != nil {
		return podkeep.Delta{}, fmt.Errorf("error querying subscriptions: %w", err)
	}
	plays, err := e.store.PlayPositionsSince(ctx, userID, since)
	if err != nil {
		return podkeep.Delta{}, fmt.Errorf("error querying play positions: %w", err)
	}
	lists, err := e.store.PlaylistsSince(ctx, userID, since)
	if err != nil {
		return podkeep.Delta{}, fmt.Errorf("error querying playlists: %w", err)
	}

	// Empty slices, not nils: the wire shape is always a list.
	if subs == nil {
		subs = []podkeep.Subscription{}
	}
	if plays == nil {
		plays = []podkeep.PlayPosition{}
	}
	if lists == nil {
		lists = []podkeep.Playlist{}
	}

	return podkeep.Delta{
		Subscriptions: subs,
		Plays:         plays,
		Playlists:     lists,
	}, nil
}
