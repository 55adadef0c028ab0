package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/resolve"
)

// Reconciles playback positions. The device's own timestamp is kept in
// client_updated_at for the tie-break contract (a submission that never
// had one falls back to the commit time); the watermark column is always
// stamped with the commit time so an accepted backdated write still
// reaches other devices.
func reconcilePlays(ctx context.Context, tx podkeep.Tx, userID string, now time.Time, plays []podkeep.PlayPosition) ([]podkeep.ConflictRecord, error) {
	if len(plays) == 0 {
		return nil, nil
	}

	itemIDs := make([]string, 0, len(plays))
	for _, p := range plays {
		itemIDs = append(itemIDs, p.ItemID)
	}
	current, err := tx.PlayPositionsByItem(ctx, userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("error loading play positions: %w", err)
	}
	byItem := make(map[string]podkeep.PlayPosition, len(current))
	for _, p := range current {
		byItem[p.ItemID] = p
	}

	var (
		upserts   []podkeep.PlayPosition
		conflicts []podkeep.ConflictRecord
	)
	for _, play := range plays {
		play.UserID = userID
		if play.Position < 0 {
			play.Position = 0
		}
		if play.ClientUpdatedAt.IsZero() {
			play.ClientUpdatedAt = now
		}

		var server *podkeep.PlayPosition
		if cur, ok := byItem[play.ItemID]; ok {
			server = &cur
		}

		winner, res, conflict := resolve.PlayPosition(play, server)
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

	if err := tx.UpsertPlayPositions(ctx, upserts); err != nil {
		return nil, fmt.Errorf("error upserting play positions: %w", err)
	}

	return conflicts, nil
}
