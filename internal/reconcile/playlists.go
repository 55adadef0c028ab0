package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/resolve"
)

// Reconciles playlists and their items. The metadata fields contest as
// one unit on client_updated_at; items never do. When the client's
// playlist wins (or is new) its full item list replaces the stored rows
// key by key. Every accepted row is stamped with the commit time so it
// clears other devices' watermarks. A winning tombstone is written and
// then cascaded over the item rows. A losing playlist writes nothing,
// items included.
func reconcilePlaylists(ctx context.Context, tx podkeep.Tx, userID string, now time.Time, lists []podkeep.Playlist) ([]podkeep.ConflictRecord, error) {
	if len(lists) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(lists))
	for _, l := range lists {
		ids = append(ids, l.ID)
	}
	current, err := tx.PlaylistsByID(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading playlists: %w", err)
	}
	byID := make(map[string]podkeep.Playlist, len(current))
	for _, l := range current {
		byID[l.ID] = l
	}

	var (
		listUpserts []podkeep.Playlist
		itemUpserts []podkeep.PlaylistItem
		conflicts   []podkeep.ConflictRecord
	)
	for _, list := range lists {
		list.UserID = userID
		if list.ClientUpdatedAt.IsZero() {
			list.ClientUpdatedAt = now
		}

		var server *podkeep.Playlist
		if cur, ok := byID[list.ID]; ok {
			server = &cur
		}

		d := resolve.Playlist(list, server)
		if d.Conflict != nil {
			conflicts = append(conflicts, *d.Conflict)
		}
		if d.Resolution == podkeep.ResolutionServerWins {
			continue
		}

		winner := d.Winner
		winner.UserID = userID
		winner.UpdatedAt = now

		if d.Tombstone {
			deletedAt := winner.ClientUpdatedAt
			if winner.DeletedAt != nil {
				deletedAt = *winner.DeletedAt
			}
			// Write the tombstoned row first so a delete of a playlist
			// the server never saw still leaves a record, then cascade
			// over whatever items it had.
			if err := tx.UpsertPlaylists(ctx, []podkeep.Playlist{winner}); err != nil {
				return nil, fmt.Errorf("error upserting playlist tombstone: %w", err)
			}
			if err := tx.SoftDeletePlaylist(ctx, userID, winner.ID, deletedAt, now); err != nil {
				return nil, fmt.Errorf("error soft-deleting playlist: %w", err)
			}
			continue
		}

		listUpserts = append(listUpserts, winner)
		for _, item := range list.Items {
			item.PlaylistID = winner.ID
			item.UserID = userID
			item.UpdatedAt = now
			item.DeletedAt = nil
			itemUpserts = append(itemUpserts, item)
		}
	}

	if err := tx.UpsertPlaylists(ctx, listUpserts); err != nil {
		return nil, fmt.Errorf("error upserting playlists: %w", err)
	}
	if err := tx.UpsertPlaylistItems(ctx, itemUpserts); err != nil {
		return nil, fmt.Errorf("error upserting playlist items: %w", err)
	}

	return conflicts, nil
}
