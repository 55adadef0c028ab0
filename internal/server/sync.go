package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	syncv1 "github.com/podkeep/podkeep/api/sync/v1"
	pkerrs "github.com/podkeep/podkeep/internal/errors"
	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/reconcile"
)

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx  = r.Context()
		body syncv1.SyncRequest
	)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return pkerrs.E(err, http.StatusBadRequest, pkerrs.Code("BAD_REQUEST"))
	}

	res, err := s.engine.Sync(ctx, userID(ctx), syncv1.ParseTime(body.LastSync), toBatch(body.Changes))
	if err != nil {
		// The reason stays in the logs; clients only get a sanitized
		// signal that the whole batch can be retried as-is.
		slog.ErrorContext(ctx, "sync failed", "error", err)
		return pkerrs.E(
			http.StatusUnprocessableEntity,
			pkerrs.Code("SYNC_ERROR"),
			"Sync failed",
			pkerrs.Detail("the submitted changes could not be applied"),
		)
	}

	return writeJSON(w, http.StatusOK, toSyncResponse(res))
}

func toSyncResponse(res reconcile.Result) syncv1.SyncResponse {
	out := syncv1.SyncResponse{
		SyncToken: res.SyncToken.UTC().Format(time.RFC3339),
		Changes:   toResponseChanges(res.Delta),
		Conflicts: []syncv1.Conflict{},
	}
	for _, c := range res.Conflicts {
		out.Conflicts = append(out.Conflicts, syncv1.Conflict{
			Type:       string(c.Type),
			Local:      c.Local,
			Remote:     c.Remote,
			Resolution: string(c.Resolution),
			Reason:     c.Reason,
		})
	}

	return out
}

func toResponseChanges(delta podkeep.Delta) syncv1.ResponseChanges {
	changes := syncv1.ResponseChanges{
		Subscriptions: []syncv1.SubscriptionChange{},
		Plays:         []syncv1.PlayChange{},
		Playlists:     []syncv1.PlaylistChange{},
	}

	for _, sub := range delta.Subscriptions {
		changes.Subscriptions = append(changes.Subscriptions, syncv1.SubscriptionChange{
			Feed:           sub.FeedID,
			Source:         sub.SourceID,
			SubscribedAt:   sub.SubscribedAt,
			UnsubscribedAt: sub.UnsubscribedAt,
			UpdatedAt:      sub.UpdatedAt,
		})
	}
	for _, play := range delta.Plays {
		changes.Plays = append(changes.Plays, syncv1.PlayChange{
			Feed:      play.FeedID,
			Item:      play.ItemID,
			Position:  play.Position,
			Played:    play.Played,
			UpdatedAt: play.UpdatedAt,
		})
	}
	for _, list := range delta.Playlists {
		changes.Playlists = append(changes.Playlists, apiPlaylist(list))
	}

	return changes
}

func apiPlaylist(list podkeep.Playlist) syncv1.PlaylistChange {
	out := syncv1.PlaylistChange{
		ID:          list.ID,
		Name:        list.Name,
		Description: list.Description,
		IsPublic:    list.IsPublic,
		Items:       []syncv1.PlaylistItem{},
		UpdatedAt:   list.UpdatedAt,
		DeletedAt:   list.DeletedAt,
	}
	for _, item := range list.Items {
		out.Items = append(out.Items, syncv1.PlaylistItem{
			Feed:      item.FeedID,
			Item:      item.ItemID,
			Title:     item.Title,
			FeedTitle: item.FeedTitle,
			Position:  item.Position,
		})
	}

	return out
}
