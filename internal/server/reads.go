package server

import (
	"net/http"

	syncv1 "github.com/podkeep/podkeep/api/sync/v1"
)

// Pull-only views for clients that want the current state without
// submitting changes. Both accept an optional ?since= watermark and
// reuse the same queries the sync delta is built from.

func (s *Server) getSubscriptions(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx   = r.Context()
		since = r.URL.Query().Get("since")
	)

	subs, err := s.store.SubscriptionsSince(ctx, userID(ctx), syncv1.ParseTime(&since))
	if err != nil {
		return err
	}

	resp := struct {
		Subscriptions []syncv1.SubscriptionChange `json:"subscriptions"`
	}{Subscriptions: []syncv1.SubscriptionChange{}}
	for _, sub := range subs {
		resp.Subscriptions = append(resp.Subscriptions, syncv1.SubscriptionChange{
			Feed:           sub.FeedID,
			Source:         sub.SourceID,
			SubscribedAt:   sub.SubscribedAt,
			UnsubscribedAt: sub.UnsubscribedAt,
			UpdatedAt:      sub.UpdatedAt,
		})
	}

	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getPlaylists(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx   = r.Context()
		since = r.URL.Query().Get("since")
	)

	lists, err := s.store.PlaylistsSince(ctx, userID(ctx), syncv1.ParseTime(&since))
	if err != nil {
		return err
	}

	resp := struct {
		Playlists []syncv1.PlaylistChange `json:"playlists"`
	}{Playlists: []syncv1.PlaylistChange{}}
	for _, list := range lists {
		resp.Playlists = append(resp.Playlists, apiPlaylist(list))
	}

	return writeJSON(w, http.StatusOK, resp)
}
