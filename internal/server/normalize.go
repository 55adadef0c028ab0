package server

import (
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	syncv1 "github.com/podkeep/podkeep/api/sync/v1"
	"github.com/podkeep/podkeep/internal/podkeep"
)

var stripPolicy = bluemonday.StrictPolicy()

// Removes html tags from client-supplied text and bounds its length.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 1024 {
		s = s[:1024]
	}

	return s
}

// toBatch turns the wire payload into domain entities. Normalization
// never rejects: entries missing their natural key are dropped, bad
// timestamps become nil, a playlist without an id gets a fresh one.
func toBatch(c syncv1.Changes) podkeep.Batch {
	var batch podkeep.Batch

	for _, sub := range c.Subscriptions {
		if sub.Feed == "" {
			continue
		}
		batch.Subscriptions = append(batch.Subscriptions, podkeep.Subscription{
			FeedID:         sub.Feed,
			SourceID:       sub.Source,
			SubscribedAt:   syncv1.ParseTime(sub.SubscribedAt),
			UnsubscribedAt: syncv1.ParseTime(sub.UnsubscribedAt),
		})
	}

	for _, play := range c.Plays {
		if play.Item == "" {
			continue
		}
		p := podkeep.PlayPosition{
			ItemID:   play.Item,
			FeedID:   play.Feed,
			Position: play.Position,
			Played:   play.Played,
			Reset:    play.Reset,
		}
		if t := syncv1.ParseTime(&play.UpdatedAt); t != nil {
			p.ClientUpdatedAt = *t
		}
		batch.Plays = append(batch.Plays, p)
	}

	for _, list := range c.Playlists {
		l := podkeep.Playlist{
			ID:        strings.TrimSpace(list.ID),
			Name:      sanitize(list.Name),
			IsPublic:  list.IsPublic,
			DeletedAt: syncv1.ParseTime(list.DeletedAt),
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if list.Description != nil {
			l.Description = sanitize(*list.Description)
		}
		if t := syncv1.ParseTime(&list.UpdatedAt); t != nil {
			l.ClientUpdatedAt = *t
		}
		for _, item := range list.Items {
			if item.Item == "" {
				continue
			}
			l.Items = append(l.Items, podkeep.PlaylistItem{
				FeedID:    item.Feed,
				ItemID:    item.Item,
				Title:     sanitize(item.Title),
				FeedTitle: sanitize(item.FeedTitle),
				Position:  item.Position,
			})
		}
		batch.Playlists = append(batch.Playlists, l)
	}

	return batch
}
