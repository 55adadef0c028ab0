// Package v1 holds the wire types for the sync endpoint.
//
// Timestamps travel as strings so a device with a broken formatter
// degrades to a nil time instead of failing the whole batch; see
// [ParseTime].
package v1

import "time"

type SyncRequest struct {
	LastSync *string `json:"last_sync"`
	Changes  Changes `json:"changes"`
}

type Changes struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Plays         []Play         `json:"plays"`
	Playlists     []Playlist     `json:"playlists"`
}

type Subscription struct {
	Feed           string  `json:"rss_source_feed"`
	Source         string  `json:"rss_source_id"`
	SubscribedAt   *string `json:"subscribed_at"`
	UnsubscribedAt *string `json:"unsubscribed_at"`
}

type Play struct {
	Feed      string `json:"rss_source_feed"`
	Item      string `json:"rss_source_item"`
	Position  int    `json:"position"`
	Played    bool   `json:"played"`
	UpdatedAt string `json:"updated_at"`
	Reset     bool   `json:"reset,omitempty"`
}

type Playlist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	IsPublic    bool           `json:"is_public"`
	Items       []PlaylistItem `json:"items"`
	UpdatedAt   string         `json:"updated_at"`
	DeletedAt   *string        `json:"deleted_at"`
}

type PlaylistItem struct {
	Feed      string `json:"feed"`
	Item      string `json:"item"`
	Title     string `json:"title"`
	FeedTitle string `json:"feed_title"`
	Position  int    `json:"position"`
}

type SyncResponse struct {
	SyncToken string          `json:"sync_token"`
	Changes   ResponseChanges `json:"changes"`
	Conflicts []Conflict      `json:"conflicts"`
}

type ResponseChanges struct {
	Subscriptions []SubscriptionChange `json:"subscriptions"`
	Plays         []PlayChange         `json:"plays"`
	Playlists     []PlaylistChange     `json:"playlists"`
}

type SubscriptionChange struct {
	Feed           string     `json:"rss_source_feed"`
	Source         string     `json:"rss_source_id"`
	SubscribedAt   *time.Time `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type PlayChange struct {
	Feed      string    `json:"rss_source_feed"`
	Item      string    `json:"rss_source_item"`
	Position  int       `json:"position"`
	Played    bool      `json:"played"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PlaylistChange struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	IsPublic    bool           `json:"is_public"`
	Items       []PlaylistItem `json:"items"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at"`
}

type Conflict struct {
	Type       string         `json:"type"`
	Local      map[string]any `json:"local"`
	Remote     map[string]any `json:"remote"`
	Resolution string         `json:"resolution"`
	Reason     string         `json:"reason"`
}

// Layouts accepted for client timestamps, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a client-supplied timestamp, trying each accepted
// layout. Anything unparseable comes back nil rather than an error: a
// bad timestamp on one entity must not reject the batch.
func ParseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
