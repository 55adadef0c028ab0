// Package podkeep holds the core domain types for the sync backend:
// the per-user entities kept in storage and the contracts the
// reconciliation engine needs from it.
package podkeep

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

type (
	// Subscription tracks whether a user follows a feed. At most one row
	// exists per (user_id, feed_id); unsubscribing sets a timestamp rather
	// than deleting the row.
	Subscription struct {
		UserID         string     `db:"user_id"`
		FeedID         string     `db:"feed_id"`
		SourceID       string     `db:"source_id"`
		SubscribedAt   *time.Time `db:"subscribed_at"`
		UnsubscribedAt *time.Time `db:"unsubscribed_at"`
		UpdatedAt      time.Time  `db:"updated_at"`
	}

	// PlayPosition is how far a user has listened into a single episode.
	//
	// ClientUpdatedAt is the device's own modification time and only
	// feeds tie-breaks; UpdatedAt is stamped at commit and is what delta
	// queries filter on. Keeping them apart means a write accepted with
	// an old device clock still surfaces to other devices.
	PlayPosition struct {
		UserID          string    `db:"user_id"`
		ItemID          string    `db:"item_id"`
		FeedID          string    `db:"feed_id"`
		Position        int       `db:"position"`
		Played          bool      `db:"played"`
		ClientUpdatedAt time.Time `db:"client_updated_at"`
		UpdatedAt       time.Time `db:"updated_at"`

		// Reset marks an intentional rewind by the client. It only exists
		// during resolution and is never persisted.
		Reset bool `db:"-"`
	}

	// Playlist is a user-curated list of episodes. Deletion is a
	// tombstone: DeletedAt set, row kept. ClientUpdatedAt and UpdatedAt
	// split the same way they do on [PlayPosition].
	Playlist struct {
		ID              string     `db:"id"`
		UserID          string     `db:"user_id"`
		Name            string     `db:"name"`
		Description     string     `db:"description"`
		IsPublic        bool       `db:"is_public"`
		DeletedAt       *time.Time `db:"deleted_at"`
		ClientUpdatedAt time.Time  `db:"client_updated_at"`
		UpdatedAt       time.Time  `db:"updated_at"`

		Items []PlaylistItem `db:"-"`
	}

	// PlaylistItem is one entry of a playlist, keyed by
	// (playlist_id, feed_id, item_id, user_id).
	PlaylistItem struct {
		PlaylistID string     `db:"playlist_id"`
		FeedID     string     `db:"feed_id"`
		ItemID     string     `db:"item_id"`
		UserID     string     `db:"user_id"`
		Title      string     `db:"title"`
		FeedTitle  string     `db:"feed_title"`
		Position   int        `db:"position"`
		DeletedAt  *time.Time `db:"deleted_at"`
		UpdatedAt  time.Time  `db:"updated_at"`
	}

	// Batch is one device's submitted changes, already normalized from
	// the wire format.
	Batch struct {
		Subscriptions []Subscription
		Plays         []PlayPosition
		Playlists     []Playlist
	}

	// Delta is the set of rows changed since a watermark, returned to the
	// client so it can pull them down.
	Delta struct {
		Subscriptions []Subscription
		Plays         []PlayPosition
		Playlists     []Playlist
	}
)

// EffectiveAt derives the timestamp used to compare two subscription
// states: the later of subscribed/unsubscribed, nil when neither is set.
func (s Subscription) EffectiveAt() *time.Time {
	switch {
	case s.SubscribedAt == nil:
		return s.UnsubscribedAt
	case s.UnsubscribedAt == nil:
		return s.SubscribedAt
	case s.UnsubscribedAt.After(*s.SubscribedAt):
		return s.UnsubscribedAt
	default:
		return s.SubscribedAt
	}
}

type (
	// Store is the storage surface the engine needs: delta reads plus a
	// way to run the reconciliation writes in one atomic transaction.
	Store interface {
		WithTx(ctx context.Context, fn func(Tx) error) error

		SubscriptionsSince(ctx context.Context, userID string, since *time.Time) ([]Subscription, error)
		PlayPositionsSince(ctx context.Context, userID string, since *time.Time) ([]PlayPosition, error)
		// PlaylistsSince returns playlists with their live (non-deleted)
		// items populated.
		PlaylistsSince(ctx context.Context, userID string, since *time.Time) ([]Playlist, error)
	}

	// Tx is the transactional slice of the store used while reconciling:
	// bulk reads by natural key and replace-on-conflict writes. All reads
	// observe the single snapshot the transaction opened with.
	Tx interface {
		SubscriptionsByFeed(ctx context.Context, userID string, feedIDs []string) ([]Subscription, error)
		UpsertSubscriptions(ctx context.Context, subs []Subscription) error

		PlayPositionsByItem(ctx context.Context, userID string, itemIDs []string) ([]PlayPosition, error)
		UpsertPlayPositions(ctx context.Context, plays []PlayPosition) error

		PlaylistsByID(ctx context.Context, userID string, ids []string) ([]Playlist, error)
		UpsertPlaylists(ctx context.Context, lists []Playlist) error
		UpsertPlaylistItems(ctx context.Context, items []PlaylistItem) error
		// SoftDeletePlaylist tombstones the playlist row and cascades the
		// tombstone to every item under it. deletedAt is the tombstone
		// value; updatedAt is the commit-time watermark stamp.
		SoftDeletePlaylist(ctx context.Context, userID, playlistID string, deletedAt, updatedAt time.Time) error
	}
)
