package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/podkeep/podkeep/internal/podkeep"
)

func (t Tx) PlaylistsByID(ctx context.Context, userID string, ids []string) ([]podkeep.Playlist, error) {
	if len(ids) == 0 {
		return []podkeep.Playlist{}, nil
	}

	query, args, err := sq.Select("*").From("playlists").
		Where(sq.Eq{"user_id": userID, "id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var lists []podkeep.Playlist
	if err := t.tx.SelectContext(ctx, &lists, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching playlists: %s", err)
	}

	return lists, nil
}

func (t Tx) UpsertPlaylists(ctx context.Context, lists []podkeep.Playlist) error {
	if len(lists) == 0 {
		return nil
	}

	const q = `INSERT INTO playlists (id, user_id, name, description, is_public, deleted_at, client_updated_at, updated_at)
	VALUES (:id, :user_id, :name, :description, :is_public, :deleted_at, :client_updated_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		is_public = excluded.is_public,
		deleted_at = excluded.deleted_at,
		client_updated_at = excluded.client_updated_at,
		updated_at = excluded.updated_at;`
	if _, err := t.tx.NamedExecContext(ctx, q, lists); err != nil {
		return fmt.Errorf("error upserting playlists: %s", err)
	}

	return nil
}

func (t Tx) UpsertPlaylistItems(ctx context.Context, items []podkeep.PlaylistItem) error {
	if len(items) == 0 {
		return nil
	}

	const q = `INSERT INTO playlist_items (playlist_id, feed_id, item_id, user_id, title, feed_title, position, deleted_at, updated_at)
	VALUES (:playlist_id, :feed_id, :item_id, :user_id, :title, :feed_title, :position, :deleted_at, :updated_at)
	ON CONFLICT (playlist_id, feed_id, item_id, user_id) DO UPDATE SET
		title = excluded.title,
		feed_title = excluded.feed_title,
		position = excluded.position,
		deleted_at = excluded.deleted_at,
		updated_at = excluded.updated_at;`
	if _, err := t.tx.NamedExecContext(ctx, q, items); err != nil {
		return fmt.Errorf("error upserting playlist items: %s", err)
	}

	return nil
}

func (t Tx) SoftDeletePlaylist(ctx context.Context, userID, playlistID string, deletedAt, updatedAt time.Time) error {
	const listQ = `UPDATE playlists SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ?;`
	if _, err := t.tx.ExecContext(ctx, listQ, deletedAt, updatedAt, playlistID, userID); err != nil {
		return fmt.Errorf("error soft-deleting playlist: %s", err)
	}

	const itemQ = `UPDATE playlist_items SET deleted_at = ?, updated_at = ? WHERE playlist_id = ? AND user_id = ?;`
	if _, err := t.tx.ExecContext(ctx, itemQ, deletedAt, updatedAt, playlistID, userID); err != nil {
		return fmt.Errorf("error soft-deleting playlist items: %s", err)
	}

	return nil
}

// PlaylistsSince returns the user's playlists changed past the
// watermark, each with its live items attached in playlist order.
// Tombstoned playlists come back flagged with deleted_at and no items.
func (r Repo) PlaylistsSince(ctx context.Context, userID string, since *time.Time) ([]podkeep.Playlist, error) {
	q := sq.Select("*").From("playlists").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id")
	if since != nil {
		q = q.Where(sq.Gt{"updated_at": *since})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var lists []podkeep.Playlist
	if err := r.db.SelectContext(ctx, &lists, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching playlists: %s", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	ids := make([]string, 0, len(lists))
	for _, l := range lists {
		ids = append(ids, l.ID)
	}

	itemQuery, itemArgs, err := sq.Select("*").From("playlist_items").
		Where(sq.Eq{"user_id": userID, "playlist_id": ids, "deleted_at": nil}).
		OrderBy("playlist_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var items []podkeep.PlaylistItem
	if err := r.db.SelectContext(ctx, &items, itemQuery, itemArgs...); err != nil {
		return nil, fmt.Errorf("error fetching playlist items: %s", err)
	}

	byList := make(map[string][]podkeep.PlaylistItem, len(lists))
	for _, item := range items {
		byList[item.PlaylistID] = append(byList[item.PlaylistID], item)
	}
	for i := range lists {
		if lists[i].DeletedAt != nil {
			continue
		}
		lists[i].Items = byList[lists[i].ID]
	}

	return lists, nil
}
