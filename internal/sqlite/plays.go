package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/podkeep/podkeep/internal/podkeep"
)

func (t Tx) PlayPositionsByItem(ctx context.Context, userID string, itemIDs []string) ([]podkeep.PlayPosition, error) {
	if len(itemIDs) == 0 {
		return []podkeep.PlayPosition{}, nil
	}

	query, args, err := sq.Select("*").From("play_positions").
		Where(sq.Eq{"user_id": userID, "item_id": itemIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var plays []podkeep.PlayPosition
	if err := t.tx.SelectContext(ctx, &plays, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching play positions: %s", err)
	}

	return plays, nil
}

func (t Tx) UpsertPlayPositions(ctx context.Context, plays []podkeep.PlayPosition) error {
	if len(plays) == 0 {
		return nil
	}

	const q = `INSERT INTO play_positions (user_id, item_id, feed_id, position, played, client_updated_at, updated_at)
	VALUES (:user_id, :item_id, :feed_id, :position, :played, :client_updated_at, :updated_at)
	ON CONFLICT (user_id, item_id) DO UPDATE SET
		feed_id = excluded.feed_id,
		position = excluded.position,
		played = excluded.played,
		client_updated_at = excluded.client_updated_at,
		updated_at = excluded.updated_at;`
	if _, err := t.tx.NamedExecContext(ctx, q, plays); err != nil {
		return fmt.Errorf("error upserting play positions: %s", err)
	}

	return nil
}

func (r Repo) PlayPositionsSince(ctx context.Context, userID string, since *time.Time) ([]podkeep.PlayPosition, error) {
	q := sq.Select("*").From("play_positions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("item_id")
	if since != nil {
		q = q.Where(sq.Gt{"updated_at": *since})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var plays []podkeep.PlayPosition
	if err := r.db.SelectContext(ctx, &plays, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching play positions: %s", err)
	}

	return plays, nil
}
