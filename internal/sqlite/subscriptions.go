package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/podkeep/podkeep/internal/podkeep"
)

func (t Tx) SubscriptionsByFeed(ctx context.Context, userID string, feedIDs []string) ([]podkeep.Subscription, error) {
	if len(feedIDs) == 0 {
		return []podkeep.Subscription{}, nil
	}

	query, args, err := sq.Select("*").From("subscriptions").
		Where(sq.Eq{"user_id": userID, "feed_id": feedIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var subs []podkeep.Subscription
	if err := t.tx.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching subscriptions: %s", err)
	}

	return subs, nil
}

func (t Tx) UpsertSubscriptions(ctx context.Context, subs []podkeep.Subscription) error {
	if len(subs) == 0 {
		return nil
	}

	const q = `INSERT INTO subscriptions (user_id, feed_id, source_id, subscribed_at, unsubscribed_at, updated_at)
	VALUES (:user_id, :feed_id, :source_id, :subscribed_at, :unsubscribed_at, :updated_at)
	ON CONFLICT (user_id, feed_id) DO UPDATE SET
		source_id = excluded.source_id,
		subscribed_at = excluded.subscribed_at,
		unsubscribed_at = excluded.unsubscribed_at,
		updated_at = excluded.updated_at;`
	if _, err := t.tx.NamedExecContext(ctx, q, subs); err != nil {
		return fmt.Errorf("error upserting subscriptions: %s", err)
	}

	return nil
}

func (r Repo) SubscriptionsSince(ctx context.Context, userID string, since *time.Time) ([]podkeep.Subscription, error) {
	q := sq.Select("*").From("subscriptions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("feed_id")
	if since != nil {
		q = q.Where(sq.Gt{"updated_at": *since})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var subs []podkeep.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching subscriptions: %s", err)
	}

	return subs, nil
}
