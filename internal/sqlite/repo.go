package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"

	"github.com/podkeep/podkeep/internal/podkeep"
)

// Ensure Repo implements the storage interfaces
var (
	_ podkeep.Store = Repo{}
	_ podkeep.Tx    = Tx{}
)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Tx wraps one open transaction; every read inside it observes the
// snapshot taken when the transaction began.
type Tx struct {
	tx *sqlx.Tx
}

const (
	codeBusy   = 5 // SQLITE_BUSY
	codeLocked = 6 // SQLITE_LOCKED
)

// WithTx runs fn inside a single transaction, committing only if fn
// returns nil. A commit that loses the write lock to a concurrent sync
// is retried a few times before giving up.
func (r Repo) WithTx(ctx context.Context, fn func(podkeep.Tx) error) error {
	b := retry.WithMaxRetries(3, retry.NewFibonacci(50*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.runTx(ctx, fn)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r Repo) runTx(ctx context.Context, fn func(podkeep.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	if err := fn(Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func isBusy(err error) bool {
	sqliteErr := (&sqlite.Error{})
	return errors.As(err, &sqliteErr) && (sqliteErr.Code() == codeBusy || sqliteErr.Code() == codeLocked)
}
