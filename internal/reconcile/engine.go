// Package reconcile implements the multi-device sync engine: it merges
// a batch of client-submitted changes into server state inside one
// transaction and reports back what changed and what conflicted.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookgo/clock"

	"github.com/podkeep/podkeep/internal/podkeep"
)

// Engine drives one sync call end to end: reconcile the three entity
// kinds against a single transactional snapshot, commit, then build the
// delta the client should pull down.
type Engine struct {
	store podkeep.Store
	clock clock.Clock
}

// New builds an engine around a store. The clock is injected so tests
// can pin time and assert exact tie-break behavior.
func New(store podkeep.Store, clk clock.Clock) *Engine {
	return &Engine{store: store, clock: clk}
}

// Result is the outcome of a successful sync call.
type Result struct {
	// SyncToken is the commit-time watermark the client should send as
	// last_sync on its next call.
	SyncToken time.Time
	Delta     podkeep.Delta
	Conflicts []podkeep.ConflictRecord
}

// Sync reconciles the batch for the user and returns the resolved delta
// since lastSync (nil means first sync: return everything).
//
// All writes land in one atomic transaction; a failure anywhere aborts
// the whole call with no partial effects, so the client can retry with
// the same payload. Repeated identical calls converge: once the server
// reflects a device's write, resubmitting it resolves to a no-op.
func (e *Engine) Sync(ctx context.Context, userID string, lastSync *time.Time, batch podkeep.Batch) (Result, error) {
	now := e.clock.Now().UTC()

	conflicts := []podkeep.ConflictRecord{}
	err := e.store.WithTx(ctx, func(tx podkeep.Tx) error {
		// Accumulate locally and publish only on success: the store may
		// rerun this closure after a busy commit, and an aborted
		// attempt's records must not survive into the retry.
		found := []podkeep.ConflictRecord{}

		subConflicts, err := reconcileSubscriptions(ctx, tx, userID, now, batch.Subscriptions)
		if err != nil {
			return err
		}
		playConflicts, err := reconcilePlays(ctx, tx, userID, now, batch.Plays)
		if err != nil {
			return err
		}
		listConflicts, err := reconcilePlaylists(ctx, tx, userID, now, batch.Playlists)
		if err != nil {
			return err
		}

		found = append(found, subConflicts...)
		found = append(found, playConflicts...)
		found = append(found, listConflicts...)
		conflicts = found

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("error committing sync: %w", err)
	}

	token := e.clock.Now().UTC()

	delta, err := e.buildDelta(ctx, userID, lastSync)
	if err != nil {
		return Result{}, fmt.Errorf("error building delta: %w", err)
	}

	return Result{
		SyncToken: token,
		Delta:     delta,
		Conflicts: conflicts,
	}, nil
}
