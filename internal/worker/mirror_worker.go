// Package worker keeps the Google Sheets copy of the ledger in step with
// the store. New transactions are appended as change events arrive; every
// other change (updates, deletes, splits) is reconciled by rebuilding the
// sheet from the store on the periodic resync.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"tally/internal/core"
	"tally/internal/events"
	"tally/internal/mirror"
	"tally/internal/store"
)

// Clearer is implemented by mirrors that can wipe their copy before a
// backfill.
type Clearer interface {
	Clear(ctx context.Context) error
}

type MirrorWorker struct {
	store     store.Store
	sheet     mirror.RowAppender
	batchSize int

	// dirty is set when a change arrives that appends alone cannot mirror;
	// the next periodic resync picks it up.
	dirty atomic.Bool
}

func NewMirrorWorker(st store.Store, sheet mirror.RowAppender, batchSize int) *MirrorWorker {
	if batchSize < 1 {
		batchSize = 25
	}
	return &MirrorWorker{store: st, sheet: sheet, batchSize: batchSize}
}

// HandleChange processes one ledger change event. Returning an error nacks
// the delivery so it gets redelivered.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *events.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing ledger change event", "id", msg.ID, "op", msg.Op)

	switch msg.Op {
	case events.OpCreated:
		return w.appendByID(ctx, msg.ID)
	case events.OpUpdated, events.OpDeleted, events.OpSplit, events.OpUnsplit:
		// These cannot be expressed as an append; rebuild on next resync.
		w.dirty.Store(true)
		return nil
	default:
		slog.WarnContext(ctx, "Unknown change op, ignoring", "op", msg.Op)
		return nil
	}
}

func (w *MirrorWorker) appendByID(ctx context.Context, id string) error {
	tx, err := w.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before we got to it; the resync will square things.
			w.dirty.Store(true)
			return nil
		}
		return fmt.Errorf("get transaction: %w", err)
	}
	if tx.Deleted || tx.IsSplitParent {
		w.dirty.Store(true)
		return nil
	}

	account, err := w.store.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if _, err := w.sheet.AppendRow(ctx, mirror.Row{Transaction: tx, Account: account.Name}); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

// ResyncIfDirty rebuilds the sheet when a non-append change was seen since
// the last run. Called from the periodic ticker.
func (w *MirrorWorker) ResyncIfDirty(ctx context.Context) error {
	if !w.dirty.Swap(false) {
		return nil
	}
	if err := w.Resync(ctx); err != nil {
		w.dirty.Store(true) // retry on the next tick
		return err
	}
	return nil
}

// Resync rebuilds the whole mirrored sheet from the store: clear, then
// append every live, non-split-parent transaction in date order.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	if clearer, ok := w.sheet.(Clearer); ok {
		if err := clearer.Clear(ctx); err != nil {
			return fmt.Errorf("clear mirror: %w", err)
		}
	}

	accounts, err := w.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}

	txs, err := w.store.ListTransactions(ctx, store.TransactionFilter{
		ExcludeSplitParents: true,
		Ascending:           true,
	})
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	// Rows go out in date order, one batch at a time, so a long backfill
	// shows progress in the logs and an interrupted run is easy to locate.
	for start := 0; start < len(txs); start += w.batchSize {
		end := start + w.batchSize
		if end > len(txs) {
			end = len(txs)
		}
		for _, tx := range txs[start:end] {
			row := mirror.Row{Transaction: tx, Account: names[tx.AccountID]}
			if _, err := w.sheet.AppendRow(ctx, row); err != nil {
				return fmt.Errorf("append row %s: %w", tx.ID, err)
			}
		}
		slog.InfoContext(ctx, "Mirror batch written", "from", start, "to", end, "total", len(txs))
	}

	slog.InfoContext(ctx, "Mirror resync complete", "rows", len(txs))
	return nil
}
