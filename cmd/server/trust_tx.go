package main

import (
	"context"
	"database/sql"
	"time"

	trustservice "trustline/internal/trust/service"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	txcontext "trustline/pkg/platform/tx"
)

const defaultTrustTxTimeout = 5 * time.Second

// trustPostgresTx runs a unit of work in one database transaction. The
// transaction rides in ctx, so the Postgres stores pick it up through
// txcontext.Executor. A transaction-scoped advisory lock serializes units of
// work per community across processes.
type trustPostgresTx struct {
	db      *sql.DB
	stores  trustservice.Stores
	timeout time.Duration
}

func newTrustPostgresTx(db *sql.DB, stores trustservice.Stores, timeout time.Duration) *trustPostgresTx {
	return &trustPostgresTx{db: db, stores: stores, timeout: timeout}
}

func (t *trustPostgresTx) RunInTx(ctx context.Context, communityID id.CommunityID, fn func(ctx context.Context, stores trustservice.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTrustTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, communityID.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock community")
	}
	if err := fn(txcontext.WithTx(ctx, tx), t.stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
