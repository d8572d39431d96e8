package akron

import (
	"context"
	"fmt"

	"github.com/akron-db/akron/errs"
)

// txState tracks the lifecycle of the handle's transaction scope.
// A finished transaction returns the handle to the ground state, so a new
// Begin is always legal after Commit or Rollback.
type txState int

const (
	txInactive txState = iota
	txActive
	txCommitted
	txRolledBack
)

// Begin opens a transaction scope. Backends without multi-statement
// atomicity accept the scope but only guarantee per-document atomicity;
// that downgrade is logged once per transaction.
func (db *DB) Begin(ctx context.Context) error {
	if db.tx == txActive {
		return errs.New(errs.CodeTransactionState, "transaction already active")
	}
	if !db.adapter.Capabilities().MultiStatementTx {
		db.log.Warn().
			Str("backend", db.adapter.Name()).
			Msg("transaction downgraded: backend guarantees single-document atomicity only")
	}
	if err := db.adapter.Begin(ctx); err != nil {
		return err
	}
	db.tx = txActive
	return nil
}

// Commit ends the active transaction, making its writes durable.
func (db *DB) Commit(ctx context.Context) error {
	if db.tx != txActive {
		return errs.New(errs.CodeTransactionState, "no active transaction to commit")
	}
	if err := db.adapter.Commit(ctx); err != nil {
		db.tx = txRolledBack
		return err
	}
	db.tx = txCommitted
	return nil
}

// Rollback ends the active transaction, discarding its writes.
func (db *DB) Rollback(ctx context.Context) error {
	if db.tx != txActive {
		return errs.New(errs.CodeTransactionState, "no active transaction to roll back")
	}
	err := db.adapter.Rollback(ctx)
	db.tx = txRolledBack
	return err
}

// Transaction runs fn inside a transaction scope: commit on normal return,
// rollback when fn returns an error or panics. Panics propagate after the
// rollback.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := db.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = db.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := db.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return db.Commit(ctx)
}
