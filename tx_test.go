package akron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akron-db/akron/errs"
	"github.com/akron-db/akron/internal/driver"
)

func TestBegin_TwiceFails(t *testing.T) {
	f := &fakeAdapter{caps: driver.Capabilities{MultiStatementTx: true}}
	db := newTestDB(f)
	ctx := context.Background()

	require.NoError(t, db.Begin(ctx))
	err := db.Begin(ctx)
	assert.True(t, errs.IsTransactionState(err))
	assert.Equal(t, 1, f.begun)
}

func TestCommit_WithoutBeginFails(t *testing.T) {
	db := newTestDB(&fakeAdapter{})
	assert.True(t, errs.IsTransactionState(db.Commit(context.Background())))
	assert.True(t, errs.IsTransactionState(db.Rollback(context.Background())))
}

func TestBegin_LegalAgainAfterCommit(t *testing.T) {
	f := &fakeAdapter{caps: driver.Capabilities{MultiStatementTx: true}}
	db := newTestDB(f)
	ctx := context.Background()

	require.NoError(t, db.Begin(ctx))
	require.NoError(t, db.Commit(ctx))
	require.NoError(t, db.Begin(ctx))
	require.NoError(t, db.Rollback(ctx))
	assert.Equal(t, 2, f.begun)
	assert.Equal(t, 1, f.committed)
	assert.Equal(t, 1, f.rolledBack)
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	f := &fakeAdapter{caps: driver.Capabilities{MultiStatementTx: true}}
	db := newTestDB(f)

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := db.Insert(ctx, "users", map[string]any{"name": "Ada"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.committed)
	assert.Zero(t, f.rolledBack)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	f := &fakeAdapter{caps: driver.Capabilities{MultiStatementTx: true}}
	db := newTestDB(f)

	sentinel := errs.New(errs.CodeConstraintViolation, "duplicate")
	err := db.Transaction(context.Background(), func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Zero(t, f.committed)
	assert.Equal(t, 1, f.rolledBack)
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	f := &fakeAdapter{caps: driver.Capabilities{MultiStatementTx: true}}
	db := newTestDB(f)

	assert.Panics(t, func() {
		_ = db.Transaction(context.Background(), func(context.Context) error {
			panic("boom")
		})
	})
	assert.Zero(t, f.committed)
	assert.Equal(t, 1, f.rolledBack)
}
