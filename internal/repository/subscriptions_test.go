package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

// The failure counter readback must run inside the same transaction as
// the increment: the returned pair is the state this call produced, even
// when concurrent passes hammer the same row.
func TestRecordFailure_TransactionalReadback(t *testing.T) {
	dbx, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE webhook_subscriptions").
		WithArgs(10, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT consecutive_failures, active FROM webhook_subscriptions").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"consecutive_failures", "active"}).AddRow(10, 0))
	mock.ExpectCommit()

	repo := NewSubscriptionsRepository(dbx, 10)
	failures, active, err := repo.RecordFailure(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 10, failures)
	assert.False(t, active)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailure_BelowThresholdStaysActive(t *testing.T) {
	dbx, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE webhook_subscriptions").
		WithArgs(10, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT consecutive_failures, active FROM webhook_subscriptions").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"consecutive_failures", "active"}).AddRow(4, 1))
	mock.ExpectCommit()

	repo := NewSubscriptionsRepository(dbx, 10)
	failures, active, err := repo.RecordFailure(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, failures)
	assert.True(t, active)

	require.NoError(t, mock.ExpectationsWereMet())
}
