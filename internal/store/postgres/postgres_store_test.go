package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/tide/internal/constants"
	"github.com/RezaEskandarii/tide/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	require.NotNil(t, s)
	var _ store.Store = s
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT field, value FROM tide_schema.kv").
		WithArgs("c1::tideJobs").
		WillReturnRows(sqlmock.NewRows([]string{"field", "value"}).
			AddRow("A", `{"id":"A"}`).
			AddRow("B", `{"id":"B"}`))

	got, err := NewPostgresStore(db).Get(context.Background(), "c1::tideJobs")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": `{"id":"A"}`, "B": `{"id":"B"}`}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_MissingKeyIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT field, value FROM tide_schema.kv").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"field", "value"}))

	got, err := NewPostgresStore(db).Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestPostgresStore_Get_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT field, value FROM tide_schema.kv").
		WillReturnError(sql.ErrConnDone)

	_, err = NewPostgresStore(db).Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read k")
}

func TestPostgresStore_Set(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM tide_schema.kv").
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO tide_schema.kv").
		WithArgs("k", "A", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tide_schema.kv").
		WithArgs("k", "B", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewPostgresStore(db).Set(context.Background(), "k", map[string]string{"B": "2", "A": "1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Set_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM tide_schema.kv").
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO tide_schema.kv").
		WithArgs("k", "A", "1").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewPostgresStore(db).Set(context.Background(), "k", map[string]string{"A": "1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write k/A")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Keys(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT key FROM tide_schema.kv").
		WithArgs(`containers::app\_1::%`).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("containers::app_1::c1").
			AddRow("containers::app_1::c2"))

	keys, err := NewPostgresStore(db).Keys(context.Background(), "containers::app_1::*")
	require.NoError(t, err)
	assert.Equal(t, []string{"containers::app_1::c1", "containers::app_1::c2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(constants.MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS tide_schema").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tide_schema.kv").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(constants.MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Init(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_LockFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").
		WillReturnError(sql.ErrConnDone)

	err = Init(context.Background(), db)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire migration lock")
}
