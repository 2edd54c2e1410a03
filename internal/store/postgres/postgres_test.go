package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminalsim/internal/terminal"
)

// pgxMockAdapter satisfies database.DB over a pgxmock pool, the same
// adapter shape services/simulation-svc/internal/repository/postgres_test.go
// uses.
type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() { a.mock.Close() }

func (a *pgxMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

func setupMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store := NewStore(&pgxMockAdapter{mock: mock}, "rotterdam")
	return mock, store
}

func TestStore_Add_Upserts(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	c := terminal.NewRecord("C-1")
	c.SetVariable("next_destination", "hamburg")
	c.SetCurrentLocation("rotterdam")

	mock.ExpectExec(`INSERT INTO containers`).
		WithArgs("rotterdam", "C-1", 10.0, 20.0, pgxmock.AnyArg(), "rotterdam", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store.Add(c, 10.0, 20.0)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Add_LogsOnFailure(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	c := terminal.NewRecord("C-1")

	mock.ExpectExec(`INSERT INTO containers`).
		WillReturnError(errors.New("connection lost"))

	assert.NotPanics(t, func() { store.Add(c, 0, 0) })
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Count(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM containers WHERE terminal_name = \$1`).
		WithArgs("rotterdam").
		WillReturnRows(rows)

	assert.Equal(t, 3, store.Count())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ByAddedTime_InvalidCondition(t *testing.T) {
	_, store := setupMockStore(t)

	_, err := store.ByAddedTime(5, "~=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid condition")
}

func TestStore_ByDepartingTime_ScansContainers(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"container_id", "current_location", "variables"}).
		AddRow("C-1", "rotterdam", []byte(`{"next_destination":"hamburg"}`)).
		AddRow("C-2", "rotterdam", []byte(`{}`))

	mock.ExpectQuery(`SELECT container_id, current_location, variables`).
		WithArgs("rotterdam", 100.0).
		WillReturnRows(rows)

	containers, err := store.ByDepartingTime(100.0, ">")
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.Equal(t, "C-1", containers[0].ID())
	dest, ok := containers[0].GetVariable("next_destination")
	assert.True(t, ok)
	assert.Equal(t, "hamburg", dest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DequeueByNextDestination(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"container_id", "current_location", "variables"}).
		AddRow("C-9", "rotterdam", []byte(`{}`))

	mock.ExpectQuery(`DELETE FROM containers`).
		WithArgs("rotterdam", "hamburg").
		WillReturnRows(rows)

	containers := store.DequeueByNextDestination("hamburg")
	require.Len(t, containers, 1)
	assert.Equal(t, "C-9", containers[0].ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Clear(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM containers WHERE terminal_name = \$1`).
		WithArgs("rotterdam").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	store.Clear()
	assert.NoError(t, mock.ExpectationsWereMet())
}
