package ledger

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func TestRepositoryGet_Success(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, category, amount, description, price FROM products WHERE id=$1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "amount", "description", "price"}).
			AddRow(int64(1), "Widget", "tools", 7, "a widget", decimal.RequireFromString("9.99")))

	p, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)
	require.Equal(t, "Widget", p.Name)
	require.Equal(t, 7, p.Amount)
	require.True(t, p.Price.Equal(decimal.RequireFromString("9.99")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, category, amount, description, price FROM products WHERE id=$1`)).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreate_AssignsID(t *testing.T) {
	repo, mock := newMockRepo(t)

	p := Product{Name: "Widget", Category: "tools", Amount: 3, Description: "d", Price: decimal.RequireFromString("1.50")}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO products (name, category, amount, description, price)`)).
		WithArgs(p.Name, p.Category, p.Amount, p.Description, p.Price).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

	created, err := repo.Create(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, int64(5), created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdate_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	p := Product{ID: 8, Name: "Widget", Price: decimal.RequireFromString("1.50")}

	mock.ExpectExec(`UPDATE products`).
		WithArgs(p.ID, p.Name, p.Category, p.Amount, p.Description, p.Price).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := repo.Update(context.Background(), p)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDelete_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM products WHERE id=$1`)).
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, repo.Delete(context.Background(), 4), ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryHasStock_Boundary(t *testing.T) {
	tests := []struct {
		name      string
		available int
		requested int
		want      bool
	}{
		{"exactly enough", 5, 5, true},
		{"one short", 4, 5, false},
		{"plenty", 10, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM products WHERE id=$1`)).
				WithArgs(int64(1)).
				WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(tt.available))

			got, err := repo.HasStock(context.Background(), 1, tt.requested)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepositoryReserve_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(int64(1), 3).
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO reservations`).
		WithArgs(token, int64(1), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	remaining, err := repo.Reserve(context.Background(), 1, token, 3)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryReserve_Insufficient(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(int64(1), 5).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM products WHERE id=$1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), 1, token, 5)

	var insufficient InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 2, insufficient.Available)
	require.Equal(t, 5, insufficient.Requested)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryReserve_ProductNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(int64(9), 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM products WHERE id=$1`)).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), 9, token, 1)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryReserve_InvalidAmount(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.Reserve(context.Background(), 1, uuid.New(), 0)

	var invalid InvalidAmountError
	require.ErrorAs(t, err, &invalid)
	require.NoError(t, mock.ExpectationsWereMet(), "no query for an invalid amount")
}

func TestRepositoryRelease_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reservations`).
		WithArgs(token, int64(1), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET amount = amount + $2 WHERE id=$1`)).
		WithArgs(int64(1), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reservations WHERE id=$1 AND amount = 0`)).
		WithArgs(token).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, repo.Release(context.Background(), 1, token, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRelease_Exceeded(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reservations`).
		WithArgs(token, int64(1), 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM reservations WHERE id=$1 AND product_id=$2`)).
		WithArgs(token, int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(3))
	mock.ExpectRollback()

	err := repo.Release(context.Background(), 1, token, 5)

	var exceeded ReservationExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, 3, exceeded.Remaining)
	require.Equal(t, 5, exceeded.Requested)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRelease_ReservationNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reservations`).
		WithArgs(token, int64(1), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM reservations WHERE id=$1 AND product_id=$2`)).
		WithArgs(token, int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Release(context.Background(), 1, token, 1)
	require.ErrorIs(t, err, ErrReservationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRelease_RestoreMissingProduct(t *testing.T) {
	repo, mock := newMockRepo(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reservations`).
		WithArgs(token, int64(1), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET amount = amount + $2 WHERE id=$1`)).
		WithArgs(int64(1), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Release(context.Background(), 1, token, 1)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
