package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Repository interface {
	Get(ctx context.Context, productID int64) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Delete(ctx context.Context, productID int64) error

	HasStock(ctx context.Context, productID int64, amount int) (bool, error)
	// Reserve decrements available stock and records the reservation under the
	// caller-minted token. Returns the quantity still available afterwards.
	Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) (int, error)
	// Release returns previously reserved quantity to stock, bounded by what
	// the reservation still holds.
	Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error
	ListReservations(ctx context.Context, productID int64) ([]Reservation, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const productColumns = `id, name, category, amount, description, price`

func (r *PostgresRepository) Get(ctx context.Context, productID int64) (Product, error) {
	var p Product
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, productID)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Amount, &p.Description, &p.Price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Amount, &p.Description, &p.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, category, amount, description, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Name, p.Category, p.Amount, p.Description, p.Price)
	if err := row.Scan(&p.ID); err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p Product) (Product, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET name=$2, category=$3, amount=$4, description=$5, price=$6
		WHERE id=$1
	`, p.ID, p.Name, p.Category, p.Amount, p.Description, p.Price)
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, productID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PostgresRepository) HasStock(ctx context.Context, productID int64, amount int) (bool, error) {
	var available int
	row := r.pool.QueryRow(ctx, `SELECT amount FROM products WHERE id=$1`, productID)
	if err := row.Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("select stock: %w", err)
	}
	return available >= amount, nil
}

func (r *PostgresRepository) ListReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, amount, created_at
		FROM reservations WHERE product_id=$1 ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ProductID, &res.Amount, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return reservations, nil
}

func (r *PostgresRepository) Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) (int, error) {
	if amount < 1 {
		return 0, InvalidAmountError{Amount: amount}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Single conditional update: decrement only while enough stock remains.
	// A plain read-then-write would lose updates under concurrent reserves.
	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE products
		SET amount = amount - $2
		WHERE id=$1 AND amount >= $2
		RETURNING amount
	`, productID, amount).Scan(&remaining)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("decrement stock: %w", err)
		}

		var available int
		if err := tx.QueryRow(ctx, `SELECT amount FROM products WHERE id=$1`, productID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrProductNotFound
			}
			return 0, fmt.Errorf("select stock: %w", err)
		}
		return 0, InsufficientStockError{ProductID: productID, Available: available, Requested: amount}
	}

	// A repeated token extends the same reservation rather than creating a
	// second one, so a line ever holds exactly one token.
	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (id, product_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET amount = reservations.amount + EXCLUDED.amount
	`, token, productID, amount)
	if err != nil {
		return 0, fmt.Errorf("record reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return remaining, nil
}

func (r *PostgresRepository) Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	if amount < 1 {
		return InvalidAmountError{Amount: amount}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET amount = amount - $3
		WHERE id=$1 AND product_id=$2 AND amount >= $3
	`, token, productID, amount)
	if err != nil {
		return fmt.Errorf("decrement reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var remaining int
		err := tx.QueryRow(ctx, `
			SELECT amount FROM reservations WHERE id=$1 AND product_id=$2
		`, token, productID).Scan(&remaining)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReservationNotFound
			}
			return fmt.Errorf("select reservation: %w", err)
		}
		return ReservationExceededError{ReservationID: token, Remaining: remaining, Requested: amount}
	}

	tag, err = tx.Exec(ctx, `
		UPDATE products SET amount = amount + $2 WHERE id=$1
	`, productID, amount)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	// Fully released reservations are garbage; dropping the row makes a
	// duplicate release surface as ErrReservationNotFound instead of a credit.
	_, err = tx.Exec(ctx, `
		DELETE FROM reservations WHERE id=$1 AND amount = 0
	`, token)
	if err != nil {
		return fmt.Errorf("drop reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
