package order

import (
	"context"
	"errors"
	"fmt"

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

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID int64) (Order, error)
	List(ctx context.Context) ([]Order, error)
	FindByCustomerPhone(ctx context.Context, phone string) ([]Order, error)
	FindByDeliveryAddress(ctx context.Context, address string) ([]Order, error)
	FindByProductID(ctx context.Context, productID int64) ([]Order, error)
	FindRecent(ctx context.Context, limit int) ([]Order, error)
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, orderID int64) error
}

type PostgresStore struct {
	pool DBPool
}

func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `id, customer_phone, delivery_address, status, total_price, create_date, version`

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.Version = 1
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (customer_phone, delivery_address, status, total_price, create_date, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, o.CustomerPhone, o.DeliveryAddress, o.Status, o.TotalPrice, o.CreateDate, o.Version).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := insertLines(ctx, tx, o.ID, o.Lines); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID int64) (Order, error) {
	var o Order
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, NotFoundError{OrderID: orderID}
		}
		return Order{}, fmt.Errorf("select order: %w", err)
	}

	if err := s.loadLines(ctx, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (s *PostgresStore) FindByCustomerPhone(ctx context.Context, phone string) ([]Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_phone=$1 ORDER BY id`, phone)
}

func (s *PostgresStore) FindByDeliveryAddress(ctx context.Context, address string) ([]Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE delivery_address=$1 ORDER BY id`, address)
}

func (s *PostgresStore) FindByProductID(ctx context.Context, productID int64) ([]Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE id IN (SELECT order_id FROM order_lines WHERE product_id=$1)
		ORDER BY id
	`, productID)
}

func (s *PostgresStore) FindRecent(ctx context.Context, limit int) ([]Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY create_date DESC LIMIT $1`, limit)
}

// Update persists info fields, total and the full line set, guarded by the
// version the caller loaded. Lines are replaced wholesale inside the tx.
func (s *PostgresStore) Update(ctx context.Context, o *Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET customer_phone=$2, delivery_address=$3, status=$4, total_price=$5, version=version+1
		WHERE id=$1 AND version=$6
	`, o.ID, o.CustomerPhone, o.DeliveryAddress, o.Status, o.TotalPrice, o.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return NotFoundError{OrderID: o.ID}
		}
		return ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id=$1`, o.ID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if err := insertLines(ctx, tx, o.ID, o.Lines); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	o.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orderID int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id=$1`, orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{OrderID: orderID}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range orders {
		if err := s.loadLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *PostgresStore) loadLines(ctx context.Context, o *Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, amount, price_at_order, product_name, line_total, reservation_id
		FROM order_lines WHERE order_id=$1 ORDER BY product_id
	`, o.ID)
	if err != nil {
		return fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Amount, &l.PriceAtOrder, &l.ProductName, &l.LineTotal, &l.ReservationID); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.CustomerPhone, &o.DeliveryAddress, &o.Status,
		&o.TotalPrice, &o.CreateDate, &o.Version)
}

func insertLines(ctx context.Context, tx pgx.Tx, orderID int64, lines []Line) error {
	for _, l := range lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, product_id, amount, price_at_order, product_name, line_total, reservation_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, l.ProductID, l.Amount, l.PriceAtOrder, l.ProductName, l.LineTotal, l.ReservationID)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}
