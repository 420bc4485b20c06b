package order

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by the store when an update carries a stale
// aggregate version.
var ErrVersionConflict = errors.New("order version conflict")

type NotFoundError struct {
	OrderID int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

type LineNotFoundError struct {
	OrderID   int64
	ProductID int64
}

func (e LineNotFoundError) Error() string {
	return fmt.Sprintf("order %d has no line for product %d", e.OrderID, e.ProductID)
}

type LineExistsError struct {
	OrderID   int64
	ProductID int64
}

func (e LineExistsError) Error() string {
	return fmt.Sprintf("order %d already contains product %d", e.OrderID, e.ProductID)
}
