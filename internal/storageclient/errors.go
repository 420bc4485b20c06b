package storageclient

import (
	"fmt"

	"github.com/google/uuid"
)

// ProductNotFoundError mirrors a 404 from the storage service.
type ProductNotFoundError struct {
	ProductID int64
}

func (e ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found in storage", e.ProductID)
}

// InsufficientStockError carries the storage side's availability snapshot.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// ReservationNotFoundError means the token is unknown to the storage side,
// usually because the reservation was already fully released.
type ReservationNotFoundError struct {
	ProductID     int64
	ReservationID uuid.UUID
}

func (e ReservationNotFoundError) Error() string {
	return fmt.Sprintf("reservation %s for product %d not found in storage",
		e.ReservationID, e.ProductID)
}

// InvalidAmountError mirrors the storage side's amount validation.
type InvalidAmountError struct {
	Amount int
}

func (e InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: must be at least 1", e.Amount)
}

// APIError covers every remote failure that has no business meaning:
// unexpected statuses, transport errors and timeouts. A timeout means the
// call may or may not have committed; it is never treated as success.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("storage api: %s", e.Message)
	}
	return fmt.Sprintf("storage api: status %d: %s", e.Status, e.Message)
}
