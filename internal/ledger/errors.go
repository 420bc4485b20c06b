package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

// InvalidAmountError rejects reserve requests for less than one unit.
type InvalidAmountError struct {
	Amount int
}

func (e InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: must be at least 1", e.Amount)
}

// InsufficientStockError reports how much was available when a reservation
// could not be satisfied.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// ReservationExceededError rejects a release larger than what the reservation
// still holds, so a compensation can never credit stock that was not taken.
type ReservationExceededError struct {
	ReservationID uuid.UUID
	Remaining     int
	Requested     int
}

func (e ReservationExceededError) Error() string {
	return fmt.Sprintf("reservation %s holds %d, cannot release %d",
		e.ReservationID, e.Remaining, e.Requested)
}
