package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a stock-keeping unit held by the storage service. Amount is the
// quantity still available for reservation, never negative.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Amount      int             `json:"amount"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Reservation is a committed stock decrement owned by one order line. The
// token is minted by the caller so that retrying the initial reserve cannot
// decrement stock twice.
type Reservation struct {
	ID        uuid.UUID `json:"reservationId"`
	ProductID int64     `json:"productId"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
