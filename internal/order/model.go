package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order owns its lines exclusively: a line never exists outside an order, and
// deleting the order releases and deletes every line with it.
type Order struct {
	ID              int64           `json:"id"`
	CustomerPhone   string          `json:"customerPhone"`
	DeliveryAddress string          `json:"deliveryAddress"`
	CreateDate      time.Time       `json:"createDate"`
	Status          Status          `json:"status"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Lines           []Line          `json:"orderProducts"`

	// Version guards concurrent writers of the same order; the store rejects
	// updates carrying a stale version.
	Version int `json:"-"`
}

// Line is one product position within an order. PriceAtOrder and ProductName
// are snapshots taken at reservation time and never refreshed.
type Line struct {
	ProductID     int64           `json:"productId"`
	Amount        int             `json:"amount"`
	PriceAtOrder  decimal.Decimal `json:"priceAtOrder"`
	ProductName   string          `json:"productName"`
	LineTotal     decimal.Decimal `json:"totalPrice"`
	ReservationID uuid.UUID       `json:"-"`
}

// NewLine snapshots price and name and derives the line total.
func NewLine(productID int64, amount int, price decimal.Decimal, name string, reservation uuid.UUID) Line {
	return Line{
		ProductID:     productID,
		Amount:        amount,
		PriceAtOrder:  price,
		ProductName:   name,
		LineTotal:     price.Mul(decimal.NewFromInt(int64(amount))),
		ReservationID: reservation,
	}
}

// FindLine returns the index of the line holding productID, or -1.
func (o *Order) FindLine(productID int64) int {
	for i, l := range o.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// RemoveLine drops the line at index i, keeping line order stable.
func (o *Order) RemoveLine(i int) {
	o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
}

// SumLines recomputes the total from scratch. The coordinator maintains
// TotalPrice incrementally; this is the authoritative check.
func (o *Order) SumLines() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.LineTotal)
	}
	return total
}
