package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderCreatedQueue  = "order.created"
	OrderDeletedQueue  = "order.deleted"
	StockDepletedQueue = "stock.depleted"
)

type OrderLine struct {
	ProductID int64           `json:"productId"`
	Amount    int             `json:"amount"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	EventType  string          `json:"eventType"`
	EventID    string          `json:"eventId"`
	OrderID    int64           `json:"orderId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Lines      []OrderLine     `json:"lines"`
	Timestamp  time.Time       `json:"timestamp"`
}

type OrderDeleted struct {
	EventType string    `json:"eventType"`
	EventID   string    `json:"eventId"`
	OrderID   int64     `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

type StockDepleted struct {
	EventType string    `json:"eventType"`
	EventID   string    `json:"eventId"`
	ProductID int64     `json:"productId"`
	Requested int       `json:"requested"`
	Timestamp time.Time `json:"timestamp"`
}
