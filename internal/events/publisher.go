package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Stepanin42/market-task/internal/order"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, queues ...string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare queues so publish never fails due to missing infra
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare %s: %w", q, err)
		}
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	ev := OrderCreated{
		EventType:  "OrderCreated",
		EventID:    uuid.NewString(),
		OrderID:    o.ID,
		TotalPrice: o.TotalPrice,
		Timestamp:  time.Now().UTC(),
	}
	for _, l := range o.Lines {
		ev.Lines = append(ev.Lines, OrderLine{
			ProductID: l.ProductID,
			Amount:    l.Amount,
			Price:     l.PriceAtOrder,
		})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderCreated: %w", err)
	}
	return p.publishJSON(ctx, OrderCreatedQueue, body)
}

func (p *Publisher) PublishOrderDeleted(ctx context.Context, orderID int64) error {
	ev := OrderDeleted{
		EventType: "OrderDeleted",
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderDeleted: %w", err)
	}
	return p.publishJSON(ctx, OrderDeletedQueue, body)
}

func (p *Publisher) PublishStockDepleted(ctx context.Context, productID int64, requested int) error {
	ev := StockDepleted{
		EventType: "StockDepleted",
		EventID:   uuid.NewString(),
		ProductID: productID,
		Requested: requested,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal StockDepleted: %w", err)
	}
	return p.publishJSON(ctx, StockDepletedQueue, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",         // default exchange
		routingKey, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// MustDial connects to RabbitMQ or exits; used by service mains.
func MustDial(uri string) *amqp.Connection {
	conn, err := amqp.Dial(uri)
	if err != nil {
		log.Fatalf("connect to RabbitMQ: %v", err)
	}
	return conn
}
