package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Stepanin42/market-task/internal/order"
	"github.com/Stepanin42/market-task/internal/storageclient"
)

// EventPublisher emits order lifecycle events. Publish failures never fail
// the mutation that triggered them.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
	PublishOrderDeleted(ctx context.Context, orderID int64) error
}

// RequestedLine is one product position in a create or update request.
type RequestedLine struct {
	ProductID int64
	Amount    int
}

// Info carries the mutable non-line fields of an order.
type Info struct {
	CustomerPhone   string
	DeliveryAddress string
	Status          order.Status
}

// Coordinator implements every order mutation as a sequence of storage
// reservation calls plus aggregate updates. There is no shared transaction
// with the storage service: any reservation committed before a failure is
// compensated with a release before the error surfaces.
type Coordinator struct {
	store   order.Store
	storage storageclient.Client
	events  EventPublisher
	logger  *zap.Logger
}

func New(store order.Store, storage storageclient.Client, events EventPublisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, storage: storage, events: events, logger: logger}
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID int64) (order.Order, error) {
	return c.store.Get(ctx, orderID)
}

func (c *Coordinator) ListOrders(ctx context.Context) ([]order.Order, error) {
	return c.store.List(ctx)
}

func (c *Coordinator) FindByCustomerPhone(ctx context.Context, phone string) ([]order.Order, error) {
	return c.store.FindByCustomerPhone(ctx, phone)
}

func (c *Coordinator) FindByDeliveryAddress(ctx context.Context, address string) ([]order.Order, error) {
	return c.store.FindByDeliveryAddress(ctx, address)
}

func (c *Coordinator) FindByProductID(ctx context.Context, productID int64) ([]order.Order, error) {
	return c.store.FindByProductID(ctx, productID)
}

func (c *Coordinator) FindRecent(ctx context.Context, limit int) ([]order.Order, error) {
	if limit < 1 {
		limit = 10
	}
	return c.store.FindRecent(ctx, limit)
}

// CreateOrder reserves every requested line and persists the aggregate.
// All-or-nothing: if any line fails after earlier lines were reserved, the
// earlier reservations are released before the error surfaces.
func (c *Coordinator) CreateOrder(ctx context.Context, info Info, requested []RequestedLine) (order.Order, error) {
	if err := validateRequest(0, requested); err != nil {
		return order.Order{}, err
	}

	lines, err := c.reserveAll(ctx, requested)
	if err != nil {
		return order.Order{}, err
	}

	o := order.Order{
		CustomerPhone:   info.CustomerPhone,
		DeliveryAddress: info.DeliveryAddress,
		Status:          order.StatusCreated,
		CreateDate:      time.Now(),
		Lines:           lines,
	}
	o.TotalPrice = o.SumLines()

	if err := c.store.Create(ctx, &o); err != nil {
		c.compensate(ctx, undoForLines(lines))
		return order.Order{}, fmt.Errorf("persist order: %w", err)
	}

	c.logger.Info("order created",
		zap.Int64("orderId", o.ID),
		zap.Int("lines", len(o.Lines)),
		zap.String("totalPrice", o.TotalPrice.String()))

	if c.events != nil {
		if err := c.events.PublishOrderCreated(ctx, &o); err != nil {
			c.logger.Warn("publish order created failed", zap.Int64("orderId", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

// UpdateOrder rewrites the order's info and line set. Reservations are
// adjusted as a delta against the current state: removed lines are released,
// shared lines change by the difference only, new lines reserve fresh.
// A failure mid-way restores the pre-update reservation state.
func (c *Coordinator) UpdateOrder(ctx context.Context, orderID int64, info Info, requested []RequestedLine) (order.Order, error) {
	if err := validateRequest(orderID, requested); err != nil {
		return order.Order{}, err
	}

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	oldByID := make(map[int64]order.Line, len(o.Lines))
	for _, l := range o.Lines {
		oldByID[l.ProductID] = l
	}
	newByID := make(map[int64]RequestedLine, len(requested))
	for _, r := range requested {
		newByID[r.ProductID] = r
	}

	var undo []reservationChange

	// Lines dropped from the request give their stock back first, so an
	// update that swaps products frees quantity before taking new.
	for _, old := range o.Lines {
		if _, keep := newByID[old.ProductID]; keep {
			continue
		}
		if err := c.storage.Release(ctx, old.ProductID, old.ReservationID, old.Amount); err != nil {
			c.compensate(ctx, undo)
			return order.Order{}, fmt.Errorf("release dropped line %d: %w", old.ProductID, err)
		}
		undo = append(undo, reservationChange{
			productID: old.ProductID, token: old.ReservationID, amount: old.Amount, reserve: true,
		})
	}

	newLines := make([]order.Line, 0, len(requested))
	for _, r := range requested {
		old, shared := oldByID[r.ProductID]
		if !shared {
			line, err := c.reserveNewLine(ctx, r)
			if err != nil {
				c.compensate(ctx, undo)
				return order.Order{}, err
			}
			undo = append(undo, reservationChange{
				productID: line.ProductID, token: line.ReservationID, amount: line.Amount,
			})
			newLines = append(newLines, line)
			continue
		}

		// Shared line: adjust the existing reservation by the delta and keep
		// the original price/name snapshot.
		delta := r.Amount - old.Amount
		switch {
		case delta > 0:
			if err := c.reserveDelta(ctx, old.ProductID, old.ReservationID, delta); err != nil {
				c.compensate(ctx, undo)
				return order.Order{}, err
			}
			undo = append(undo, reservationChange{
				productID: old.ProductID, token: old.ReservationID, amount: delta,
			})
		case delta < 0:
			if err := c.storage.Release(ctx, old.ProductID, old.ReservationID, -delta); err != nil {
				c.compensate(ctx, undo)
				return order.Order{}, fmt.Errorf("release line %d delta: %w", old.ProductID, err)
			}
			undo = append(undo, reservationChange{
				productID: old.ProductID, token: old.ReservationID, amount: -delta, reserve: true,
			})
		}

		adjusted := old
		adjusted.Amount = r.Amount
		adjusted.LineTotal = old.PriceAtOrder.Mul(decimalFromInt(r.Amount))
		newLines = append(newLines, adjusted)
	}

	o.CustomerPhone = info.CustomerPhone
	o.DeliveryAddress = info.DeliveryAddress
	o.Status = info.Status
	o.Lines = newLines
	o.TotalPrice = o.SumLines()

	if err := c.store.Update(ctx, &o); err != nil {
		c.compensate(ctx, undo)
		return order.Order{}, fmt.Errorf("persist order update: %w", err)
	}

	c.logger.Info("order updated",
		zap.Int64("orderId", o.ID),
		zap.Int("lines", len(o.Lines)),
		zap.String("totalPrice", o.TotalPrice.String()))
	return o, nil
}

// UpdateOrderInfo mutates phone, address and status only. It never touches
// reservations: in particular, setting CANCELLED does not release stock.
func (c *Coordinator) UpdateOrderInfo(ctx context.Context, orderID int64, info Info) (order.Order, error) {
	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	o.CustomerPhone = info.CustomerPhone
	o.DeliveryAddress = info.DeliveryAddress
	o.Status = info.Status

	if err := c.store.Update(ctx, &o); err != nil {
		return order.Order{}, fmt.Errorf("persist order info: %w", err)
	}

	c.logger.Info("order info updated",
		zap.Int64("orderId", o.ID),
		zap.String("status", string(o.Status)))
	return o, nil
}

// DeleteOrder releases every line, then removes the order. If a release
// fails the order is kept so the remaining reservations stay reachable;
// already-released lines answer a retried delete as no-ops via their tokens.
func (c *Coordinator) DeleteOrder(ctx context.Context, orderID int64) error {
	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return err
	}

	for _, l := range o.Lines {
		err := c.storage.Release(ctx, l.ProductID, l.ReservationID, l.Amount)
		if err != nil {
			var gone storageclient.ReservationNotFoundError
			if errors.As(err, &gone) {
				// Released by an earlier delete attempt.
				continue
			}
			c.logger.Error("release failed, order kept for retry",
				zap.Int64("orderId", orderID),
				zap.Int64("productId", l.ProductID),
				zap.Error(err))
			return fmt.Errorf("release line %d: %w", l.ProductID, err)
		}
	}

	if err := c.store.Delete(ctx, orderID); err != nil {
		return err
	}

	c.logger.Info("order deleted", zap.Int64("orderId", orderID))

	if c.events != nil {
		if err := c.events.PublishOrderDeleted(ctx, orderID); err != nil {
			c.logger.Warn("publish order deleted failed", zap.Int64("orderId", orderID), zap.Error(err))
		}
	}
	return nil
}

// AddProduct appends a new line to an existing order.
func (c *Coordinator) AddProduct(ctx context.Context, orderID, productID int64, amount int) (order.Order, error) {
	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	// Duplicate check comes first: no reservation call is made for a
	// product already present.
	if o.FindLine(productID) >= 0 {
		return order.Order{}, order.LineExistsError{OrderID: orderID, ProductID: productID}
	}
	if amount < 1 {
		return order.Order{}, storageclient.InvalidAmountError{Amount: amount}
	}

	line, err := c.reserveNewLine(ctx, RequestedLine{ProductID: productID, Amount: amount})
	if err != nil {
		return order.Order{}, err
	}

	o.Lines = append(o.Lines, line)
	o.TotalPrice = o.TotalPrice.Add(line.LineTotal)

	if err := c.store.Update(ctx, &o); err != nil {
		c.compensate(ctx, undoForLines([]order.Line{line}))
		return order.Order{}, fmt.Errorf("persist added line: %w", err)
	}

	c.logger.Info("product added to order",
		zap.Int64("orderId", orderID),
		zap.Int64("productId", productID),
		zap.Int("amount", amount))
	return o, nil
}

// RemoveProduct releases a line's full reserved amount and drops the line.
func (c *Coordinator) RemoveProduct(ctx context.Context, orderID, productID int64) (order.Order, error) {
	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	idx := o.FindLine(productID)
	if idx < 0 {
		return order.Order{}, order.LineNotFoundError{OrderID: orderID, ProductID: productID}
	}
	line := o.Lines[idx]

	if err := c.storage.Release(ctx, line.ProductID, line.ReservationID, line.Amount); err != nil {
		return order.Order{}, fmt.Errorf("release line %d: %w", productID, err)
	}

	o.TotalPrice = o.TotalPrice.Sub(line.LineTotal)
	o.RemoveLine(idx)

	if err := c.store.Update(ctx, &o); err != nil {
		c.compensate(ctx, []reservationChange{
			{productID: line.ProductID, token: line.ReservationID, amount: line.Amount, reserve: true},
		})
		return order.Order{}, fmt.Errorf("persist removed line: %w", err)
	}

	c.logger.Info("product removed from order",
		zap.Int64("orderId", orderID),
		zap.Int64("productId", productID))
	return o, nil
}

// ChangeAmount moves a line to newAmount, reserving or releasing only the
// difference. The price snapshot is never refreshed. newAmount of zero
// removes the line entirely; the same amount is a no-op with zero calls.
func (c *Coordinator) ChangeAmount(ctx context.Context, orderID, productID int64, newAmount int) (order.Order, error) {
	if newAmount < 0 {
		return order.Order{}, storageclient.InvalidAmountError{Amount: newAmount}
	}
	if newAmount == 0 {
		return c.RemoveProduct(ctx, orderID, productID)
	}

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	idx := o.FindLine(productID)
	if idx < 0 {
		return order.Order{}, order.LineNotFoundError{OrderID: orderID, ProductID: productID}
	}
	line := o.Lines[idx]

	delta := newAmount - line.Amount
	if delta == 0 {
		return o, nil
	}

	if delta > 0 {
		if err := c.reserveDelta(ctx, productID, line.ReservationID, delta); err != nil {
			return order.Order{}, err
		}
	} else {
		if err := c.storage.Release(ctx, productID, line.ReservationID, -delta); err != nil {
			return order.Order{}, fmt.Errorf("release line %d delta: %w", productID, err)
		}
	}

	oldTotal := line.LineTotal
	line.Amount = newAmount
	line.LineTotal = line.PriceAtOrder.Mul(decimalFromInt(newAmount))
	o.Lines[idx] = line
	o.TotalPrice = o.TotalPrice.Sub(oldTotal).Add(line.LineTotal)

	if err := c.store.Update(ctx, &o); err != nil {
		c.compensate(ctx, []reservationChange{{
			productID: productID,
			token:     line.ReservationID,
			amount:    abs(delta),
			reserve:   delta < 0,
		}})
		return order.Order{}, fmt.Errorf("persist amount change: %w", err)
	}

	c.logger.Info("line amount changed",
		zap.Int64("orderId", orderID),
		zap.Int64("productId", productID),
		zap.Int("amount", newAmount),
		zap.Int("delta", delta))
	return o, nil
}

// reserveAll runs the fetch-check-reserve loop for a whole request. On
// failure every line reserved so far is released before the error returns.
func (c *Coordinator) reserveAll(ctx context.Context, requested []RequestedLine) ([]order.Line, error) {
	var lines []order.Line
	for _, r := range requested {
		line, err := c.reserveNewLine(ctx, r)
		if err != nil {
			c.compensate(ctx, undoForLines(lines))
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// reserveNewLine fetches the product, checks stock, reserves under a fresh
// token and snapshots price and name into the line.
func (c *Coordinator) reserveNewLine(ctx context.Context, r RequestedLine) (order.Line, error) {
	product, err := c.storage.GetProduct(ctx, r.ProductID)
	if err != nil {
		return order.Line{}, fmt.Errorf("fetch product %d: %w", r.ProductID, err)
	}

	ok, err := c.storage.HasStock(ctx, r.ProductID, r.Amount)
	if err != nil {
		return order.Line{}, fmt.Errorf("check stock %d: %w", r.ProductID, err)
	}
	if !ok {
		return order.Line{}, storageclient.InsufficientStockError{
			ProductID: r.ProductID,
			Available: product.Amount,
			Requested: r.Amount,
		}
	}

	token := uuid.New()
	if err := c.storage.Reserve(ctx, r.ProductID, token, r.Amount); err != nil {
		return order.Line{}, fmt.Errorf("reserve product %d: %w", r.ProductID, err)
	}

	return order.NewLine(r.ProductID, r.Amount, product.Price, product.Name, token), nil
}

// reserveDelta grows an existing reservation by delta units.
func (c *Coordinator) reserveDelta(ctx context.Context, productID int64, token uuid.UUID, delta int) error {
	ok, err := c.storage.HasStock(ctx, productID, delta)
	if err != nil {
		return fmt.Errorf("check stock %d: %w", productID, err)
	}
	if !ok {
		available := -1
		if product, err := c.storage.GetProduct(ctx, productID); err == nil {
			available = product.Amount
		}
		return storageclient.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: delta,
		}
	}

	if err := c.storage.Reserve(ctx, productID, token, delta); err != nil {
		return fmt.Errorf("reserve product %d delta: %w", productID, err)
	}
	return nil
}

// reservationChange records one committed reservation adjustment so it can
// be undone if a later step fails.
type reservationChange struct {
	productID int64
	token     uuid.UUID
	amount    int
	// reserve is true when the undo is a re-reserve (the change was a
	// release); false when the undo is a release (the change was a reserve).
	reserve bool
}

// compensate undoes committed changes in reverse order. Compensation is
// best-effort: failures are logged as manual-intervention debt, not retried.
func (c *Coordinator) compensate(ctx context.Context, changes []reservationChange) {
	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]

		var err error
		if ch.reserve {
			err = c.storage.Reserve(ctx, ch.productID, ch.token, ch.amount)
		} else {
			err = c.storage.Release(ctx, ch.productID, ch.token, ch.amount)
		}
		if err != nil {
			c.logger.Error("compensation failed",
				zap.Int64("productId", ch.productID),
				zap.String("reservation", ch.token.String()),
				zap.Int("amount", ch.amount),
				zap.Bool("reReserve", ch.reserve),
				zap.Error(err))
		}
	}
}

func undoForLines(lines []order.Line) []reservationChange {
	changes := make([]reservationChange, 0, len(lines))
	for _, l := range lines {
		changes = append(changes, reservationChange{
			productID: l.ProductID, token: l.ReservationID, amount: l.Amount,
		})
	}
	return changes
}

func validateRequest(orderID int64, requested []RequestedLine) error {
	seen := make(map[int64]struct{}, len(requested))
	for _, r := range requested {
		if r.Amount < 1 {
			return storageclient.InvalidAmountError{Amount: r.Amount}
		}
		if _, dup := seen[r.ProductID]; dup {
			return order.LineExistsError{OrderID: orderID, ProductID: r.ProductID}
		}
		seen[r.ProductID] = struct{}{}
	}
	return nil
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
