package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Stepanin42/market-task/internal/order"
	"github.com/Stepanin42/market-task/internal/testutil"
)

func TestOrderStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := testutil.StartOrderPostgres(ctx, t)
	t.Cleanup(cleanup)

	store := order.NewPostgresStore(pool)

	token := uuid.New()
	o := order.Order{
		CustomerPhone:   "+4512345678",
		DeliveryAddress: "Main Street 1",
		Status:          order.StatusCreated,
		CreateDate:      time.Now().UTC().Truncate(time.Millisecond),
		Lines: []order.Line{
			order.NewLine(1, 2, decimal.RequireFromString("10.00"), "Widget", token),
			order.NewLine(2, 1, decimal.RequireFromString("5.50"), "Gadget", uuid.New()),
		},
	}
	o.TotalPrice = o.SumLines()

	require.NoError(t, store.Create(ctx, &o))
	require.NotZero(t, o.ID)
	require.Equal(t, 1, o.Version)

	fetched, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.CustomerPhone, fetched.CustomerPhone)
	require.Equal(t, o.Status, fetched.Status)
	require.True(t, fetched.TotalPrice.Equal(decimal.RequireFromString("25.50")))
	require.WithinDuration(t, o.CreateDate, fetched.CreateDate, time.Millisecond)
	require.Len(t, fetched.Lines, 2)
	require.Equal(t, token, fetched.Lines[0].ReservationID)
	require.True(t, fetched.TotalPrice.Equal(fetched.SumLines()))
}

func TestOrderStore_UpdateGuardsVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := testutil.StartOrderPostgres(ctx, t)
	t.Cleanup(cleanup)

	store := order.NewPostgresStore(pool)

	o := order.Order{
		CustomerPhone:   "+4511111111",
		DeliveryAddress: "A Street",
		Status:          order.StatusCreated,
		CreateDate:      time.Now().UTC(),
		Lines: []order.Line{
			order.NewLine(1, 1, decimal.RequireFromString("3.00"), "Widget", uuid.New()),
		},
	}
	o.TotalPrice = o.SumLines()
	require.NoError(t, store.Create(ctx, &o))

	first, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, o.ID)
	require.NoError(t, err)

	first.Status = order.StatusProcessing
	require.NoError(t, store.Update(ctx, &first))
	require.Equal(t, 2, first.Version)

	// The second loader still carries version 1 and must lose.
	second.Status = order.StatusShipped
	require.ErrorIs(t, store.Update(ctx, &second), order.ErrVersionConflict)

	current, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, current.Status)
}

func TestOrderStore_SearchAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := testutil.StartOrderPostgres(ctx, t)
	t.Cleanup(cleanup)

	store := order.NewPostgresStore(pool)

	mk := func(phone, address string, productID int64) order.Order {
		o := order.Order{
			CustomerPhone:   phone,
			DeliveryAddress: address,
			Status:          order.StatusCreated,
			CreateDate:      time.Now().UTC(),
			Lines: []order.Line{
				order.NewLine(productID, 1, decimal.RequireFromString("1.00"), "P", uuid.New()),
			},
		}
		o.TotalPrice = o.SumLines()
		require.NoError(t, store.Create(ctx, &o))
		return o
	}

	a := mk("+45111", "A Street", 1)
	b := mk("+45222", "B Street", 2)

	byPhone, err := store.FindByCustomerPhone(ctx, "+45111")
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	require.Equal(t, a.ID, byPhone[0].ID)

	byProduct, err := store.FindByProductID(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	require.Equal(t, b.ID, byProduct[0].ID)

	recent, err := store.FindRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	require.NoError(t, store.Delete(ctx, a.ID))
	_, err = store.Get(ctx, a.ID)

	var notFound order.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Delete removed the lines with the order.
	byProduct, err = store.FindByProductID(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, byProduct)
}
