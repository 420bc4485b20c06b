package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRepository answers from canned state and records which methods ran.
type fakeRepository struct {
	products map[int64]Product
	calls    []string

	reserveRemaining int
	reserveErr       error
	releaseErr       error
}

func (f *fakeRepository) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeRepository) Get(ctx context.Context, productID int64) (Product, error) {
	f.record("Get")
	p, ok := f.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (f *fakeRepository) List(ctx context.Context) ([]Product, error) {
	f.record("List")
	var out []Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepository) Create(ctx context.Context, p Product) (Product, error) {
	f.record("Create")
	p.ID = int64(len(f.products) + 1)
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeRepository) Update(ctx context.Context, p Product) (Product, error) {
	f.record("Update")
	if _, ok := f.products[p.ID]; !ok {
		return Product{}, ErrProductNotFound
	}
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeRepository) Delete(ctx context.Context, productID int64) error {
	f.record("Delete")
	if _, ok := f.products[productID]; !ok {
		return ErrProductNotFound
	}
	delete(f.products, productID)
	return nil
}

func (f *fakeRepository) HasStock(ctx context.Context, productID int64, amount int) (bool, error) {
	f.record("HasStock")
	p, ok := f.products[productID]
	if !ok {
		return false, ErrProductNotFound
	}
	return p.Amount >= amount, nil
}

func (f *fakeRepository) Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) (int, error) {
	f.record("Reserve")
	return f.reserveRemaining, f.reserveErr
}

func (f *fakeRepository) Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	f.record("Release")
	return f.releaseErr
}

func (f *fakeRepository) ListReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	f.record("ListReservations")
	return nil, nil
}

type depletionRecorder struct {
	productIDs []int64
	err        error
}

func (d *depletionRecorder) PublishStockDepleted(ctx context.Context, productID int64, requested int) error {
	d.productIDs = append(d.productIDs, productID)
	return d.err
}

func newTestService(repo *fakeRepository) (*Service, *depletionRecorder) {
	if repo.products == nil {
		repo.products = make(map[int64]Product)
	}
	rec := &depletionRecorder{}
	return NewService(repo, rec, zap.NewNop()), rec
}

func TestServiceCreateProduct(t *testing.T) {
	svc, _ := newTestService(&fakeRepository{})

	t.Run("assigns id", func(t *testing.T) {
		created, err := svc.CreateProduct(context.Background(), Product{
			Name: "Widget", Amount: 3, Price: decimal.RequireFromString("2.00"),
		})
		require.NoError(t, err)
		require.NotZero(t, created.ID)
	})

	t.Run("negative amount is rejected", func(t *testing.T) {
		_, err := svc.CreateProduct(context.Background(), Product{Name: "Widget", Amount: -1})

		var invalid InvalidAmountError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, -1, invalid.Amount)
	})
}

func TestServiceUpdateProduct_NegativeAmount(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := newTestService(repo)

	_, err := svc.UpdateProduct(context.Background(), Product{ID: 1, Amount: -5})

	var invalid InvalidAmountError
	require.ErrorAs(t, err, &invalid)
	require.Empty(t, repo.calls, "validation must run before the repository")
}

func TestServiceCheckStock(t *testing.T) {
	repo := &fakeRepository{products: map[int64]Product{
		1: {ID: 1, Name: "Widget", Amount: 5},
	}}
	svc, _ := newTestService(repo)

	t.Run("boundary", func(t *testing.T) {
		ok, err := svc.CheckStock(context.Background(), 1, 5)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = svc.CheckStock(context.Background(), 1, 6)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("amount below one is invalid", func(t *testing.T) {
		repo.calls = nil
		_, err := svc.CheckStock(context.Background(), 1, 0)

		var invalid InvalidAmountError
		require.ErrorAs(t, err, &invalid)
		require.Empty(t, repo.calls)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := svc.CheckStock(context.Background(), 9, 1)
		require.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestServiceReserve(t *testing.T) {
	t.Run("publishes depletion at zero remaining", func(t *testing.T) {
		repo := &fakeRepository{reserveRemaining: 0}
		svc, rec := newTestService(repo)

		require.NoError(t, svc.Reserve(context.Background(), 1, uuid.New(), 4))
		require.Equal(t, []int64{1}, rec.productIDs)
	})

	t.Run("no depletion while stock remains", func(t *testing.T) {
		repo := &fakeRepository{reserveRemaining: 2}
		svc, rec := newTestService(repo)

		require.NoError(t, svc.Reserve(context.Background(), 1, uuid.New(), 4))
		require.Empty(t, rec.productIDs)
	})

	t.Run("publish failure does not fail the reserve", func(t *testing.T) {
		repo := &fakeRepository{reserveRemaining: 0}
		svc, rec := newTestService(repo)
		rec.err = errors.New("broker down")

		require.NoError(t, svc.Reserve(context.Background(), 1, uuid.New(), 4))
	})

	t.Run("repository error is wrapped", func(t *testing.T) {
		repo := &fakeRepository{reserveErr: InsufficientStockError{ProductID: 1, Available: 1, Requested: 4}}
		svc, rec := newTestService(repo)

		err := svc.Reserve(context.Background(), 1, uuid.New(), 4)

		var insufficient InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		require.Empty(t, rec.productIDs)
	})
}

func TestServiceListReservations_UnknownProduct(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := newTestService(repo)

	_, err := svc.ListReservations(context.Background(), 9)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.NotContains(t, repo.calls, "ListReservations")
}

func TestServiceRelease_Error(t *testing.T) {
	repo := &fakeRepository{releaseErr: ErrReservationNotFound}
	svc, _ := newTestService(repo)

	err := svc.Release(context.Background(), 1, uuid.New(), 2)
	require.ErrorIs(t, err, ErrReservationNotFound)
}
