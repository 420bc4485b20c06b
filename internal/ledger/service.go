package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DepletionPublisher is notified when a reservation drains a product to zero.
type DepletionPublisher interface {
	PublishStockDepleted(ctx context.Context, productID int64, requested int) error
}

// Service wraps the repository with validation, logging and depletion events.
type Service struct {
	repo   Repository
	events DepletionPublisher
	logger *zap.Logger
}

func NewService(repo Repository, events DepletionPublisher, logger *zap.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.repo.Get(ctx, productID)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Amount < 0 {
		return Product{}, InvalidAmountError{Amount: p.Amount}
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created",
		zap.Int64("productId", created.ID),
		zap.String("name", created.Name))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Amount < 0 {
		return Product{}, InvalidAmountError{Amount: p.Amount}
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product updated", zap.Int64("productId", p.ID))
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	if err := s.repo.Delete(ctx, productID); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.Int64("productId", productID))
	return nil
}

// ListReservations reports the open reservations held against a product.
func (s *Service) ListReservations(ctx context.Context, productID int64) ([]Reservation, error) {
	if _, err := s.repo.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListReservations(ctx, productID)
}

func (s *Service) CheckStock(ctx context.Context, productID int64, amount int) (bool, error) {
	if amount < 1 {
		return false, InvalidAmountError{Amount: amount}
	}
	return s.repo.HasStock(ctx, productID, amount)
}

func (s *Service) Reserve(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	remaining, err := s.repo.Reserve(ctx, productID, token, amount)
	if err != nil {
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}

	s.logger.Info("stock reserved",
		zap.Int64("productId", productID),
		zap.String("reservation", token.String()),
		zap.Int("amount", amount),
		zap.Int("remaining", remaining))

	if remaining == 0 && s.events != nil {
		if err := s.events.PublishStockDepleted(ctx, productID, amount); err != nil {
			s.logger.Warn("publish stock depleted failed",
				zap.Int64("productId", productID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Release(ctx context.Context, productID int64, token uuid.UUID, amount int) error {
	if err := s.repo.Release(ctx, productID, token, amount); err != nil {
		return fmt.Errorf("release product %d: %w", productID, err)
	}

	s.logger.Info("stock released",
		zap.Int64("productId", productID),
		zap.String("reservation", token.String()),
		zap.Int("amount", amount))
	return nil
}
