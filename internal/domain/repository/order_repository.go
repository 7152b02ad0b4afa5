package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
)

// OrderRepository хранит заказы. CompareAndSwap сохраняет заказ, только если версия
// в хранилище совпадает с order.Version, и увеличивает её; иначе ErrVersionConflict.
type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	CompareAndSwap(ctx context.Context, order *entity.Order) error
	ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter ListFilter) ([]*entity.Order, error)
	// ListDue возвращает заказы, у которых активный дедлайн уже прошёл.
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
