package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*entity.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[uuid.UUID]*entity.Order)}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return apperror.New(apperror.ErrCodeConflict, "заказ уже существует")
	}
	order.Version = 1
	r.orders[order.ID] = cloneOrder(order)
	onRollback(ctx, func() { r.restore(order.ID, nil) })
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, apperror.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) CompareAndSwap(ctx context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.orders[order.ID]
	if !ok {
		return apperror.ErrOrderNotFound
	}
	if prev.Version != order.Version {
		return apperror.ErrVersionConflict
	}
	order.Version++
	r.orders[order.ID] = cloneOrder(order)
	onRollback(ctx, func() {
		order.Version--
		r.restore(order.ID, prev)
	})
	return nil
}

func (r *OrderRepository) restore(id uuid.UUID, prev *entity.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.orders, id)
		return
	}
	r.orders[id] = prev
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Order, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	var result []*entity.Order
	for _, o := range r.orders {
		switch role {
		case entity.RoleBuyer:
			if o.BuyerID != userID {
				continue
			}
		case entity.RoleSeller:
			if o.SellerID != userID {
				continue
			}
		default:
			if !o.IsParticipant(userID) {
				continue
			}
		}
		if filter.Status != "" && string(o.Status) != filter.Status {
			continue
		}
		result = append(result, cloneOrder(o))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter), nil
}

func (r *OrderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type due struct {
		id uuid.UUID
		at time.Time
	}
	var items []due
	for _, o := range r.orders {
		if o.DueAction(now) == entity.AutoActionNone {
			continue
		}
		items = append(items, due{id: o.ID, at: o.ActiveDeadline().At})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, it.id)
	}
	return ids, nil
}

func cloneOrder(o *entity.Order) *entity.Order {
	c := *o
	c.Messages = append([]entity.Message(nil), o.Messages...)
	if o.Deliverable != nil {
		d := *o.Deliverable
		d.FileRefs = append([]string(nil), o.Deliverable.FileRefs...)
		d.Links = append([]string(nil), o.Deliverable.Links...)
		c.Deliverable = &d
	}
	return &c
}

func paginate[T any](items []T, filter repository.ListFilter) []T {
	if filter.Offset >= len(items) {
		return []T{}
	}
	items = items[filter.Offset:]
	if len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items
}
