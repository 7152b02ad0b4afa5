package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// Viewer: пользователь, запрашивающий данные. Администратор видит любые заказы.
type Viewer struct {
	ID    uuid.UUID
	Admin bool
}

// Get возвращает заказ участнику сделки или администратору.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && !order.IsParticipant(viewer.ID) {
		return nil, apperror.ErrForbidden
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя; пустая роль означает обе стороны.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Order, error) {
	switch role {
	case entity.RoleBuyer, entity.RoleSeller, entity.RoleNone:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "роль должна быть buyer или seller")
	}
	return s.orders.ListByUser(ctx, userID, role, filter)
}

// TimeRemaining: оставшееся до дедлайна время. Истёкший дедлайн означает
// «ожидает автоматического действия», пока его не применит планировщик.
func (s *Service) TimeRemaining(deadline time.Time) valueobject.TimeRemaining {
	return valueobject.RemainingUntil(deadline, s.now())
}

type DeadlineView struct {
	Kind      entity.DeadlineKind       `json:"kind"`
	At        time.Time                 `json:"at"`
	Active    bool                      `json:"active"`
	Remaining valueobject.TimeRemaining `json:"remaining"`
}

// Deadlines возвращает все установленные дедлайны заказа; активный: тот, по которому сработает планировщик.
func (s *Service) Deadlines(ctx context.Context, orderID uuid.UUID, viewer Viewer) ([]DeadlineView, error) {
	order, err := s.Get(ctx, orderID, viewer)
	if err != nil {
		return nil, err
	}

	active := order.ActiveDeadline()
	now := s.now()
	var views []DeadlineView
	add := func(kind entity.DeadlineKind, at *time.Time) {
		if at == nil {
			return
		}
		views = append(views, DeadlineView{
			Kind:      kind,
			At:        *at,
			Active:    active != nil && active.Kind == kind,
			Remaining: valueobject.RemainingUntil(*at, now),
		})
	}
	add(entity.DeadlineAcceptance, order.AcceptanceDeadline)
	add(entity.DeadlineDelivery, order.ExpiresAt)
	add(entity.DeadlineReview, order.ReviewDeadline)
	return views, nil
}

func (s *Service) Audit(ctx context.Context, orderID uuid.UUID, viewer Viewer) ([]*entity.AuditEntry, error) {
	if _, err := s.Get(ctx, orderID, viewer); err != nil {
		return nil, err
	}
	return s.audit.ListBySubject(ctx, valueobject.SubjectKindOrder, orderID)
}
