package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
)

// Ledger: резервирование и расчёт по сделке.
type Ledger interface {
	Reserve(ctx context.Context, kind valueobject.SubjectKind, subjectID, payerID uuid.UUID, amount valueobject.Money) (*entity.Reservation, error)
	Settle(ctx context.Context, subjectID uuid.UUID, parts []entity.SettlementPart, reason string) (*entity.Reservation, error)
}

// Policy: настройки платформы для заказов.
type Policy struct {
	entity.OrderPolicy
	Split              valueobject.SplitPolicy
	AutomaticRefunds   bool
	AutoReleasePayment bool

	// DefaultDeliveryDays подставляется, если покупатель не указал срок.
	DefaultDeliveryDays int
}

type Deps struct {
	Orders   repository.OrderRepository
	Disputes repository.DisputeRepository
	Audit    repository.AuditRepository
	Ledger   Ledger
	Tx       repository.Transactor
	Locks    *keylock.KeyLock
	Events   event.Publisher
	Now      func() time.Time
}

// Service: машина состояний заказа. Каждый переход выполняется под блокировкой
// заказа: чтение, проверка, расчёт в реестре и сохранение идут одной транзакцией,
// события публикуются после снятия блокировки.
type Service struct {
	orders   repository.OrderRepository
	disputes repository.DisputeRepository
	audit    repository.AuditRepository
	ledger   Ledger
	tx       repository.Transactor
	locks    *keylock.KeyLock
	events   event.Publisher
	policy   Policy
	now      func() time.Time
}

func NewService(deps Deps, policy Policy) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Events == nil {
		deps.Events = event.Nop
	}
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	return &Service{
		orders:   deps.Orders,
		disputes: deps.Disputes,
		audit:    deps.Audit,
		ledger:   deps.Ledger,
		tx:       deps.Tx,
		locks:    deps.Locks,
		events:   deps.Events,
		policy:   policy,
		now:      deps.Now,
	}
}

func LockKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

type settlement struct {
	parts  []entity.SettlementPart
	reason string
}

// effects: побочные эффекты перехода, применяемые в одной транзакции с заказом.
type effects struct {
	noop        bool
	settle      *settlement
	newDispute  *entity.Dispute
	saveDispute *entity.Dispute
	auditAfter  any
	auditAction string
	skipAudit   bool

	settled *entity.Reservation
}

type applyFunc func(o *entity.Order, now time.Time) (*effects, error)

func (s *Service) transition(ctx context.Context, orderID, actorID uuid.UUID, action string, apply applyFunc) (*entity.Order, error) {
	order, events, err := s.transitionLocked(ctx, orderID, actorID, action, apply)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events)
	return order, nil
}

func (s *Service) transitionLocked(ctx context.Context, orderID, actorID uuid.UUID, action string, apply applyFunc) (*entity.Order, []event.Event, error) {
	unlock := s.locks.Lock(LockKey(orderID))
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	before := order.Snapshot()
	fx, err := apply(order, now)
	if err != nil {
		return nil, nil, err
	}
	if fx == nil {
		fx = &effects{}
	}
	if fx.noop {
		return order, nil, nil
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if fx.settle != nil {
			res, err := s.ledger.Settle(ctx, order.ID, fx.settle.parts, fx.settle.reason)
			if err != nil {
				return err
			}
			fx.settled = res
		}
		if fx.newDispute != nil {
			if err := s.disputes.Create(ctx, fx.newDispute); err != nil {
				return err
			}
		}
		if fx.saveDispute != nil {
			if err := s.disputes.CompareAndSwap(ctx, fx.saveDispute); err != nil {
				return err
			}
		}
		if err := s.orders.CompareAndSwap(ctx, order); err != nil {
			return err
		}
		if fx.skipAudit {
			return nil
		}
		after := fx.auditAfter
		if after == nil {
			after = order.Snapshot()
		}
		if fx.auditAction != "" {
			action = fx.auditAction
		}
		return s.appendAudit(ctx, order.ID, action, actorID, order.RoleOf(actorID), before, after, now)
	})
	if err != nil {
		return nil, nil, infraError(err, "не удалось сохранить изменения заказа")
	}

	if before.Status != order.Status {
		logger.Log.WithFields(logrus.Fields{
			"subject_id": order.ID,
			"action":     action,
			"from":       before.Status,
			"to":         order.Status,
			"actor_id":   actorID,
		}).Info("Статус заказа изменён")
	}
	return order, s.eventsFor(order, before.Status, actorID, fx, now), nil
}

func (s *Service) appendAudit(ctx context.Context, orderID uuid.UUID, action string, actorID uuid.UUID, role entity.Role, before, after any, now time.Time) error {
	if actorID == entity.SystemActorID {
		role = entity.RoleSystem
	} else if role == entity.RoleNone {
		role = entity.RoleAdmin
	}
	entry, err := entity.NewAuditEntry(valueobject.SubjectKindOrder, orderID, action, actorID, role, before, after, now)
	if err != nil {
		return err
	}
	return s.audit.Append(ctx, entry)
}

func (s *Service) eventsFor(order *entity.Order, from valueobject.OrderStatus, actorID uuid.UUID, fx *effects, now time.Time) []event.Event {
	var events []event.Event
	parties := []uuid.UUID{order.BuyerID, order.SellerID}

	if from != order.Status {
		events = append(events, event.StatusChanged(valueobject.SubjectKindOrder, order.ID, string(from), string(order.Status), actorID, now, parties...))
	}
	if fx.newDispute != nil {
		e := event.New(event.TypeDisputeOpened, valueobject.SubjectKindOrder, order.ID, actorID, now, parties...)
		e.Payload = event.DisputeOpenedPayload{DisputeID: fx.newDispute.ID, Reason: fx.newDispute.Reason}
		events = append(events, e)
	}
	if fx.saveDispute != nil && fx.saveDispute.Resolution != nil {
		e := event.New(event.TypeDisputeResolved, valueobject.SubjectKindOrder, order.ID, actorID, now, parties...)
		e.Payload = event.DisputeResolvedPayload{
			DisputeID: fx.saveDispute.ID,
			Decision:  fx.saveDispute.Resolution.Decision,
			Payment:   fx.saveDispute.Resolution.Payment,
		}
		events = append(events, e)
	}
	if fx.settled != nil {
		e := event.New(event.TypePaymentReleased, valueobject.SubjectKindOrder, order.ID, actorID, now, parties...)
		e.Payload = event.PaymentReleasedPayload{Reason: fx.settled.Reason, Parts: fx.settled.Parts}
		events = append(events, e)
	}
	return events
}

func (s *Service) publish(ctx context.Context, events []event.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logger.Log.WithError(err).Warn("Не удалось опубликовать события заказа")
	}
}

// infraError оборачивает ошибки без кода как ошибки хранилища; типизированные ошибки возвращаются как есть.
func infraError(err error, message string) error {
	if apperror.CodeOf(err) != "" {
		return err
	}
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, message)
}
