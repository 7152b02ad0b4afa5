package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

const (
	ActionCreate           = "create"
	ActionAccept           = "accept"
	ActionDecline          = "decline"
	ActionStart            = "start"
	ActionRequestExtension = "request_extension"
	ActionApproveExtension = "approve_extension"
	ActionDeclineExtension = "decline_extension"
	ActionSubmitDelivery   = "submit_delivery"
	ActionReleasePayment   = "release_payment"
	ActionCancel           = "cancel"
	ActionOpenDispute      = "open_dispute"
	ActionResolveDispute   = "resolve_dispute"
	ActionAutoCancel       = "auto_cancel"
	ActionAutoRelease      = "auto_release"
)

type CreateOrderInput struct {
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	Title        string
	Price        valueobject.Money
	DeliveryDays int
}

// Create создаёт заказ и резервирует его цену в одной транзакции.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*entity.Order, error) {
	now := s.now()
	if input.DeliveryDays == 0 {
		input.DeliveryDays = s.policy.DefaultDeliveryDays
	}
	order, err := entity.NewOrder(input.BuyerID, input.SellerID, input.Title, input.Price, input.DeliveryDays, s.policy.AcceptanceWindow, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		if _, err := s.ledger.Reserve(ctx, valueobject.SubjectKindOrder, order.ID, order.BuyerID, order.Price); err != nil {
			return err
		}
		return s.appendAudit(ctx, order.ID, ActionCreate, order.BuyerID, entity.RoleBuyer, nil, order.Snapshot(), now)
	})
	if err != nil {
		return nil, infraError(err, "не удалось создать заказ")
	}

	s.publish(ctx, []event.Event{
		event.StatusChanged(valueobject.SubjectKindOrder, order.ID, "", string(order.Status), order.BuyerID, now, order.BuyerID, order.SellerID),
	})
	return order, nil
}

func (s *Service) Accept(ctx context.Context, orderID, sellerID uuid.UUID) (*entity.Order, error) {
	return s.transition(ctx, orderID, sellerID, ActionAccept, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.Accept(sellerID, now)
	})
}

// Decline: отказ продавца, покупателю возвращается вся сумма.
func (s *Service) Decline(ctx context.Context, orderID, sellerID uuid.UUID, reason string) (*entity.Order, error) {
	return s.transition(ctx, orderID, sellerID, ActionDecline, func(o *entity.Order, now time.Time) (*effects, error) {
		if err := o.Decline(sellerID, reason, now); err != nil {
			return nil, err
		}
		return &effects{settle: refund(o, ActionDecline)}, nil
	})
}

func (s *Service) Start(ctx context.Context, orderID, sellerID uuid.UUID) (*entity.Order, error) {
	return s.transition(ctx, orderID, sellerID, ActionStart, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.Start(sellerID, now)
	})
}

func (s *Service) RequestExtension(ctx context.Context, orderID, sellerID uuid.UUID, days int, reason string) (*entity.Order, error) {
	return s.transition(ctx, orderID, sellerID, ActionRequestExtension, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.RequestExtension(sellerID, days, reason, s.policy.OrderPolicy, now)
	})
}

func (s *Service) ApproveExtension(ctx context.Context, orderID, buyerID uuid.UUID) (*entity.Order, error) {
	return s.transition(ctx, orderID, buyerID, ActionApproveExtension, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.ApproveExtension(buyerID, now)
	})
}

func (s *Service) DeclineExtension(ctx context.Context, orderID, buyerID uuid.UUID) (*entity.Order, error) {
	return s.transition(ctx, orderID, buyerID, ActionDeclineExtension, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.DeclineExtension(buyerID, now)
	})
}

func (s *Service) SubmitDelivery(ctx context.Context, orderID, sellerID uuid.UUID, deliverable entity.Deliverable) (*entity.Order, error) {
	return s.transition(ctx, orderID, sellerID, ActionSubmitDelivery, func(o *entity.Order, now time.Time) (*effects, error) {
		return nil, o.SubmitDelivery(sellerID, deliverable, s.policy.ReviewPeriod, now)
	})
}

// ReleasePayment: покупатель подтверждает работу, продавец получает всю сумму без комиссии.
// Повторный вызов возвращает ErrAlreadyCompleted и ничего не выплачивает.
func (s *Service) ReleasePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*entity.Order, error) {
	return s.transition(ctx, orderID, buyerID, ActionReleasePayment, func(o *entity.Order, now time.Time) (*effects, error) {
		if err := o.Complete(buyerID, now); err != nil {
			return nil, err
		}
		return &effects{settle: payout(o, ActionReleasePayment)}, nil
	})
}

// Cancel: отмена любой из сторон, покупателю всегда возвращается вся сумма.
func (s *Service) Cancel(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*entity.Order, error) {
	return s.transition(ctx, orderID, actorID, ActionCancel, func(o *entity.Order, now time.Time) (*effects, error) {
		if err := o.Cancel(actorID, reason, s.policy.MinReasonLength, now); err != nil {
			return nil, err
		}
		return &effects{settle: refund(o, ActionCancel)}, nil
	})
}

// OpenDispute переводит заказ в спор и создаёт запись спора в общем реестре.
func (s *Service) OpenDispute(ctx context.Context, orderID, actorID uuid.UUID, claim entity.DisputeClaim) (*entity.Dispute, error) {
	var dispute *entity.Dispute
	_, err := s.transition(ctx, orderID, actorID, ActionOpenDispute, func(o *entity.Order, now time.Time) (*effects, error) {
		existing, err := s.disputes.FindOpenBySubject(ctx, valueobject.SubjectKindOrder, o.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperror.ErrDisputeExists
		}

		role := o.RoleOf(actorID)
		respondent := o.SellerID
		if role == entity.RoleSeller {
			respondent = o.BuyerID
		}
		d, err := entity.NewDispute(valueobject.SubjectKindOrder, o.ID, actorID, role, respondent, claim, s.policy.MinReasonLength, now)
		if err != nil {
			return nil, err
		}
		if err := o.OpenDispute(actorID, d.ID, now); err != nil {
			return nil, err
		}
		dispute = d
		return &effects{newDispute: d}, nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute применяет решение администратора: считает распределение по политике,
// выполняет расчёт в реестре и закрывает спор и заказ в одной транзакции.
func (s *Service) ResolveDispute(ctx context.Context, orderID, adminID uuid.UUID, decision valueobject.Decision, notes string) (*entity.Dispute, error) {
	var dispute *entity.Dispute
	_, err := s.transition(ctx, orderID, adminID, ActionResolveDispute, func(o *entity.Order, now time.Time) (*effects, error) {
		if o.Resolution != nil {
			return nil, apperror.ErrAlreadySettled
		}
		if o.Status != valueobject.OrderStatusDisputed || o.DisputeID == nil {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "по заказу нет открытого спора")
		}
		d, err := s.disputes.GetByID(ctx, *o.DisputeID)
		if err != nil {
			return nil, err
		}

		res, err := entity.NewResolution(s.policy.Split, o.Price, decision, adminID, notes, s.policy.MinReasonLength, now)
		if err != nil {
			return nil, err
		}
		if err := d.Resolve(res, now); err != nil {
			return nil, err
		}
		if err := o.ResolveDispute(res, now); err != nil {
			return nil, err
		}
		dispute = d
		return &effects{
			settle:      &settlement{parts: entity.PartsForSplit(res.Payment, o.BuyerID, o.SellerID), reason: ActionResolveDispute},
			saveDispute: d,
			auditAfter:  resolutionAudit{Order: o.Snapshot(), DisputeID: d.ID, Payment: res.Payment},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// resolutionAudit: состояние после решения вместе с итоговым распределением средств.
type resolutionAudit struct {
	Order     entity.OrderSnapshot     `json:"order"`
	DisputeID uuid.UUID                `json:"dispute_id"`
	Payment   valueobject.PaymentSplit `json:"payment"`
}

func (s *Service) PostMessage(ctx context.Context, orderID, authorID uuid.UUID, body string) (entity.Message, error) {
	var msg entity.Message
	_, err := s.transition(ctx, orderID, authorID, "", func(o *entity.Order, now time.Time) (*effects, error) {
		m, err := o.PostMessage(authorID, body, now)
		if err != nil {
			return nil, err
		}
		msg = m
		return &effects{skipAudit: true}, nil
	})
	return msg, err
}

func refund(o *entity.Order, reason string) *settlement {
	return &settlement{parts: entity.FullRefund(o.BuyerID, o.Price), reason: reason}
}

func payout(o *entity.Order, reason string) *settlement {
	return &settlement{parts: entity.FullPayout(o.SellerID, o.Price), reason: reason}
}
