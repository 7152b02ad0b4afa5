package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type Type string

const (
	TypeOrderStatusChanged      Type = "order.status_changed"
	TypeSubmissionStatusChanged Type = "submission.status_changed"
	TypeDisputeOpened           Type = "dispute.opened"
	TypeDisputeResolved         Type = "dispute.resolved"
	TypePaymentReleased         Type = "payment.released"
)

// Event: доменное событие. Recipients определяют, кому из пользователей отправить уведомление.
type Event struct {
	ID          uuid.UUID               `json:"id"`
	Type        Type                    `json:"type"`
	SubjectKind valueobject.SubjectKind `json:"subject_kind"`
	SubjectID   uuid.UUID               `json:"subject_id"`
	OldStatus   string                  `json:"old_status,omitempty"`
	NewStatus   string                  `json:"new_status,omitempty"`
	ActorID     uuid.UUID               `json:"actor_id"`
	Payload     any                     `json:"payload,omitempty"`
	OccurredAt  time.Time               `json:"occurred_at"`
	Recipients  []uuid.UUID             `json:"-"`
}

// Publisher доставляет события внешним получателям. Ошибка доставки не откатывает переход.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type PublisherFunc func(ctx context.Context, events ...Event) error

func (f PublisherFunc) Publish(ctx context.Context, events ...Event) error {
	return f(ctx, events...)
}

// Nop отбрасывает все события.
var Nop Publisher = PublisherFunc(func(context.Context, ...Event) error { return nil })

func New(t Type, kind valueobject.SubjectKind, subjectID, actorID uuid.UUID, now time.Time, recipients ...uuid.UUID) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		SubjectKind: kind,
		SubjectID:   subjectID,
		ActorID:     actorID,
		OccurredAt:  now,
		Recipients:  recipients,
	}
}

func StatusChanged(kind valueobject.SubjectKind, subjectID uuid.UUID, oldStatus, newStatus string, actorID uuid.UUID, now time.Time, recipients ...uuid.UUID) Event {
	t := TypeOrderStatusChanged
	if kind == valueobject.SubjectKindJob {
		t = TypeSubmissionStatusChanged
	}
	e := New(t, kind, subjectID, actorID, now, recipients...)
	e.OldStatus = oldStatus
	e.NewStatus = newStatus
	return e
}

// PaymentReleasedPayload: распределение средств при расчёте по сделке.
type PaymentReleasedPayload struct {
	Reason string                  `json:"reason"`
	Parts  []entity.SettlementPart `json:"parts"`
}

type DisputeOpenedPayload struct {
	DisputeID uuid.UUID `json:"dispute_id"`
	Reason    string    `json:"reason"`
}

type DisputeResolvedPayload struct {
	DisputeID uuid.UUID                `json:"dispute_id"`
	Decision  valueobject.Decision     `json:"decision"`
	Payment   valueobject.PaymentSplit `json:"payment"`
}
