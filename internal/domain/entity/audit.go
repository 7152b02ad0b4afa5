package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// AuditEntry: неизменяемая запись о переходе или решении по сделке.
type AuditEntry struct {
	ID          uuid.UUID
	SubjectKind valueobject.SubjectKind
	SubjectID   uuid.UUID
	Action      string
	ActorID     uuid.UUID
	ActorRole   Role
	Before      json.RawMessage
	After       json.RawMessage
	CreatedAt   time.Time
}

func NewAuditEntry(kind valueobject.SubjectKind, subjectID uuid.UUID, action string, actorID uuid.UUID, role Role, before, after any, now time.Time) (*AuditEntry, error) {
	beforeJSON, err := marshalAuditValue(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := marshalAuditValue(after)
	if err != nil {
		return nil, err
	}
	return &AuditEntry{
		ID:          uuid.New(),
		SubjectKind: kind,
		SubjectID:   subjectID,
		Action:      action,
		ActorID:     actorID,
		ActorRole:   role,
		Before:      beforeJSON,
		After:       afterJSON,
		CreatedAt:   now,
	}, nil
}

func marshalAuditValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сериализовать запись аудита")
	}
	return data, nil
}

// OrderSnapshot: срез заказа для записи аудита.
type OrderSnapshot struct {
	Status         valueobject.OrderStatus `json:"status"`
	ExpiresAt      *time.Time              `json:"expires_at,omitempty"`
	ReviewDeadline *time.Time              `json:"review_deadline,omitempty"`
	Cancellation   *Cancellation           `json:"cancellation,omitempty"`
	Resolution     *Resolution             `json:"resolution,omitempty"`
}

func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		Status:         o.Status,
		ExpiresAt:      o.ExpiresAt,
		ReviewDeadline: o.ReviewDeadline,
		Cancellation:   o.Cancellation,
		Resolution:     o.Resolution,
	}
}

type SubmissionSnapshot struct {
	Status        valueobject.SubmissionStatus `json:"status"`
	RevisionCount int                          `json:"revision_count"`
	Deadline      *Deadline                    `json:"deadline,omitempty"`
	Resolution    *Resolution                  `json:"resolution,omitempty"`
}

func (s *Submission) Snapshot() SubmissionSnapshot {
	return SubmissionSnapshot{
		Status:        s.Status,
		RevisionCount: s.RevisionCount,
		Deadline:      s.ActiveDeadline(),
		Resolution:    s.Resolution,
	}
}
