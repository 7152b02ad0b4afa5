package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

// DisputeRepository: единый реестр споров по заказам и заданиям.
// Create возвращает apperror.ErrDisputeExists, если по сделке уже есть открытый спор.
type DisputeRepository interface {
	Create(ctx context.Context, dispute *entity.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error)
	FindOpenBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) (*entity.Dispute, error)
	ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.Dispute, error)
	CompareAndSwap(ctx context.Context, dispute *entity.Dispute) error
}
