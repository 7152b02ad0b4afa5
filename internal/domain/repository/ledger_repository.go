package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
)

// LedgerRepository хранит резервы. CompareAndSwap по устаревшей версии уже
// распределённого резерва возвращает apperror.ErrAlreadySettled.
type LedgerRepository interface {
	Create(ctx context.Context, reservation *entity.Reservation) error
	GetBySubject(ctx context.Context, subjectID uuid.UUID) (*entity.Reservation, error)
	CompareAndSwap(ctx context.Context, reservation *entity.Reservation) error
}
