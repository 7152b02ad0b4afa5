package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type LedgerRepository struct {
	mu           sync.RWMutex
	reservations map[uuid.UUID]*entity.Reservation
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{reservations: make(map[uuid.UUID]*entity.Reservation)}
}

func (r *LedgerRepository) Create(ctx context.Context, res *entity.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reservations[res.SubjectID]; ok {
		return apperror.New(apperror.ErrCodeConflict, "средства по сделке уже зарезервированы")
	}
	res.Version = 1
	r.reservations[res.SubjectID] = cloneReservation(res)
	onRollback(ctx, func() { r.restore(res.SubjectID, nil) })
	return nil
}

func (r *LedgerRepository) GetBySubject(ctx context.Context, subjectID uuid.UUID) (*entity.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[subjectID]
	if !ok {
		return nil, apperror.ErrReservationNotFound
	}
	return cloneReservation(res), nil
}

func (r *LedgerRepository) CompareAndSwap(ctx context.Context, res *entity.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.reservations[res.SubjectID]
	if !ok {
		return apperror.ErrReservationNotFound
	}
	if prev.Version != res.Version {
		if prev.IsSettled() {
			return apperror.ErrAlreadySettled
		}
		return apperror.ErrVersionConflict
	}
	res.Version++
	r.reservations[res.SubjectID] = cloneReservation(res)
	onRollback(ctx, func() {
		res.Version--
		r.restore(res.SubjectID, prev)
	})
	return nil
}

func (r *LedgerRepository) restore(subjectID uuid.UUID, prev *entity.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.reservations, subjectID)
		return
	}
	r.reservations[subjectID] = prev
}

func cloneReservation(res *entity.Reservation) *entity.Reservation {
	c := *res
	c.Parts = append([]entity.SettlementPart(nil), res.Parts...)
	return &c
}
