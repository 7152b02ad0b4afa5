package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type DisputeRepository struct {
	mu       sync.RWMutex
	disputes map[uuid.UUID]*entity.Dispute
}

func NewDisputeRepository() *DisputeRepository {
	return &DisputeRepository{disputes: make(map[uuid.UUID]*entity.Dispute)}
}

func (r *DisputeRepository) Create(ctx context.Context, d *entity.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.disputes {
		if existing.SubjectKind == d.SubjectKind && existing.SubjectID == d.SubjectID && existing.Status.IsOpen() {
			return apperror.ErrDisputeExists
		}
	}
	d.Version = 1
	r.disputes[d.ID] = cloneDispute(d)
	onRollback(ctx, func() { r.restore(d.ID, nil) })
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return cloneDispute(d), nil
}

func (r *DisputeRepository) FindOpenBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) (*entity.Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.disputes {
		if d.SubjectKind == kind && d.SubjectID == subjectID && d.Status.IsOpen() {
			return cloneDispute(d), nil
		}
	}
	return nil, nil
}

func (r *DisputeRepository) ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.Dispute, error) {
	r.mu.RLock()
	var result []*entity.Dispute
	for _, d := range r.disputes {
		if d.SubjectKind == kind && d.SubjectID == subjectID {
			result = append(result, cloneDispute(d))
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *DisputeRepository) CompareAndSwap(ctx context.Context, d *entity.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.disputes[d.ID]
	if !ok {
		return apperror.ErrDisputeNotFound
	}
	if prev.Version != d.Version {
		return apperror.ErrVersionConflict
	}
	d.Version++
	r.disputes[d.ID] = cloneDispute(d)
	onRollback(ctx, func() {
		d.Version--
		r.restore(d.ID, prev)
	})
	return nil
}

func (r *DisputeRepository) restore(id uuid.UUID, prev *entity.Dispute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.disputes, id)
		return
	}
	r.disputes[id] = prev
}

func cloneDispute(d *entity.Dispute) *entity.Dispute {
	c := *d
	c.Evidence = append([]string(nil), d.Evidence...)
	return &c
}
