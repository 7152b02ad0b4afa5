package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type AuditRepository struct {
	mu      sync.RWMutex
	entries []*entity.AuditEntry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	r.entries = append(r.entries, &c)
	onRollback(ctx, func() { r.remove(entry.ID) })
	return nil
}

func (r *AuditRepository) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *AuditRepository) ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entity.AuditEntry
	for _, e := range r.entries {
		if e.SubjectKind == kind && e.SubjectID == subjectID {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}
