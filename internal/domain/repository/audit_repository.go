package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.AuditEntry, error)
}
