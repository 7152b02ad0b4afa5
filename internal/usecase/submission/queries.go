package submission

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type Viewer struct {
	ID    uuid.UUID
	Admin bool
}

func (svc *Service) Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*entity.Submission, error) {
	sub, err := svc.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && !sub.IsParticipant(viewer.ID) {
		return nil, apperror.ErrForbidden
	}
	return sub, nil
}

func (svc *Service) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Submission, error) {
	switch role {
	case entity.RoleEmployer, entity.RoleWorker, entity.RoleNone:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "роль должна быть employer или worker")
	}
	return svc.submissions.ListByUser(ctx, userID, role, filter)
}

// Deadline возвращает активный дедлайн работы и оставшееся до него время.
func (svc *Service) Deadline(ctx context.Context, id uuid.UUID, viewer Viewer) (*entity.Deadline, valueobject.TimeRemaining, error) {
	sub, err := svc.Get(ctx, id, viewer)
	if err != nil {
		return nil, valueobject.TimeRemaining{}, err
	}
	d := sub.ActiveDeadline()
	if d == nil {
		return nil, valueobject.TimeRemaining{}, nil
	}
	return d, valueobject.RemainingUntil(d.At, svc.now()), nil
}

func (svc *Service) Audit(ctx context.Context, id uuid.UUID, viewer Viewer) ([]*entity.AuditEntry, error) {
	if _, err := svc.Get(ctx, id, viewer); err != nil {
		return nil, err
	}
	return svc.audit.ListBySubject(ctx, valueobject.SubjectKindJob, id)
}
