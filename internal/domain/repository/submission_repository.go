package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
)

type SubmissionRepository interface {
	Create(ctx context.Context, submission *entity.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error)
	CompareAndSwap(ctx context.Context, submission *entity.Submission) error
	ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter ListFilter) ([]*entity.Submission, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// FindDisputed возвращает работу исполнителя по заданию, по которой открыт спор, или nil.
	FindDisputed(ctx context.Context, jobID, workerID uuid.UUID) (*entity.Submission, error)
}
