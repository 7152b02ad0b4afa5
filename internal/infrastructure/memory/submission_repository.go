package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type SubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[uuid.UUID]*entity.Submission
}

func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{submissions: make(map[uuid.UUID]*entity.Submission)}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *entity.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.submissions[s.ID]; ok {
		return apperror.New(apperror.ErrCodeConflict, "работа уже существует")
	}
	s.Version = 1
	r.submissions[s.ID] = cloneSubmission(s)
	onRollback(ctx, func() { r.restore(s.ID, nil) })
	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.submissions[id]
	if !ok {
		return nil, apperror.ErrSubmissionNotFound
	}
	return cloneSubmission(s), nil
}

func (r *SubmissionRepository) CompareAndSwap(ctx context.Context, s *entity.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.submissions[s.ID]
	if !ok {
		return apperror.ErrSubmissionNotFound
	}
	if prev.Version != s.Version {
		return apperror.ErrVersionConflict
	}
	s.Version++
	r.submissions[s.ID] = cloneSubmission(s)
	onRollback(ctx, func() {
		s.Version--
		r.restore(s.ID, prev)
	})
	return nil
}

func (r *SubmissionRepository) restore(id uuid.UUID, prev *entity.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.submissions, id)
		return
	}
	r.submissions[id] = prev
}

func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Submission, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	var result []*entity.Submission
	for _, s := range r.submissions {
		switch role {
		case entity.RoleEmployer:
			if s.EmployerID != userID {
				continue
			}
		case entity.RoleWorker:
			if s.WorkerID != userID {
				continue
			}
		default:
			if !s.IsParticipant(userID) {
				continue
			}
		}
		if filter.Status != "" && string(s.Status) != filter.Status {
			continue
		}
		result = append(result, cloneSubmission(s))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter), nil
}

func (r *SubmissionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*entity.Submission
	for _, s := range r.submissions {
		if s.DueAction(now) != entity.AutoActionNone {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ActiveDeadline().At.Before(items[j].ActiveDeadline().At)
	})

	ids := make([]uuid.UUID, 0, len(items))
	for _, s := range items {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (r *SubmissionRepository) FindDisputed(ctx context.Context, jobID, workerID uuid.UUID) (*entity.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.submissions {
		if s.JobID == jobID && s.WorkerID == workerID && s.Status == valueobject.SubmissionStatusDisputed {
			return cloneSubmission(s), nil
		}
	}
	return nil, nil
}

func cloneSubmission(s *entity.Submission) *entity.Submission {
	c := *s
	c.Proof.FileRefs = append([]string(nil), s.Proof.FileRefs...)
	c.Proof.Links = append([]string(nil), s.Proof.Links...)
	return &c
}
