package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
)

const ActionAddEvidence = "add_evidence"

// Subject: сделка, по которой можно открыть и разрешить спор (заказ или работа по заданию).
type Subject interface {
	OpenDispute(ctx context.Context, subjectID, actorID uuid.UUID, claim entity.DisputeClaim) (*entity.Dispute, error)
	ResolveDispute(ctx context.Context, subjectID, adminID uuid.UUID, decision valueobject.Decision, notes string) (*entity.Dispute, error)
}

type Deps struct {
	Disputes    repository.DisputeRepository
	Audit       repository.AuditRepository
	Tx          repository.Transactor
	Locks       *keylock.KeyLock
	Orders      Subject
	Submissions Subject
	Now         func() time.Time
}

// Service: общий вход для споров. Открытие и решение выполняет сервис сделки,
// чтобы спор, статус сделки и расчёт менялись под одной блокировкой.
type Service struct {
	disputes repository.DisputeRepository
	audit    repository.AuditRepository
	tx       repository.Transactor
	locks    *keylock.KeyLock
	subjects map[valueobject.SubjectKind]Subject
	now      func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	return &Service{
		disputes: deps.Disputes,
		audit:    deps.Audit,
		tx:       deps.Tx,
		locks:    deps.Locks,
		subjects: map[valueobject.SubjectKind]Subject{
			valueobject.SubjectKindOrder: deps.Orders,
			valueobject.SubjectKindJob:   deps.Submissions,
		},
		now: deps.Now,
	}
}

func (s *Service) subject(kind valueobject.SubjectKind) (Subject, error) {
	subj, ok := s.subjects[kind]
	if !ok || subj == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип сделки")
	}
	return subj, nil
}

// lockKey совпадает с ключом блокировки сервиса сделки.
func lockKey(kind valueobject.SubjectKind, subjectID uuid.UUID) string {
	if kind == valueobject.SubjectKindJob {
		return submission.LockKey(subjectID)
	}
	return order.LockKey(subjectID)
}

func (s *Service) Open(ctx context.Context, kind valueobject.SubjectKind, subjectID, actorID uuid.UUID, claim entity.DisputeClaim) (*entity.Dispute, error) {
	subj, err := s.subject(kind)
	if err != nil {
		return nil, err
	}
	return subj.OpenDispute(ctx, subjectID, actorID, claim)
}

// Resolve применяет решение администратора к спору через сервис его сделки.
func (s *Service) Resolve(ctx context.Context, disputeID, adminID uuid.UUID, decision valueobject.Decision, notes string) (*entity.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsOpen() {
		return nil, apperror.ErrAlreadySettled
	}
	subj, err := s.subject(d.SubjectKind)
	if err != nil {
		return nil, err
	}
	return subj.ResolveDispute(ctx, d.SubjectID, adminID, decision, notes)
}

// AddEvidence дополняет открытый спор ссылками на файлы.
func (s *Service) AddEvidence(ctx context.Context, disputeID, actorID uuid.UUID, refs []string) (*entity.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(d.SubjectKind, d.SubjectID))
	defer unlock()

	// перечитываем под блокировкой сделки: спор мог быть решён
	d, err = s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	before := len(d.Evidence)
	if err := d.AddEvidence(actorID, refs, now); err != nil {
		return nil, err
	}

	role := d.ClaimantRole
	if actorID != d.ClaimantID {
		role = counterpart(d.ClaimantRole)
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.disputes.CompareAndSwap(ctx, d); err != nil {
			return err
		}
		entry, err := entity.NewAuditEntry(d.SubjectKind, d.SubjectID, ActionAddEvidence, actorID, role,
			evidenceAudit{DisputeID: d.ID, Evidence: d.Evidence[:before]},
			evidenceAudit{DisputeID: d.ID, Evidence: d.Evidence}, now)
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, entry)
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			err = apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить доказательства")
		}
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id": d.ID,
		"subject_id": d.SubjectID,
		"added":      len(refs),
	}).Info("К спору добавлены доказательства")
	return d, nil
}

func counterpart(role entity.Role) entity.Role {
	switch role {
	case entity.RoleBuyer:
		return entity.RoleSeller
	case entity.RoleSeller:
		return entity.RoleBuyer
	case entity.RoleWorker:
		return entity.RoleEmployer
	case entity.RoleEmployer:
		return entity.RoleWorker
	}
	return entity.RoleNone
}

type evidenceAudit struct {
	DisputeID uuid.UUID `json:"dispute_id"`
	Evidence  []string  `json:"evidence"`
}

// Get возвращает спор его сторонам или администратору.
func (s *Service) Get(ctx context.Context, disputeID, viewerID uuid.UUID, admin bool) (*entity.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !admin && !d.IsParty(viewerID) {
		return nil, apperror.ErrForbidden
	}
	return d, nil
}

// ListBySubject возвращает историю споров по сделке.
func (s *Service) ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID, viewerID uuid.UUID, admin bool) ([]*entity.Dispute, error) {
	if !kind.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип сделки")
	}
	list, err := s.disputes.ListBySubject(ctx, kind, subjectID)
	if err != nil {
		return nil, err
	}
	if admin {
		return list, nil
	}
	for _, d := range list {
		if !d.IsParty(viewerID) {
			return nil, apperror.ErrForbidden
		}
	}
	return list, nil
}
