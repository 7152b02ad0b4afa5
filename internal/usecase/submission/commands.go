package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

const (
	ActionSubmit          = "submit"
	ActionApprove         = "approve"
	ActionReject          = "reject"
	ActionRequestRevision = "request_revision"
	ActionAcceptRejection = "accept_rejection"
	ActionResubmit        = "resubmit"
	ActionCancelByWorker  = "cancel_by_worker"
	ActionOpenDispute     = "open_dispute"
	ActionResolveDispute  = "resolve_dispute"
	ActionAutoApprove     = "auto_approve"
	ActionAutoRefund      = "auto_refund"
)

type CreateSubmissionInput struct {
	JobID      uuid.UUID
	EmployerID uuid.UUID
	WorkerID   uuid.UUID
	Amount     valueobject.Money
	Proof      entity.WorkProof
}

// Create сохраняет сданную работу и резервирует оплату задания за счёт заказчика.
func (svc *Service) Create(ctx context.Context, input CreateSubmissionInput) (*entity.Submission, error) {
	now := svc.now()
	sub, err := entity.NewSubmission(input.JobID, input.EmployerID, input.WorkerID, input.Amount, input.Proof, svc.policy.ReviewPeriod, now)
	if err != nil {
		return nil, err
	}

	err = svc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := svc.submissions.Create(ctx, sub); err != nil {
			return err
		}
		if _, err := svc.ledger.Reserve(ctx, valueobject.SubjectKindJob, sub.ID, sub.EmployerID, sub.Amount); err != nil {
			return err
		}
		return svc.appendAudit(ctx, sub, ActionSubmit, sub.WorkerID, nil, sub.Snapshot(), now)
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			err = apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить работу")
		}
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"subject_id": sub.ID,
		"job_id":     sub.JobID,
		"worker_id":  sub.WorkerID,
	}).Info("Работа сдана на проверку")

	if err := svc.events.Publish(ctx, event.StatusChanged(valueobject.SubjectKindJob, sub.ID, "", string(sub.Status), sub.WorkerID, now, sub.EmployerID, sub.WorkerID)); err != nil {
		logger.Log.WithError(err).Warn("Не удалось опубликовать события работы")
	}
	return sub, nil
}

// Approve: заказчик принимает работу, исполнитель получает всю сумму.
func (svc *Service) Approve(ctx context.Context, id, employerID uuid.UUID) (*entity.Submission, error) {
	return svc.transition(ctx, id, employerID, ActionApprove, func(s *entity.Submission, now time.Time) (*effects, error) {
		if err := s.Approve(employerID, now); err != nil {
			return nil, err
		}
		return &effects{settle: entity.FullPayout(s.WorkerID, s.Amount), reason: ActionApprove}, nil
	})
}

func (svc *Service) Reject(ctx context.Context, id, employerID uuid.UUID, reason string) (*entity.Submission, error) {
	return svc.transition(ctx, id, employerID, ActionReject, func(s *entity.Submission, now time.Time) (*effects, error) {
		return nil, s.Reject(employerID, reason, svc.policy.SubmissionPolicy, now)
	})
}

func (svc *Service) RequestRevision(ctx context.Context, id, employerID uuid.UUID, note string) (*entity.Submission, error) {
	return svc.transition(ctx, id, employerID, ActionRequestRevision, func(s *entity.Submission, now time.Time) (*effects, error) {
		return nil, s.RequestRevision(employerID, note, svc.policy.SubmissionPolicy, now)
	})
}

// AcceptRejection: исполнитель соглашается с отклонением, оплата возвращается заказчику.
func (svc *Service) AcceptRejection(ctx context.Context, id, workerID uuid.UUID) (*entity.Submission, error) {
	return svc.transition(ctx, id, workerID, ActionAcceptRejection, func(s *entity.Submission, now time.Time) (*effects, error) {
		if err := s.AcceptRejection(workerID, now); err != nil {
			return nil, err
		}
		return &effects{settle: entity.FullRefund(s.EmployerID, s.Amount), reason: ActionAcceptRejection}, nil
	})
}

func (svc *Service) Resubmit(ctx context.Context, id, workerID uuid.UUID, proof entity.WorkProof) (*entity.Submission, error) {
	return svc.transition(ctx, id, workerID, ActionResubmit, func(s *entity.Submission, now time.Time) (*effects, error) {
		return nil, s.Resubmit(workerID, proof, svc.policy.ReviewPeriod, now)
	})
}

// CancelByWorker: исполнитель отказывается от доработки, оплата возвращается заказчику.
func (svc *Service) CancelByWorker(ctx context.Context, id, workerID uuid.UUID) (*entity.Submission, error) {
	return svc.transition(ctx, id, workerID, ActionCancelByWorker, func(s *entity.Submission, now time.Time) (*effects, error) {
		if err := s.CancelByWorker(workerID, now); err != nil {
			return nil, err
		}
		return &effects{settle: entity.FullRefund(s.EmployerID, s.Amount), reason: ActionCancelByWorker}, nil
	})
}

// OpenDispute: исполнитель оспаривает отклонение. Ответчик: заказчик.
// У исполнителя может быть только один открытый спор по заданию, даже если работ несколько.
func (svc *Service) OpenDispute(ctx context.Context, id, workerID uuid.UUID, claim entity.DisputeClaim) (*entity.Dispute, error) {
	current, err := svc.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := svc.locks.Lock(jobDisputeLockKey(current.JobID, current.WorkerID))
	defer unlock()

	var dispute *entity.Dispute
	_, err = svc.transition(ctx, id, workerID, ActionOpenDispute, func(s *entity.Submission, now time.Time) (*effects, error) {
		existing, err := svc.disputes.FindOpenBySubject(ctx, valueobject.SubjectKindJob, s.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperror.ErrDisputeExists
		}
		other, err := svc.submissions.FindDisputed(ctx, s.JobID, s.WorkerID)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != s.ID {
			return nil, apperror.ErrDisputeExists
		}
		if s.RoleOf(workerID) != entity.RoleWorker {
			return nil, apperror.New(apperror.ErrCodeForbidden, "оспорить отклонение может только исполнитель")
		}

		d, err := entity.NewDispute(valueobject.SubjectKindJob, s.ID, workerID, entity.RoleWorker, s.EmployerID, claim, svc.policy.MinReasonLength, now)
		if err != nil {
			return nil, err
		}
		if err := s.OpenDispute(workerID, d.ID, now); err != nil {
			return nil, err
		}
		dispute = d
		return &effects{newDispute: d}, nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute: решение администратора по спору о работе. Заказчик в распределении
// выступает плательщиком, исполнитель: получателем.
func (svc *Service) ResolveDispute(ctx context.Context, id, adminID uuid.UUID, decision valueobject.Decision, notes string) (*entity.Dispute, error) {
	var dispute *entity.Dispute
	_, err := svc.transition(ctx, id, adminID, ActionResolveDispute, func(s *entity.Submission, now time.Time) (*effects, error) {
		if s.Resolution != nil {
			return nil, apperror.ErrAlreadySettled
		}
		if s.Status != valueobject.SubmissionStatusDisputed || s.DisputeID == nil {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "по работе нет открытого спора")
		}
		d, err := svc.disputes.GetByID(ctx, *s.DisputeID)
		if err != nil {
			return nil, err
		}

		res, err := entity.NewResolution(svc.policy.Split, s.Amount, decision, adminID, notes, svc.policy.MinReasonLength, now)
		if err != nil {
			return nil, err
		}
		if err := d.Resolve(res, now); err != nil {
			return nil, err
		}
		if err := s.ResolveDispute(res, now); err != nil {
			return nil, err
		}
		dispute = d
		return &effects{
			settle:      entity.PartsForSplit(res.Payment, s.EmployerID, s.WorkerID),
			reason:      ActionResolveDispute,
			saveDispute: d,
			auditAfter: resolutionAudit{
				Submission: s.Snapshot(),
				DisputeID:  d.ID,
				Payment:    res.Payment,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

type resolutionAudit struct {
	Submission entity.SubmissionSnapshot `json:"submission"`
	DisputeID  uuid.UUID                 `json:"dispute_id"`
	Payment    valueobject.PaymentSplit  `json:"payment"`
}
