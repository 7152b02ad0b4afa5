package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
)

type Ledger interface {
	Reserve(ctx context.Context, kind valueobject.SubjectKind, subjectID, payerID uuid.UUID, amount valueobject.Money) (*entity.Reservation, error)
	Settle(ctx context.Context, subjectID uuid.UUID, parts []entity.SettlementPart, reason string) (*entity.Reservation, error)
}

type Policy struct {
	entity.SubmissionPolicy
	Split              valueobject.SplitPolicy
	AutomaticRefunds   bool
	AutoReleasePayment bool
}

type Deps struct {
	Submissions repository.SubmissionRepository
	Disputes    repository.DisputeRepository
	Audit       repository.AuditRepository
	Ledger      Ledger
	Tx          repository.Transactor
	Locks       *keylock.KeyLock
	Events      event.Publisher
	Now         func() time.Time
}

// Service: проверка работ по заданиям: приёмка, отклонение, доработки и споры.
// Оплата задания остаётся в резерве, пока работа не закрыта.
type Service struct {
	submissions repository.SubmissionRepository
	disputes    repository.DisputeRepository
	audit       repository.AuditRepository
	ledger      Ledger
	tx          repository.Transactor
	locks       *keylock.KeyLock
	events      event.Publisher
	policy      Policy
	now         func() time.Time
}

func NewService(deps Deps, policy Policy) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Events == nil {
		deps.Events = event.Nop
	}
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	return &Service{
		submissions: deps.Submissions,
		disputes:    deps.Disputes,
		audit:       deps.Audit,
		ledger:      deps.Ledger,
		tx:          deps.Tx,
		locks:       deps.Locks,
		events:      deps.Events,
		policy:      policy,
		now:         deps.Now,
	}
}

func LockKey(submissionID uuid.UUID) string {
	return "job:" + submissionID.String()
}

func jobDisputeLockKey(jobID, workerID uuid.UUID) string {
	return "job-dispute:" + jobID.String() + ":" + workerID.String()
}

type effects struct {
	noop        bool
	settle      []entity.SettlementPart
	reason      string
	newDispute  *entity.Dispute
	saveDispute *entity.Dispute
	auditAction string
	auditAfter  any

	settled *entity.Reservation
}

type applyFunc func(s *entity.Submission, now time.Time) (*effects, error)

func (svc *Service) transition(ctx context.Context, id, actorID uuid.UUID, action string, apply applyFunc) (*entity.Submission, error) {
	sub, events, err := svc.transitionLocked(ctx, id, actorID, action, apply)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		if err := svc.events.Publish(ctx, events...); err != nil {
			logger.Log.WithError(err).Warn("Не удалось опубликовать события работы")
		}
	}
	return sub, nil
}

func (svc *Service) transitionLocked(ctx context.Context, id, actorID uuid.UUID, action string, apply applyFunc) (*entity.Submission, []event.Event, error) {
	unlock := svc.locks.Lock(LockKey(id))
	defer unlock()

	sub, err := svc.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	now := svc.now()
	before := sub.Snapshot()
	fx, err := apply(sub, now)
	if err != nil {
		return nil, nil, err
	}
	if fx == nil {
		fx = &effects{}
	}
	if fx.noop {
		return sub, nil, nil
	}
	if fx.auditAction != "" {
		action = fx.auditAction
	}

	err = svc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if fx.settle != nil {
			res, err := svc.ledger.Settle(ctx, sub.ID, fx.settle, fx.reason)
			if err != nil {
				return err
			}
			fx.settled = res
		}
		if fx.newDispute != nil {
			if err := svc.disputes.Create(ctx, fx.newDispute); err != nil {
				return err
			}
		}
		if fx.saveDispute != nil {
			if err := svc.disputes.CompareAndSwap(ctx, fx.saveDispute); err != nil {
				return err
			}
		}
		if err := svc.submissions.CompareAndSwap(ctx, sub); err != nil {
			return err
		}
		after := fx.auditAfter
		if after == nil {
			after = sub.Snapshot()
		}
		return svc.appendAudit(ctx, sub, action, actorID, before, after, now)
	})
	if err != nil {
		if apperror.CodeOf(err) == "" {
			err = apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить изменения работы")
		}
		return nil, nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"subject_id": sub.ID,
		"job_id":     sub.JobID,
		"action":     action,
		"from":       before.Status,
		"to":         sub.Status,
		"actor_id":   actorID,
	}).Info("Статус работы изменён")

	return sub, svc.eventsFor(sub, before.Status, actorID, fx, now), nil
}

func (svc *Service) appendAudit(ctx context.Context, sub *entity.Submission, action string, actorID uuid.UUID, before, after any, now time.Time) error {
	role := sub.RoleOf(actorID)
	switch {
	case actorID == entity.SystemActorID:
		role = entity.RoleSystem
	case role == entity.RoleNone:
		role = entity.RoleAdmin
	}
	entry, err := entity.NewAuditEntry(valueobject.SubjectKindJob, sub.ID, action, actorID, role, before, after, now)
	if err != nil {
		return err
	}
	return svc.audit.Append(ctx, entry)
}

func (svc *Service) eventsFor(sub *entity.Submission, from valueobject.SubmissionStatus, actorID uuid.UUID, fx *effects, now time.Time) []event.Event {
	parties := []uuid.UUID{sub.EmployerID, sub.WorkerID}
	var events []event.Event

	if from != sub.Status {
		events = append(events, event.StatusChanged(valueobject.SubjectKindJob, sub.ID, string(from), string(sub.Status), actorID, now, parties...))
	}
	if fx.newDispute != nil {
		e := event.New(event.TypeDisputeOpened, valueobject.SubjectKindJob, sub.ID, actorID, now, parties...)
		e.Payload = event.DisputeOpenedPayload{DisputeID: fx.newDispute.ID, Reason: fx.newDispute.Reason}
		events = append(events, e)
	}
	if fx.saveDispute != nil && fx.saveDispute.Resolution != nil {
		e := event.New(event.TypeDisputeResolved, valueobject.SubjectKindJob, sub.ID, actorID, now, parties...)
		e.Payload = event.DisputeResolvedPayload{
			DisputeID: fx.saveDispute.ID,
			Decision:  fx.saveDispute.Resolution.Decision,
			Payment:   fx.saveDispute.Resolution.Payment,
		}
		events = append(events, e)
	}
	if fx.settled != nil {
		e := event.New(event.TypePaymentReleased, valueobject.SubjectKindJob, sub.ID, actorID, now, parties...)
		e.Payload = event.PaymentReleasedPayload{Reason: fx.settled.Reason, Parts: fx.settled.Parts}
		events = append(events, e)
	}
	return events
}
