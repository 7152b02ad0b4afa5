package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// ApplyDue применяет просроченное автоматическое действие к работе.
// Уже закрытая или отключённая настройками работа пропускается без ошибки.
func (svc *Service) ApplyDue(ctx context.Context, id uuid.UUID) (entity.AutoAction, error) {
	applied := entity.AutoActionNone
	_, err := svc.transition(ctx, id, entity.SystemActorID, "", func(s *entity.Submission, now time.Time) (*effects, error) {
		action := s.DueAction(now)
		log := logger.Log.WithFields(logrus.Fields{"subject_id": s.ID, "action": action, "status": s.Status})

		switch action {
		case entity.AutoActionApprove:
			if !svc.policy.AutoReleasePayment {
				log.Debug("автоматическая выплата отключена")
				return &effects{noop: true}, nil
			}
			if err := s.AutoApprove(now); err != nil {
				return nil, err
			}
			applied = action
			return &effects{
				settle:      entity.FullPayout(s.WorkerID, s.Amount),
				reason:      ActionAutoApprove,
				auditAction: ActionAutoApprove,
			}, nil

		case entity.AutoActionRefund:
			if !svc.policy.AutomaticRefunds {
				log.Debug("автоматические возвраты отключены")
				return &effects{noop: true}, nil
			}
			if err := s.AutoRefund(now); err != nil {
				return nil, err
			}
			applied = action
			return &effects{
				settle:      entity.FullRefund(s.EmployerID, s.Amount),
				reason:      ActionAutoRefund,
				auditAction: ActionAutoRefund,
			}, nil
		}

		log.Debug("Работа не требует автоматического действия")
		return &effects{noop: true}, nil
	})
	if err != nil {
		return entity.AutoActionNone, err
	}
	return applied, nil
}
