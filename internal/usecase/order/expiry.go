package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// ApplyDue применяет просроченное автоматическое действие к заказу через тот же путь,
// что и ручные переходы. Если действие уже выполнено (вручную или прошлым проходом)
// или отключено настройками, возвращает AutoActionNone без изменений.
func (s *Service) ApplyDue(ctx context.Context, orderID uuid.UUID) (entity.AutoAction, error) {
	applied := entity.AutoActionNone
	_, err := s.transition(ctx, orderID, entity.SystemActorID, "", func(o *entity.Order, now time.Time) (*effects, error) {
		action := o.DueAction(now)
		switch action {
		case entity.AutoActionCancel:
			if !s.policy.AutomaticRefunds {
				return skip(o, action, "автоматические возвраты отключены"), nil
			}
			if err := o.AutoCancel(now); err != nil {
				return nil, err
			}
			applied = action
			return &effects{settle: refund(o, ActionAutoCancel), auditAction: ActionAutoCancel}, nil

		case entity.AutoActionComplete:
			if !s.policy.AutoReleasePayment {
				return skip(o, action, "автоматическая выплата отключена"), nil
			}
			if err := o.AutoComplete(now); err != nil {
				return nil, err
			}
			applied = action
			return &effects{settle: payout(o, ActionAutoRelease), auditAction: ActionAutoRelease}, nil
		}

		logger.Log.WithFields(logrus.Fields{
			"subject_id": o.ID,
			"status":     o.Status,
		}).Debug("Заказ не требует автоматического действия")
		return &effects{noop: true}, nil
	})
	if err != nil {
		return entity.AutoActionNone, err
	}
	return applied, nil
}

func skip(o *entity.Order, action entity.AutoAction, why string) *effects {
	logger.Log.WithFields(logrus.Fields{
		"subject_id": o.ID,
		"action":     action,
	}).Debug(why)
	return &effects{noop: true}
}
