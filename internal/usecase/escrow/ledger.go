package escrow

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
)

// Ledger удерживает оплату сделки до её единственного расчёта.
// Reserve и Settle вызываются внутри транзакции вызывающего сервиса.
type Ledger struct {
	repo repository.LedgerRepository
	now  func() time.Time
}

func NewLedger(repo repository.LedgerRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Reserve резервирует сумму сделки при её создании.
func (l *Ledger) Reserve(ctx context.Context, kind valueobject.SubjectKind, subjectID, payerID uuid.UUID, amount valueobject.Money) (*entity.Reservation, error) {
	res, err := entity.NewReservation(kind, subjectID, payerID, amount, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.repo.Create(ctx, res); err != nil {
		if apperror.CodeOf(err) != "" {
			return nil, err
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зарезервировать средства")
	}
	return res, nil
}

// Settle распределяет резерв. Повторный расчёт возвращает ErrAlreadySettled
// и ничего не выплачивает.
func (l *Ledger) Settle(ctx context.Context, subjectID uuid.UUID, parts []entity.SettlementPart, reason string) (*entity.Reservation, error) {
	res, err := l.repo.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := res.Settle(parts, reason, l.now()); err != nil {
		return nil, err
	}
	if err := l.repo.CompareAndSwap(ctx, res); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"subject_id": subjectID,
		"reason":     reason,
		"amount":     res.Amount.String(),
		"parts":      len(res.Parts),
	}).Info("Средства по сделке распределены")
	return res, nil
}

func (l *Ledger) GetReservation(ctx context.Context, subjectID uuid.UUID) (*entity.Reservation, error) {
	return l.repo.GetBySubject(ctx, subjectID)
}
