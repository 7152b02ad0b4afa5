package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type reservationRow struct {
	SubjectID   uuid.UUID      `db:"subject_id"`
	SubjectKind string         `db:"subject_kind"`
	PayerID     uuid.UUID      `db:"payer_id"`
	Amount      int64          `db:"amount"`
	Currency    string         `db:"currency"`
	Status      string         `db:"status"`
	Reason      string         `db:"reason"`
	Parts       types.JSONText `db:"parts"`
	ReservedAt  time.Time      `db:"reserved_at"`
	SettledAt   *time.Time     `db:"settled_at"`
	Version     int64          `db:"version"`
}

const reservationColumns = `subject_id, subject_kind, payer_id, amount, currency, status, reason, parts, reserved_at, settled_at, version`

func newReservationRow(res *entity.Reservation) (*reservationRow, error) {
	parts := res.Parts
	if parts == nil {
		parts = []entity.SettlementPart{}
	}
	partsJSON, err := toJSON(parts)
	if err != nil {
		return nil, err
	}
	return &reservationRow{
		SubjectID:   res.SubjectID,
		SubjectKind: string(res.SubjectKind),
		PayerID:     res.PayerID,
		Amount:      res.Amount.Amount,
		Currency:    res.Amount.Currency,
		Status:      string(res.Status),
		Reason:      res.Reason,
		Parts:       partsJSON,
		ReservedAt:  res.ReservedAt,
		SettledAt:   res.SettledAt,
		Version:     res.Version,
	}, nil
}

func (row *reservationRow) toEntity() (*entity.Reservation, error) {
	res := &entity.Reservation{
		SubjectKind: valueobject.SubjectKind(row.SubjectKind),
		SubjectID:   row.SubjectID,
		PayerID:     row.PayerID,
		Amount:      valueobject.Money{Amount: row.Amount, Currency: row.Currency},
		Status:      entity.ReservationStatus(row.Status),
		Reason:      row.Reason,
		ReservedAt:  row.ReservedAt,
		SettledAt:   row.SettledAt,
		Version:     row.Version,
	}
	if err := row.Parts.Unmarshal(&res.Parts); err != nil {
		return nil, err
	}
	if len(res.Parts) == 0 {
		res.Parts = nil
	}
	return res, nil
}

func (r *LedgerRepository) Create(ctx context.Context, res *entity.Reservation) error {
	res.Version = 1
	row, err := newReservationRow(res)
	if err != nil {
		return dbError(err, "не удалось подготовить резерв")
	}

	query := `INSERT INTO escrow_reservations (` + reservationColumns + `) VALUES (
		:subject_id, :subject_kind, :payer_id, :amount, :currency, :status, :reason, :parts, :reserved_at, :settled_at, :version)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "оплата по сделке уже зарезервирована")
		}
		return dbError(err, "не удалось зарезервировать оплату")
	}
	return nil
}

func (r *LedgerRepository) GetBySubject(ctx context.Context, subjectID uuid.UUID) (*entity.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM escrow_reservations WHERE subject_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrReservationNotFound
		}
		return nil, dbError(err, "не удалось получить резерв")
	}
	return row.toEntity()
}

// CompareAndSwap: если резерв успели закрыть параллельно, возвращает ErrAlreadySettled.
func (r *LedgerRepository) CompareAndSwap(ctx context.Context, res *entity.Reservation) error {
	row, err := newReservationRow(res)
	if err != nil {
		return dbError(err, "не удалось подготовить резерв")
	}

	query := `
		UPDATE escrow_reservations SET
			status = :status, reason = :reason, parts = :parts, settled_at = :settled_at,
			version = version + 1
		WHERE subject_id = :subject_id AND version = :version`
	result, err := conn(ctx, r.db).NamedExecContext(ctx, query, row)
	if err != nil {
		return dbError(err, "не удалось сохранить резерв")
	}
	if err := checkSwapped(result, func() error {
		current, err := r.GetBySubject(ctx, res.SubjectID)
		if err != nil {
			return err
		}
		if current.IsSettled() {
			return apperror.ErrAlreadySettled
		}
		return nil
	}); err != nil {
		return err
	}
	res.Version++
	return nil
}
