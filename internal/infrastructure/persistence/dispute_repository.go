package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

type disputeRow struct {
	ID           uuid.UUID          `db:"id"`
	SubjectKind  string             `db:"subject_kind"`
	SubjectID    uuid.UUID          `db:"subject_id"`
	ClaimantID   uuid.UUID          `db:"claimant_id"`
	ClaimantRole string             `db:"claimant_role"`
	RespondentID uuid.UUID          `db:"respondent_id"`
	Reason       string             `db:"reason"`
	Details      string             `db:"details"`
	Evidence     pq.StringArray     `db:"evidence"`
	Status       string             `db:"status"`
	Resolution   types.NullJSONText `db:"resolution"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
	Version      int64              `db:"version"`
}

const disputeColumns = `id, subject_kind, subject_id, claimant_id, claimant_role, respondent_id,
	reason, details, evidence, status, resolution, created_at, updated_at, version`

func newDisputeRow(d *entity.Dispute) (*disputeRow, error) {
	resolution, err := toNullJSON(d.Resolution)
	if err != nil {
		return nil, err
	}
	evidence := pq.StringArray(d.Evidence)
	if evidence == nil {
		evidence = pq.StringArray{}
	}
	return &disputeRow{
		ID:           d.ID,
		SubjectKind:  string(d.SubjectKind),
		SubjectID:    d.SubjectID,
		ClaimantID:   d.ClaimantID,
		ClaimantRole: string(d.ClaimantRole),
		RespondentID: d.RespondentID,
		Reason:       d.Reason,
		Details:      d.Details,
		Evidence:     evidence,
		Status:       string(d.Status),
		Resolution:   resolution,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		Version:      d.Version,
	}, nil
}

func (row *disputeRow) toEntity() (*entity.Dispute, error) {
	resolution, err := fromNullJSON[entity.Resolution](row.Resolution)
	if err != nil {
		return nil, err
	}
	var evidence []string
	if len(row.Evidence) > 0 {
		evidence = []string(row.Evidence)
	}
	return &entity.Dispute{
		ID:           row.ID,
		SubjectKind:  valueobject.SubjectKind(row.SubjectKind),
		SubjectID:    row.SubjectID,
		ClaimantID:   row.ClaimantID,
		ClaimantRole: entity.Role(row.ClaimantRole),
		RespondentID: row.RespondentID,
		Reason:       row.Reason,
		Details:      row.Details,
		Evidence:     evidence,
		Status:       valueobject.DisputeStatus(row.Status),
		Resolution:   resolution,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Version:      row.Version,
	}, nil
}

// Create опирается на частичный уникальный индекс uq_disputes_open_subject.
func (r *DisputeRepository) Create(ctx context.Context, dispute *entity.Dispute) error {
	dispute.Version = 1
	row, err := newDisputeRow(dispute)
	if err != nil {
		return dbError(err, "не удалось подготовить спор")
	}

	query := `INSERT INTO disputes (` + disputeColumns + `) VALUES (
		:id, :subject_kind, :subject_id, :claimant_id, :claimant_role, :respondent_id,
		:reason, :details, :evidence, :status, :resolution, :created_at, :updated_at, :version)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDisputeExists
		}
		return dbError(err, "не удалось создать спор")
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error) {
	var row disputeRow
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, dbError(err, "не удалось получить спор")
	}
	return row.toEntity()
}

func (r *DisputeRepository) FindOpenBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) (*entity.Dispute, error) {
	var row disputeRow
	query := `SELECT ` + disputeColumns + ` FROM disputes
		WHERE subject_kind = $1 AND subject_id = $2 AND status = $3`
	err := conn(ctx, r.db).GetContext(ctx, &row, query, string(kind), subjectID, string(valueobject.DisputeStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "не удалось найти открытый спор")
	}
	return row.toEntity()
}

func (r *DisputeRepository) ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.Dispute, error) {
	var rows []disputeRow
	query := `SELECT ` + disputeColumns + ` FROM disputes
		WHERE subject_kind = $1 AND subject_id = $2 ORDER BY created_at`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, string(kind), subjectID); err != nil {
		return nil, dbError(err, "не удалось получить споры по сделке")
	}

	result := make([]*entity.Dispute, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toEntity()
		if err != nil {
			return nil, dbError(err, "не удалось прочитать спор")
		}
		result = append(result, d)
	}
	return result, nil
}

func (r *DisputeRepository) CompareAndSwap(ctx context.Context, dispute *entity.Dispute) error {
	row, err := newDisputeRow(dispute)
	if err != nil {
		return dbError(err, "не удалось подготовить спор")
	}

	query := `
		UPDATE disputes SET
			evidence = :evidence, status = :status, resolution = :resolution, updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, row)
	if err != nil {
		return dbError(err, "не удалось сохранить спор")
	}
	if err := checkSwapped(res, func() error {
		_, err := r.GetByID(ctx, dispute.ID)
		return err
	}); err != nil {
		return err
	}
	dispute.Version++
	return nil
}
