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
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type SubmissionRepository struct {
	db *sqlx.DB
}

func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

type submissionRow struct {
	ID                uuid.UUID          `db:"id"`
	JobID             uuid.UUID          `db:"job_id"`
	EmployerID        uuid.UUID          `db:"employer_id"`
	WorkerID          uuid.UUID          `db:"worker_id"`
	Amount            int64              `db:"amount"`
	Currency          string             `db:"currency"`
	Status            string             `db:"status"`
	Proof             types.JSONText     `db:"proof"`
	RevisionCount     int                `db:"revision_count"`
	RevisionNote      string             `db:"revision_note"`
	RejectionReason   string             `db:"rejection_reason"`
	SubmittedAt       time.Time          `db:"submitted_at"`
	ReviewDeadline    *time.Time         `db:"review_deadline"`
	RejectionDeadline *time.Time         `db:"rejection_deadline"`
	RevisionDeadline  *time.Time         `db:"revision_deadline"`
	ReviewedAt        *time.Time         `db:"reviewed_at"`
	ClosedAt          *time.Time         `db:"closed_at"`
	DisputeID         *uuid.UUID         `db:"dispute_id"`
	Resolution        types.NullJSONText `db:"resolution"`
	CreatedAt         time.Time          `db:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at"`
	Version           int64              `db:"version"`
}

const submissionColumns = `id, job_id, employer_id, worker_id, amount, currency, status, proof,
	revision_count, revision_note, rejection_reason, submitted_at, review_deadline, rejection_deadline,
	revision_deadline, reviewed_at, closed_at, dispute_id, resolution, created_at, updated_at, version`

func newSubmissionRow(s *entity.Submission) (*submissionRow, error) {
	proof, err := toJSON(s.Proof)
	if err != nil {
		return nil, err
	}
	resolution, err := toNullJSON(s.Resolution)
	if err != nil {
		return nil, err
	}
	return &submissionRow{
		ID:                s.ID,
		JobID:             s.JobID,
		EmployerID:        s.EmployerID,
		WorkerID:          s.WorkerID,
		Amount:            s.Amount.Amount,
		Currency:          s.Amount.Currency,
		Status:            string(s.Status),
		Proof:             proof,
		RevisionCount:     s.RevisionCount,
		RevisionNote:      s.RevisionNote,
		RejectionReason:   s.RejectionReason,
		SubmittedAt:       s.SubmittedAt,
		ReviewDeadline:    s.ReviewDeadline,
		RejectionDeadline: s.RejectionDeadline,
		RevisionDeadline:  s.RevisionDeadline,
		ReviewedAt:        s.ReviewedAt,
		ClosedAt:          s.ClosedAt,
		DisputeID:         s.DisputeID,
		Resolution:        resolution,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Version:           s.Version,
	}, nil
}

func (row *submissionRow) toEntity() (*entity.Submission, error) {
	s := &entity.Submission{
		ID:                row.ID,
		JobID:             row.JobID,
		EmployerID:        row.EmployerID,
		WorkerID:          row.WorkerID,
		Amount:            valueobject.Money{Amount: row.Amount, Currency: row.Currency},
		Status:            valueobject.SubmissionStatus(row.Status),
		RevisionCount:     row.RevisionCount,
		RevisionNote:      row.RevisionNote,
		RejectionReason:   row.RejectionReason,
		SubmittedAt:       row.SubmittedAt,
		ReviewDeadline:    row.ReviewDeadline,
		RejectionDeadline: row.RejectionDeadline,
		RevisionDeadline:  row.RevisionDeadline,
		ReviewedAt:        row.ReviewedAt,
		ClosedAt:          row.ClosedAt,
		DisputeID:         row.DisputeID,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		Version:           row.Version,
	}
	if err := row.Proof.Unmarshal(&s.Proof); err != nil {
		return nil, err
	}
	resolution, err := fromNullJSON[entity.Resolution](row.Resolution)
	if err != nil {
		return nil, err
	}
	s.Resolution = resolution
	return s, nil
}

func (r *SubmissionRepository) Create(ctx context.Context, submission *entity.Submission) error {
	submission.Version = 1
	row, err := newSubmissionRow(submission)
	if err != nil {
		return dbError(err, "не удалось подготовить работу")
	}

	query := `INSERT INTO submissions (` + submissionColumns + `) VALUES (
		:id, :job_id, :employer_id, :worker_id, :amount, :currency, :status, :proof,
		:revision_count, :revision_note, :rejection_reason, :submitted_at, :review_deadline, :rejection_deadline,
		:revision_deadline, :reviewed_at, :closed_at, :dispute_id, :resolution, :created_at, :updated_at, :version)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "работа уже существует")
		}
		return dbError(err, "не удалось сохранить работу")
	}
	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	var row submissionRow
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrSubmissionNotFound
		}
		return nil, dbError(err, "не удалось получить работу")
	}
	return row.toEntity()
}

func (r *SubmissionRepository) CompareAndSwap(ctx context.Context, submission *entity.Submission) error {
	row, err := newSubmissionRow(submission)
	if err != nil {
		return dbError(err, "не удалось подготовить работу")
	}

	query := `
		UPDATE submissions SET
			status = :status, proof = :proof, revision_count = :revision_count,
			revision_note = :revision_note, rejection_reason = :rejection_reason, submitted_at = :submitted_at,
			review_deadline = :review_deadline, rejection_deadline = :rejection_deadline,
			revision_deadline = :revision_deadline, reviewed_at = :reviewed_at, closed_at = :closed_at,
			dispute_id = :dispute_id, resolution = :resolution, updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDisputeExists
		}
		return dbError(err, "не удалось сохранить работу")
	}
	if err := checkSwapped(res, func() error {
		_, err := r.GetByID(ctx, submission.ID)
		return err
	}); err != nil {
		return err
	}
	submission.Version++
	return nil
}

func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Submission, error) {
	filter = filter.Normalize()

	where := `(employer_id = $1 OR worker_id = $1)`
	switch role {
	case entity.RoleEmployer:
		where = `employer_id = $1`
	case entity.RoleWorker:
		where = `worker_id = $1`
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE ` + where + ` AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	var rows []submissionRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, userID, filter.Status, filter.Limit, filter.Offset); err != nil {
		return nil, dbError(err, "не удалось получить список работ")
	}

	result := make([]*entity.Submission, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toEntity()
		if err != nil {
			return nil, dbError(err, "не удалось прочитать работу")
		}
		result = append(result, s)
	}
	return result, nil
}

// ListDue повторяет правила Submission.DueAction на стороне базы.
func (r *SubmissionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM (
			SELECT id, CASE status
				WHEN 'submitted' THEN review_deadline
				WHEN 'rejected' THEN rejection_deadline
				WHEN 'revision_requested' THEN revision_deadline
			END AS due_at
			FROM submissions
			WHERE status IN ('submitted', 'rejected', 'revision_requested')
		) due
		WHERE due_at < $1
		ORDER BY due_at
		LIMIT NULLIF($2, 0)`
	var ids []uuid.UUID
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, dbError(err, "не удалось получить просроченные работы")
	}
	return ids, nil
}

func (r *SubmissionRepository) FindDisputed(ctx context.Context, jobID, workerID uuid.UUID) (*entity.Submission, error) {
	var row submissionRow
	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE job_id = $1 AND worker_id = $2 AND status = 'disputed' LIMIT 1`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, jobID, workerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError(err, "не удалось проверить споры по заданию")
	}
	return row.toEntity()
}
