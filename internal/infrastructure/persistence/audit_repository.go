package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type auditRow struct {
	ID          uuid.UUID          `db:"id"`
	SubjectKind string             `db:"subject_kind"`
	SubjectID   uuid.UUID          `db:"subject_id"`
	Action      string             `db:"action"`
	ActorID     uuid.UUID          `db:"actor_id"`
	ActorRole   string             `db:"actor_role"`
	Before      types.NullJSONText `db:"before_state"`
	After       types.NullJSONText `db:"after_state"`
	CreatedAt   time.Time          `db:"created_at"`
}

func rawToNullJSON(raw json.RawMessage) types.NullJSONText {
	if len(raw) == 0 {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}
}

func nullJSONToRaw(v types.NullJSONText) json.RawMessage {
	if !v.Valid {
		return nil
	}
	return json.RawMessage(v.JSONText)
}

func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	row := auditRow{
		ID:          entry.ID,
		SubjectKind: string(entry.SubjectKind),
		SubjectID:   entry.SubjectID,
		Action:      entry.Action,
		ActorID:     entry.ActorID,
		ActorRole:   string(entry.ActorRole),
		Before:      rawToNullJSON(entry.Before),
		After:       rawToNullJSON(entry.After),
		CreatedAt:   entry.CreatedAt,
	}
	query := `INSERT INTO audit_entries (id, subject_kind, subject_id, action, actor_id, actor_role, before_state, after_state, created_at)
		VALUES (:id, :subject_kind, :subject_id, :action, :actor_id, :actor_role, :before_state, :after_state, :created_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, row); err != nil {
		return dbError(err, "не удалось записать журнал")
	}
	return nil
}

func (r *AuditRepository) ListBySubject(ctx context.Context, kind valueobject.SubjectKind, subjectID uuid.UUID) ([]*entity.AuditEntry, error) {
	var rows []auditRow
	query := `SELECT id, subject_kind, subject_id, action, actor_id, actor_role, before_state, after_state, created_at
		FROM audit_entries WHERE subject_kind = $1 AND subject_id = $2 ORDER BY created_at, id`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, string(kind), subjectID); err != nil {
		return nil, dbError(err, "не удалось получить журнал")
	}

	result := make([]*entity.AuditEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, &entity.AuditEntry{
			ID:          row.ID,
			SubjectKind: valueobject.SubjectKind(row.SubjectKind),
			SubjectID:   row.SubjectID,
			Action:      row.Action,
			ActorID:     row.ActorID,
			ActorRole:   entity.Role(row.ActorRole),
			Before:      nullJSONToRaw(row.Before),
			After:       nullJSONToRaw(row.After),
			CreatedAt:   row.CreatedAt,
		})
	}
	return result, nil
}
