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

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderRow struct {
	ID                 uuid.UUID          `db:"id"`
	BuyerID            uuid.UUID          `db:"buyer_id"`
	SellerID           uuid.UUID          `db:"seller_id"`
	Title              string             `db:"title"`
	PriceAmount        int64              `db:"price_amount"`
	PriceCurrency      string             `db:"price_currency"`
	Status             string             `db:"status"`
	DeliveryTimeNs     int64              `db:"delivery_time_ns"`
	CreatedAt          time.Time          `db:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at"`
	AcceptedAt         *time.Time         `db:"accepted_at"`
	StartedAt          *time.Time         `db:"started_at"`
	DeliveredAt        *time.Time         `db:"delivered_at"`
	DisputedAt         *time.Time         `db:"disputed_at"`
	CompletedAt        *time.Time         `db:"completed_at"`
	CancelledAt        *time.Time         `db:"cancelled_at"`
	AcceptanceDeadline *time.Time         `db:"acceptance_deadline"`
	ExpiresAt          *time.Time         `db:"expires_at"`
	ReviewDeadline     *time.Time         `db:"review_deadline"`
	ExtensionRequested bool               `db:"extension_requested"`
	ExtensionDays      int                `db:"extension_days"`
	ExtensionReason    string             `db:"extension_reason"`
	Cancellation       types.NullJSONText `db:"cancellation"`
	Deliverable        types.NullJSONText `db:"deliverable"`
	Messages           types.JSONText     `db:"messages"`
	DisputeID          *uuid.UUID         `db:"dispute_id"`
	Resolution         types.NullJSONText `db:"resolution"`
	Version            int64              `db:"version"`
}

const orderColumns = `id, buyer_id, seller_id, title, price_amount, price_currency, status, delivery_time_ns,
	created_at, updated_at, accepted_at, started_at, delivered_at, disputed_at, completed_at, cancelled_at,
	acceptance_deadline, expires_at, review_deadline, extension_requested, extension_days, extension_reason,
	cancellation, deliverable, messages, dispute_id, resolution, version`

func newOrderRow(o *entity.Order) (*orderRow, error) {
	row := &orderRow{
		ID:                 o.ID,
		BuyerID:            o.BuyerID,
		SellerID:           o.SellerID,
		Title:              o.Title,
		PriceAmount:        o.Price.Amount,
		PriceCurrency:      o.Price.Currency,
		Status:             string(o.Status),
		DeliveryTimeNs:     int64(o.DeliveryTime),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		AcceptedAt:         o.AcceptedAt,
		StartedAt:          o.StartedAt,
		DeliveredAt:        o.DeliveredAt,
		DisputedAt:         o.DisputedAt,
		CompletedAt:        o.CompletedAt,
		CancelledAt:        o.CancelledAt,
		AcceptanceDeadline: o.AcceptanceDeadline,
		ExpiresAt:          o.ExpiresAt,
		ReviewDeadline:     o.ReviewDeadline,
		ExtensionRequested: o.ExtensionRequested,
		ExtensionDays:      o.ExtensionDays,
		ExtensionReason:    o.ExtensionReason,
		DisputeID:          o.DisputeID,
		Version:            o.Version,
	}

	var err error
	if row.Cancellation, err = toNullJSON(o.Cancellation); err != nil {
		return nil, err
	}
	if row.Deliverable, err = toNullJSON(o.Deliverable); err != nil {
		return nil, err
	}
	if row.Resolution, err = toNullJSON(o.Resolution); err != nil {
		return nil, err
	}
	messages := o.Messages
	if messages == nil {
		messages = []entity.Message{}
	}
	if row.Messages, err = toJSON(messages); err != nil {
		return nil, err
	}
	return row, nil
}

func (row *orderRow) toEntity() (*entity.Order, error) {
	o := &entity.Order{
		ID:                 row.ID,
		BuyerID:            row.BuyerID,
		SellerID:           row.SellerID,
		Title:              row.Title,
		Price:              valueobject.Money{Amount: row.PriceAmount, Currency: row.PriceCurrency},
		Status:             valueobject.OrderStatus(row.Status),
		DeliveryTime:       time.Duration(row.DeliveryTimeNs),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		AcceptedAt:         row.AcceptedAt,
		StartedAt:          row.StartedAt,
		DeliveredAt:        row.DeliveredAt,
		DisputedAt:         row.DisputedAt,
		CompletedAt:        row.CompletedAt,
		CancelledAt:        row.CancelledAt,
		AcceptanceDeadline: row.AcceptanceDeadline,
		ExpiresAt:          row.ExpiresAt,
		ReviewDeadline:     row.ReviewDeadline,
		ExtensionRequested: row.ExtensionRequested,
		ExtensionDays:      row.ExtensionDays,
		ExtensionReason:    row.ExtensionReason,
		DisputeID:          row.DisputeID,
		Version:            row.Version,
	}

	var err error
	if o.Cancellation, err = fromNullJSON[entity.Cancellation](row.Cancellation); err != nil {
		return nil, err
	}
	if o.Deliverable, err = fromNullJSON[entity.Deliverable](row.Deliverable); err != nil {
		return nil, err
	}
	if o.Resolution, err = fromNullJSON[entity.Resolution](row.Resolution); err != nil {
		return nil, err
	}
	if len(row.Messages) > 0 {
		if err := row.Messages.Unmarshal(&o.Messages); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	order.Version = 1
	row, err := newOrderRow(order)
	if err != nil {
		return dbError(err, "не удалось подготовить заказ")
	}

	query := `INSERT INTO orders (` + orderColumns + `) VALUES (
		:id, :buyer_id, :seller_id, :title, :price_amount, :price_currency, :status, :delivery_time_ns,
		:created_at, :updated_at, :accepted_at, :started_at, :delivered_at, :disputed_at, :completed_at, :cancelled_at,
		:acceptance_deadline, :expires_at, :review_deadline, :extension_requested, :extension_days, :extension_reason,
		:cancellation, :deliverable, :messages, :dispute_id, :resolution, :version)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "заказ уже существует")
		}
		return dbError(err, "не удалось создать заказ")
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	var row orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, dbError(err, "не удалось получить заказ")
	}
	return row.toEntity()
}

// CompareAndSwap сохраняет заказ, только если версия в базе не изменилась с момента чтения.
func (r *OrderRepository) CompareAndSwap(ctx context.Context, order *entity.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return dbError(err, "не удалось подготовить заказ")
	}

	query := `
		UPDATE orders SET
			status = :status, updated_at = :updated_at,
			accepted_at = :accepted_at, started_at = :started_at, delivered_at = :delivered_at,
			disputed_at = :disputed_at, completed_at = :completed_at, cancelled_at = :cancelled_at,
			acceptance_deadline = :acceptance_deadline, expires_at = :expires_at, review_deadline = :review_deadline,
			extension_requested = :extension_requested, extension_days = :extension_days, extension_reason = :extension_reason,
			cancellation = :cancellation, deliverable = :deliverable, messages = :messages,
			dispute_id = :dispute_id, resolution = :resolution,
			version = version + 1
		WHERE id = :id AND version = :version`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, row)
	if err != nil {
		return dbError(err, "не удалось сохранить заказ")
	}
	if err := checkSwapped(res, func() error {
		_, err := r.GetByID(ctx, order.ID)
		return err
	}); err != nil {
		return err
	}
	order.Version++
	return nil
}

// checkSwapped отличает устаревшую версию от отсутствующей записи.
func checkSwapped(res sql.Result, exists func() error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления")
	}
	if n == 1 {
		return nil
	}
	if err := exists(); err != nil {
		return err
	}
	return apperror.ErrVersionConflict
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role entity.Role, filter repository.ListFilter) ([]*entity.Order, error) {
	filter = filter.Normalize()

	where := `(buyer_id = $1 OR seller_id = $1)`
	switch role {
	case entity.RoleBuyer:
		where = `buyer_id = $1`
	case entity.RoleSeller:
		where = `seller_id = $1`
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + ` AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	var rows []orderRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, userID, filter.Status, filter.Limit, filter.Offset); err != nil {
		return nil, dbError(err, "не удалось получить список заказов")
	}

	result := make([]*entity.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toEntity()
		if err != nil {
			return nil, dbError(err, "не удалось прочитать заказ")
		}
		result = append(result, o)
	}
	return result, nil
}

// ListDue повторяет правила Order.DueAction на стороне базы.
func (r *OrderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM (
			SELECT id, CASE
				WHEN status = 'awaiting_acceptance' THEN acceptance_deadline
				WHEN status IN ('pending', 'in_progress') THEN expires_at
				WHEN status = 'delivered' THEN review_deadline
			END AS due_at
			FROM orders
			WHERE status IN ('awaiting_acceptance', 'pending', 'in_progress', 'delivered')
		) due
		WHERE due_at < $1
		ORDER BY due_at
		LIMIT NULLIF($2, 0)`
	var ids []uuid.UUID
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, dbError(err, "не удалось получить просроченные заказы")
	}
	return ids, nil
}
