package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

type txKey struct{}

// executor: общее подмножество *sqlx.DB и *sqlx.Tx.
type executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Transactor открывает транзакцию и кладёт её в контекст; репозитории
// этого пакета берут соединение из контекста.
type Transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось начать транзакцию")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать транзакцию")
	}
	return nil
}

func conn(ctx context.Context, db *sqlx.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func dbError(err error, message string) error {
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, message)
}

func toJSON(v any) (types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("persistence: marshal %T: %w", v, err)
	}
	return types.JSONText(b), nil
}

// toNullJSON сохраняет nil-указатель как SQL NULL.
func toNullJSON[T any](v *T) (types.NullJSONText, error) {
	if v == nil {
		return types.NullJSONText{}, nil
	}
	b, err := toJSON(v)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: b, Valid: true}, nil
}

func fromNullJSON[T any](src types.NullJSONText) (*T, error) {
	if !src.Valid || len(src.JSONText) == 0 {
		return nil, nil
	}
	var v T
	if err := src.Unmarshal(&v); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal %T: %w", v, err)
	}
	return &v, nil
}
