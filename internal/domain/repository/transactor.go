package repository

import "context"

// Transactor выполняет fn в одной транзакции: все изменения репозиториев внутри fn
// применяются целиком или не применяются вовсе.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
