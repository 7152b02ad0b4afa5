package memory

import (
	"context"
	"sync"
)

type txKey struct{}

// journal накапливает операции отката для изменений внутри транзакции.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

func (j *journal) add(fn func()) {
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

func (j *journal) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// Transactor эмулирует транзакции для in-memory хранилища журналом отката.
type Transactor struct{}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// onRollback регистрирует откат, если вызов идёт внутри транзакции.
func onRollback(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.add(fn)
	}
}
