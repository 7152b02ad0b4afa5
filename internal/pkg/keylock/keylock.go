// Package keylock сериализует операции над одним объектом (заказом, работой),
// не блокируя операции над другими объектами.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock хранит по мьютексу на ключ. Неиспользуемые мьютексы удаляются.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New создаёт пустой набор блокировок.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock захватывает блокировку по ключу и возвращает функцию освобождения.
func (k *KeyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len возвращает количество ключей, по которым есть захваченные или ожидающие блокировки.
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
