package persistence

import "github.com/jmoiron/sqlx"

// Store: набор PostgreSQL-репозиториев, разделяющих одно подключение.
type Store struct {
	Orders      *OrderRepository
	Submissions *SubmissionRepository
	Disputes    *DisputeRepository
	Ledger      *LedgerRepository
	Audit       *AuditRepository
	Tx          *Transactor
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Orders:      NewOrderRepository(db),
		Submissions: NewSubmissionRepository(db),
		Disputes:    NewDisputeRepository(db),
		Ledger:      NewLedgerRepository(db),
		Audit:       NewAuditRepository(db),
		Tx:          NewTransactor(db),
	}
}
