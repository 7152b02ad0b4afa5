package memory

// Store собирает все in-memory репозитории. Используется в тестах и при STORAGE_DRIVER=memory.
type Store struct {
	Orders      *OrderRepository
	Submissions *SubmissionRepository
	Disputes    *DisputeRepository
	Ledger      *LedgerRepository
	Audit       *AuditRepository
	Tx          *Transactor
}

func NewStore() *Store {
	return &Store{
		Orders:      NewOrderRepository(),
		Submissions: NewSubmissionRepository(),
		Disputes:    NewDisputeRepository(),
		Ledger:      NewLedgerRepository(),
		Audit:       NewAuditRepository(),
		Tx:          NewTransactor(),
	}
}
