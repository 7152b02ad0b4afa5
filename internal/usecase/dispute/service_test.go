package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
	"github.com/ignatzorin/escrow-engine/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-engine/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
)

type fixture struct {
	svc         *dispute.Service
	orders      *order.Service
	submissions *submission.Service
	ledger      *escrow.Ledger
	buyer       uuid.UUID
	seller      uuid.UUID
	admin       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.Silence()

	now := func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }
	store := memory.NewStore()
	locks := keylock.New()
	ledger := escrow.NewLedger(store.Ledger, now)

	orders := order.NewService(order.Deps{
		Orders: store.Orders, Disputes: store.Disputes, Audit: store.Audit,
		Ledger: ledger, Tx: store.Tx, Locks: locks, Now: now,
	}, order.Policy{
		OrderPolicy: entity.OrderPolicy{AcceptanceWindow: 48 * time.Hour, ReviewPeriod: 3 * valueobject.Day, MinReasonLength: 10, MaxExtensionDays: 30},
		Split:       valueobject.DefaultSplitPolicy,
	})
	submissions := submission.NewService(submission.Deps{
		Submissions: store.Submissions, Disputes: store.Disputes, Audit: store.Audit,
		Ledger: ledger, Tx: store.Tx, Locks: locks, Now: now,
	}, submission.Policy{
		SubmissionPolicy: entity.SubmissionPolicy{ReviewPeriod: 3 * valueobject.Day, MaxRevisionRequests: 2, RevisionTimeout: 3 * valueobject.Day, RejectionTimeout: 3 * valueobject.Day, MinReasonLength: 10},
		Split:            valueobject.DefaultSplitPolicy,
	})

	svc := dispute.NewService(dispute.Deps{
		Disputes: store.Disputes, Audit: store.Audit, Tx: store.Tx, Locks: locks,
		Orders: orders, Submissions: submissions, Now: now,
	})
	return &fixture{svc: svc, orders: orders, submissions: submissions, ledger: ledger,
		buyer: uuid.New(), seller: uuid.New(), admin: uuid.New()}
}

func (f *fixture) deliveredOrder(t *testing.T) *entity.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Create(ctx, order.CreateOrderInput{
		BuyerID: f.buyer, SellerID: f.seller, Title: "Перевод документации",
		Price: valueobject.Money{Amount: 10000, Currency: "USD"}, DeliveryDays: 5,
	})
	require.NoError(t, err)
	_, err = f.orders.Accept(ctx, o.ID, f.seller)
	require.NoError(t, err)
	_, err = f.orders.Start(ctx, o.ID, f.seller)
	require.NoError(t, err)
	o, err = f.orders.SubmitDelivery(ctx, o.ID, f.seller, entity.Deliverable{Message: "перевод готов", FileRefs: []string{"deliveries/doc.pdf"}})
	require.NoError(t, err)
	return o
}

func TestOpenAndResolveOrderDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.deliveredOrder(t)

	d, err := f.svc.Open(ctx, valueobject.SubjectKindOrder, o.ID, f.buyer, entity.DisputeClaim{Reason: "перевод выполнен машинно"})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleBuyer, d.ClaimantRole)

	d, err = f.svc.Resolve(ctx, d.ID, f.admin, valueobject.DecisionRefundBuyer, "качество перевода неприемлемо")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolvedFavorBuyer, d.Status)

	res, err := f.ledger.GetReservation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, res.IsSettled())

	_, err = f.svc.Resolve(ctx, d.ID, f.admin, valueobject.DecisionPaySeller, "повторное решение спора")
	assert.ErrorIs(t, err, apperror.ErrAlreadySettled)
}

func TestResolveJobDispute_FavorWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	employer, worker := uuid.New(), uuid.New()

	s, err := f.submissions.Create(ctx, submission.CreateSubmissionInput{
		JobID: uuid.New(), EmployerID: employer, WorkerID: worker,
		Amount: valueobject.Money{Amount: 3000, Currency: "USD"},
		Proof:  entity.WorkProof{Message: "ссылка на результат", Links: []string{"https://example.com/result"}},
	})
	require.NoError(t, err)
	_, err = f.submissions.Reject(ctx, s.ID, employer, "результат не открывается")
	require.NoError(t, err)

	d, err := f.svc.Open(ctx, valueobject.SubjectKindJob, s.ID, worker, entity.DisputeClaim{Reason: "ссылка работает, проверьте ещё раз"})
	require.NoError(t, err)

	d, err = f.svc.Resolve(ctx, d.ID, f.admin, valueobject.DecisionPaySeller, "результат доступен и корректен")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolvedFavorWorker, d.Status)
}

func TestAddEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.deliveredOrder(t)

	d, err := f.svc.Open(ctx, valueobject.SubjectKindOrder, o.ID, f.buyer, entity.DisputeClaim{Reason: "перевод выполнен машинно"})
	require.NoError(t, err)

	_, err = f.svc.AddEvidence(ctx, d.ID, uuid.New(), []string{"evidence/x.png"})
	assert.True(t, apperror.IsForbidden(err))

	d, err = f.svc.AddEvidence(ctx, d.ID, f.seller, []string{"evidence/original.docx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evidence/original.docx"}, d.Evidence)

	entries, err := f.orders.Audit(ctx, o.ID, order.Viewer{Admin: true})
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, dispute.ActionAddEvidence, last.Action)
	assert.Equal(t, entity.RoleSeller, last.ActorRole)

	_, err = f.svc.Resolve(ctx, d.ID, f.admin, valueobject.DecisionPaySeller, "перевод выполнен вручную")
	require.NoError(t, err)
	_, err = f.svc.AddEvidence(ctx, d.ID, f.buyer, []string{"evidence/late.png"})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestGetAndList_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.deliveredOrder(t)

	d, err := f.svc.Open(ctx, valueobject.SubjectKindOrder, o.ID, f.buyer, entity.DisputeClaim{Reason: "перевод выполнен машинно"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, d.ID, uuid.New(), false)
	assert.True(t, apperror.IsForbidden(err))
	got, err := f.svc.Get(ctx, d.ID, f.seller, false)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	list, err := f.svc.ListBySubject(ctx, valueobject.SubjectKindOrder, o.ID, uuid.New(), true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListBySubject(ctx, valueobject.SubjectKindOrder, o.ID, uuid.New(), false)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.Open(ctx, valueobject.SubjectKind("invoice"), o.ID, f.buyer, entity.DisputeClaim{Reason: "неизвестная сделка"})
	assert.True(t, apperror.IsValidation(err))
}
