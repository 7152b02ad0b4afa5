package submission_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, events ...event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	svc      *submission.Service
	store    *memory.Store
	ledger   *escrow.Ledger
	clock    *clock
	events   *recorder
	employer uuid.UUID
	worker   uuid.UUID
}

func defaultPolicy() submission.Policy {
	return submission.Policy{
		SubmissionPolicy: entity.SubmissionPolicy{
			ReviewPeriod:        3 * valueobject.Day,
			MaxRevisionRequests: 2,
			RevisionTimeout:     3 * valueobject.Day,
			RejectionTimeout:    3 * valueobject.Day,
			MinReasonLength:     10,
		},
		Split:              valueobject.DefaultSplitPolicy,
		AutomaticRefunds:   true,
		AutoReleasePayment: true,
	}
}

func newHarness(t *testing.T, policy submission.Policy) *harness {
	t.Helper()
	logger.Silence()

	c := &clock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	ledger := escrow.NewLedger(store.Ledger, c.Now)
	rec := &recorder{}

	svc := submission.NewService(submission.Deps{
		Submissions: store.Submissions,
		Disputes:    store.Disputes,
		Audit:       store.Audit,
		Ledger:      ledger,
		Tx:          store.Tx,
		Events:      rec,
		Now:         c.Now,
	}, policy)

	return &harness{svc: svc, store: store, ledger: ledger, clock: c, events: rec, employer: uuid.New(), worker: uuid.New()}
}

func (h *harness) submit(t *testing.T) *entity.Submission {
	t.Helper()
	s, err := h.svc.Create(context.Background(), submission.CreateSubmissionInput{
		JobID:      uuid.New(),
		EmployerID: h.employer,
		WorkerID:   h.worker,
		Amount:     valueobject.Money{Amount: 5000, Currency: "USD"},
		Proof:      entity.WorkProof{Message: "отчёт во вложении", FileRefs: []string{"proofs/report.pdf"}},
	})
	require.NoError(t, err)
	return s
}

func (h *harness) rejected(t *testing.T) *entity.Submission {
	t.Helper()
	s := h.submit(t)
	s, err := h.svc.Reject(context.Background(), s.ID, h.employer, "работа не соответствует заданию")
	require.NoError(t, err)
	return s
}

func (h *harness) reservation(t *testing.T, id uuid.UUID) *entity.Reservation {
	t.Helper()
	res, err := h.ledger.GetReservation(context.Background(), id)
	require.NoError(t, err)
	return res
}

func partFor(res *entity.Reservation, to uuid.UUID) int64 {
	var total int64
	for _, p := range res.Parts {
		if p.To == to {
			total += p.Amount.Amount
		}
	}
	return total
}

func TestCreate_ReservesFromEmployer(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := h.submit(t)

	res := h.reservation(t, s.ID)
	assert.Equal(t, valueobject.SubjectKindJob, res.SubjectKind)
	assert.Equal(t, h.employer, res.PayerID)
	assert.Equal(t, entity.ReservationStatusReserved, res.Status)
}

func TestApprove_PaysWorker(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	s := h.submit(t)

	s, err := h.svc.Approve(ctx, s.ID, h.employer)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusApproved, s.Status)
	assert.Equal(t, int64(5000), partFor(h.reservation(t, s.ID), h.worker))

	_, err = h.svc.Approve(ctx, s.ID, h.employer)
	assert.True(t, apperror.IsAlreadyProcessed(err))
	assert.Equal(t, 1, h.events.count(event.TypePaymentReleased))
}

func TestApprove_OnlyEmployer(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := h.submit(t)

	_, err := h.svc.Approve(context.Background(), s.ID, h.worker)
	assert.True(t, apperror.IsForbidden(err))
	assert.False(t, h.reservation(t, s.ID).IsSettled())
}

// Исполнитель не ответил на отклонение вовремя: заказчику возвращается вся сумма.
func TestScenarioD_RejectionTimesOut(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	s := h.rejected(t)

	action, err := h.svc.ApplyDue(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionNone, action)

	h.clock.Advance(3*valueobject.Day + time.Minute)
	action, err = h.svc.ApplyDue(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionRefund, action)

	s, err = h.svc.Get(ctx, s.ID, submission.Viewer{ID: h.worker})
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejectedAccepted, s.Status)

	res := h.reservation(t, s.ID)
	assert.Equal(t, int64(5000), partFor(res, h.employer))
	assert.Equal(t, int64(0), partFor(res, h.worker))

	_, err = h.svc.OpenDispute(ctx, s.ID, h.worker, entity.DisputeClaim{Reason: "работа выполнена по заданию"})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestAcceptRejection_RefundsEmployer(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := h.rejected(t)

	s, err := h.svc.AcceptRejection(context.Background(), s.ID, h.worker)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejectedAccepted, s.Status)
	assert.Equal(t, int64(5000), partFor(h.reservation(t, s.ID), h.employer))
}

func TestRevision_BoundAndResubmit(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	s := h.submit(t)

	for i := 0; i < 2; i++ {
		_, err := h.svc.RequestRevision(ctx, s.ID, h.employer, "добавьте исходники")
		require.NoError(t, err)
		_, err = h.svc.Resubmit(ctx, s.ID, h.worker, entity.WorkProof{Message: "исходники добавлены"})
		require.NoError(t, err)
	}

	_, err := h.svc.RequestRevision(ctx, s.ID, h.employer, "ещё одна правка")
	assert.True(t, apperror.IsInvalidState(err))

	s, err = h.svc.Get(ctx, s.ID, submission.Viewer{Admin: true})
	require.NoError(t, err)
	assert.Equal(t, 2, s.RevisionCount)
	assert.Equal(t, valueobject.SubmissionStatusSubmitted, s.Status)
}

func TestCancelByWorker_RefundsEmployer(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	s := h.submit(t)

	_, err := h.svc.RequestRevision(ctx, s.ID, h.employer, "добавьте исходники")
	require.NoError(t, err)
	s, err = h.svc.CancelByWorker(ctx, s.ID, h.worker)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusCancelledByWorker, s.Status)
	assert.Equal(t, int64(5000), partFor(h.reservation(t, s.ID), h.employer))
}

func TestApplyDue_AutoApprove(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := h.submit(t)

	h.clock.Advance(3*valueobject.Day + time.Minute)
	action, err := h.svc.ApplyDue(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionApprove, action)
	assert.Equal(t, int64(5000), partFor(h.reservation(t, s.ID), h.worker))

	entries, err := h.svc.Audit(context.Background(), s.ID, submission.Viewer{ID: h.employer})
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, submission.ActionAutoApprove, last.Action)
	assert.Equal(t, entity.RoleSystem, last.ActorRole)
}

func TestApplyDue_RespectsDisabledSettings(t *testing.T) {
	policy := defaultPolicy()
	policy.AutoReleasePayment = false
	policy.AutomaticRefunds = false
	h := newHarness(t, policy)
	ctx := context.Background()

	approved := h.submit(t)
	rejected := h.rejected(t)
	h.clock.Advance(4 * valueobject.Day)

	for _, id := range []uuid.UUID{approved.ID, rejected.ID} {
		action, err := h.svc.ApplyDue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.AutoActionNone, action)
		assert.False(t, h.reservation(t, id).IsSettled())
	}
}

func TestDispute_ResolvePartial(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	s := h.rejected(t)

	_, err := h.svc.OpenDispute(ctx, s.ID, h.employer, entity.DisputeClaim{Reason: "заказчик не может открыть спор"})
	assert.True(t, apperror.IsForbidden(err))

	d, err := h.svc.OpenDispute(ctx, s.ID, h.worker, entity.DisputeClaim{Reason: "работа выполнена по заданию"})
	require.NoError(t, err)
	assert.Equal(t, h.employer, d.RespondentID)

	_, err = h.svc.OpenDispute(ctx, s.ID, h.worker, entity.DisputeClaim{Reason: "повторная жалоба на отклонение"})
	assert.True(t, apperror.IsConflict(err))

	// Спор останавливает таймер отклонения.
	h.clock.Advance(10 * valueobject.Day)
	action, err := h.svc.ApplyDue(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionNone, action)

	d, err = h.svc.ResolveDispute(ctx, s.ID, uuid.New(), valueobject.DecisionPartialRefund, "работа выполнена частично")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolvedPartialSplit, d.Status)

	res := h.reservation(t, s.ID)
	assert.Equal(t, int64(2500), partFor(res, h.employer))
	assert.Equal(t, int64(2250), partFor(res, h.worker))
	assert.Equal(t, int64(250), partFor(res, entity.PlatformAccountID))
	assert.Equal(t, 1, h.events.count(event.TypeDisputeResolved))
}

// Открытый спор по одной работе блокирует спор по другой работе того же исполнителя
// в рамках задания; другие исполнители задания не затронуты.
func TestOpenDispute_OnePendingPerJobAndWorker(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	jobID := uuid.New()

	rejectedFor := func(workerID uuid.UUID) *entity.Submission {
		s, err := h.svc.Create(ctx, submission.CreateSubmissionInput{
			JobID:      jobID,
			EmployerID: h.employer,
			WorkerID:   workerID,
			Amount:     valueobject.Money{Amount: 5000, Currency: "USD"},
			Proof:      entity.WorkProof{Message: "отчёт во вложении", FileRefs: []string{"proofs/report.pdf"}},
		})
		require.NoError(t, err)
		s, err = h.svc.Reject(ctx, s.ID, h.employer, "работа не соответствует заданию")
		require.NoError(t, err)
		return s
	}

	first := rejectedFor(h.worker)
	second := rejectedFor(h.worker)
	other := rejectedFor(uuid.New())

	_, err := h.svc.OpenDispute(ctx, first.ID, h.worker, entity.DisputeClaim{Reason: "работа выполнена по заданию"})
	require.NoError(t, err)

	_, err = h.svc.OpenDispute(ctx, second.ID, h.worker, entity.DisputeClaim{Reason: "вторая работа тоже по заданию"})
	assert.True(t, apperror.IsConflict(err))
	got, err := h.svc.Get(ctx, second.ID, submission.Viewer{ID: h.worker})
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejected, got.Status)

	_, err = h.svc.OpenDispute(ctx, other.ID, other.WorkerID, entity.DisputeClaim{Reason: "работа выполнена по заданию"})
	require.NoError(t, err)

	// После решения первого спора исполнитель может оспорить вторую работу.
	_, err = h.svc.ResolveDispute(ctx, first.ID, uuid.New(), valueobject.DecisionRefundBuyer, "работа не принята заказчиком")
	require.NoError(t, err)
	_, err = h.svc.OpenDispute(ctx, second.ID, h.worker, entity.DisputeClaim{Reason: "вторая работа тоже по заданию"})
	require.NoError(t, err)
}

func TestGet_HidesFromOutsiders(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	s := h.submit(t)

	_, err := h.svc.Get(context.Background(), s.ID, submission.Viewer{ID: uuid.New()})
	assert.True(t, apperror.IsForbidden(err))
}

func TestListByUser(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.submit(t)
	h.submit(t)

	list, err := h.svc.ListByUser(context.Background(), h.worker, entity.RoleWorker, repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = h.svc.ListByUser(context.Background(), h.worker, entity.RoleEmployer, repository.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.svc.ListByUser(context.Background(), h.worker, entity.RoleBuyer, repository.ListFilter{})
	assert.True(t, apperror.IsValidation(err))
}
