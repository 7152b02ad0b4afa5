package order_test

import (
	"context"
	"sync"
	"sync/atomic"
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
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
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
	svc    *order.Service
	store  *memory.Store
	ledger *escrow.Ledger
	clock  *clock
	events *recorder
	buyer  uuid.UUID
	seller uuid.UUID
}

func defaultPolicy() order.Policy {
	return order.Policy{
		OrderPolicy: entity.OrderPolicy{
			AcceptanceWindow: 48 * time.Hour,
			ReviewPeriod:     3 * valueobject.Day,
			MinReasonLength:  10,
			MaxExtensionDays: 30,
		},
		Split:              valueobject.DefaultSplitPolicy,
		AutomaticRefunds:   true,
		AutoReleasePayment: true,
	}
}

func newHarness(t *testing.T, policy order.Policy) *harness {
	t.Helper()
	logger.Silence()

	c := &clock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	ledger := escrow.NewLedger(store.Ledger, c.Now)
	rec := &recorder{}

	svc := order.NewService(order.Deps{
		Orders:   store.Orders,
		Disputes: store.Disputes,
		Audit:    store.Audit,
		Ledger:   ledger,
		Tx:       store.Tx,
		Events:   rec,
		Now:      c.Now,
	}, policy)

	return &harness{svc: svc, store: store, ledger: ledger, clock: c, events: rec, buyer: uuid.New(), seller: uuid.New()}
}

func (h *harness) create(t *testing.T) *entity.Order {
	t.Helper()
	o, err := h.svc.Create(context.Background(), order.CreateOrderInput{
		BuyerID:      h.buyer,
		SellerID:     h.seller,
		Title:        "Дизайн лендинга",
		Price:        valueobject.Money{Amount: 10000, Currency: "USD"},
		DeliveryDays: 7,
	})
	require.NoError(t, err)
	return o
}

func (h *harness) delivered(t *testing.T) *entity.Order {
	t.Helper()
	ctx := context.Background()
	o := h.create(t)
	_, err := h.svc.Accept(ctx, o.ID, h.seller)
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, o.ID, h.seller)
	require.NoError(t, err)
	o, err = h.svc.SubmitDelivery(ctx, o.ID, h.seller, entity.Deliverable{Message: "макеты готовы", Links: []string{"https://figma.com/file/1"}})
	require.NoError(t, err)
	return o
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

func TestCreate_ReservesPrice(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	o := h.create(t)

	res := h.reservation(t, o.ID)
	assert.Equal(t, entity.ReservationStatusReserved, res.Status)
	assert.Equal(t, int64(10000), res.Amount.Amount)
	assert.Equal(t, 1, h.events.count(event.TypeOrderStatusChanged))
}

func TestCreate_RejectsPriceAboveMaximum(t *testing.T) {
	h := newHarness(t, defaultPolicy())

	_, err := valueobject.NewMoneyFromMajor(1e16, "USD")
	assert.True(t, apperror.IsValidation(err))

	_, err = h.svc.Create(context.Background(), order.CreateOrderInput{
		BuyerID:      h.buyer,
		SellerID:     h.seller,
		Title:        "Дизайн лендинга",
		Price:        valueobject.Money{Amount: valueobject.MaxAmount + 1, Currency: "USD"},
		DeliveryDays: 7,
	})
	assert.True(t, apperror.IsValidation(err))
}

// Спор по заказу на максимальную сумму делится без переполнения.
func TestResolveDispute_MaximumPriceSplitsCompletely(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()

	o, err := h.svc.Create(ctx, order.CreateOrderInput{
		BuyerID:      h.buyer,
		SellerID:     h.seller,
		Title:        "Дизайн лендинга",
		Price:        valueobject.Money{Amount: valueobject.MaxAmount, Currency: "USD"},
		DeliveryDays: 7,
	})
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, o.ID, h.seller)
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, o.ID, h.seller)
	require.NoError(t, err)
	_, err = h.svc.SubmitDelivery(ctx, o.ID, h.seller, entity.Deliverable{Message: "макеты готовы", Links: []string{"https://figma.com/file/1"}})
	require.NoError(t, err)
	_, err = h.svc.OpenDispute(ctx, o.ID, h.buyer, entity.DisputeClaim{Reason: "работа не соответствует заданию"})
	require.NoError(t, err)

	d, err := h.svc.ResolveDispute(ctx, o.ID, uuid.New(), valueobject.DecisionPartialRefund, "делим пополам по итогам проверки")
	require.NoError(t, err)
	require.NotNil(t, d.Resolution)
	assert.Equal(t, valueobject.MaxAmount, d.Resolution.Payment.Total().Amount)
	assert.GreaterOrEqual(t, d.Resolution.Payment.BuyerRefund.Amount, int64(0))

	got, err := h.svc.Get(ctx, o.ID, order.Viewer{ID: h.buyer})
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusDisputeResolved, got.Status)
	assert.True(t, h.reservation(t, o.ID).IsSettled())
}

// Продавец отклоняет заказ до дедлайна: покупателю возвращается вся сумма.
func TestScenarioA_SellerDeclines(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	o := h.create(t)

	o, err := h.svc.Decline(context.Background(), o.ID, h.seller, "не работаю с такой тематикой")
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusCancelled, o.Status)
	assert.Equal(t, entity.CancellationRejectedBySeller, o.Cancellation.Kind)

	res := h.reservation(t, o.ID)
	assert.True(t, res.IsSettled())
	assert.Equal(t, int64(10000), partFor(res, h.buyer))
	assert.Equal(t, 1, h.events.count(event.TypePaymentReleased))
}

// Покупатель не проверил работу вовремя: продавец получает всю сумму без комиссии.
func TestScenarioB_AutoReleaseAfterReview(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	o := h.delivered(t)

	h.clock.Advance(3*valueobject.Day + time.Minute)
	action, err := h.svc.ApplyDue(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionComplete, action)

	o, err = h.svc.Get(context.Background(), o.ID, order.Viewer{ID: h.buyer})
	require.NoError(t, err)
	assert.Equal(t, valueobject.OrderStatusCompleted, o.Status)

	res := h.reservation(t, o.ID)
	assert.Equal(t, int64(10000), partFor(res, h.seller))
	assert.Equal(t, int64(0), partFor(res, entity.PlatformAccountID))

	action, err = h.svc.ApplyDue(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionNone, action)
	assert.Equal(t, 1, h.events.count(event.TypePaymentReleased))
}

// Частичный возврат по спору на заказ $100: 50 / 45 / 5.
func TestScenarioC_PartialRefundSplit(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)

	d, err := h.svc.OpenDispute(ctx, o.ID, h.buyer, entity.DisputeClaim{Reason: "сделано только полработы"})
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusPending, d.Status)

	admin := uuid.New()
	d, err = h.svc.ResolveDispute(ctx, o.ID, admin, valueobject.DecisionPartialRefund, "обе стороны частично правы")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolvedPartialSplit, d.Status)
	assert.Equal(t, int64(5000), d.Resolution.Payment.BuyerRefund.Amount)
	assert.Equal(t, int64(4500), d.Resolution.Payment.SellerPayment.Amount)
	assert.Equal(t, int64(500), d.Resolution.Payment.PlatformFee.Amount)

	res := h.reservation(t, o.ID)
	assert.Equal(t, int64(5000), partFor(res, h.buyer))
	assert.Equal(t, int64(4500), partFor(res, h.seller))
	assert.Equal(t, int64(500), partFor(res, entity.PlatformAccountID))
	assert.Equal(t, int64(10000), res.SettledTotal().Amount)

	_, err = h.svc.ResolveDispute(ctx, o.ID, admin, valueobject.DecisionRefundBuyer, "пересмотр решения спора")
	assert.ErrorIs(t, err, apperror.ErrAlreadySettled)

	entries, err := h.svc.Audit(ctx, o.ID, order.Viewer{Admin: true})
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, order.ActionResolveDispute, last.Action)
	assert.Equal(t, entity.RoleAdmin, last.ActorRole)
	assert.Contains(t, string(last.After), `"platform_fee"`)
}

// Второй спор по заказу с открытым спором отклоняется, первый не меняется.
func TestScenarioE_SecondDisputeConflicts(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)

	first, err := h.svc.OpenDispute(ctx, o.ID, h.buyer, entity.DisputeClaim{Reason: "работа не соответствует ТЗ"})
	require.NoError(t, err)

	_, err = h.svc.OpenDispute(ctx, o.ID, h.seller, entity.DisputeClaim{Reason: "покупатель не отвечает"})
	assert.True(t, apperror.IsConflict(err))

	stored, err := h.store.Disputes.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Reason, stored.Reason)
	assert.Equal(t, h.buyer, stored.ClaimantID)
	assert.Equal(t, 1, h.events.count(event.TypeDisputeOpened))
}

func TestReleasePayment_Idempotent(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)

	_, err := h.svc.ReleasePayment(ctx, o.ID, h.buyer)
	require.NoError(t, err)

	_, err = h.svc.ReleasePayment(ctx, o.ID, h.buyer)
	assert.ErrorIs(t, err, apperror.ErrAlreadyCompleted)
	assert.Equal(t, int64(10000), partFor(h.reservation(t, o.ID), h.seller))
}

func TestSingleSettlementUnderRace(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)
	h.clock.Advance(3*valueobject.Day + time.Minute)

	var successes int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.svc.ReleasePayment(ctx, o.ID, h.buyer); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if action, err := h.svc.ApplyDue(ctx, o.ID); err == nil && action != entity.AutoActionNone {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, 1, h.events.count(event.TypePaymentReleased))
	assert.Equal(t, int64(10000), h.reservation(t, o.ID).SettledTotal().Amount)
}

func TestApplyDue_AcceptanceExpired(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.create(t)

	h.clock.Advance(49 * time.Hour)
	_, err := h.svc.Accept(ctx, o.ID, h.seller)
	assert.True(t, apperror.IsExpired(err))
	assert.True(t, apperror.IsAlreadyProcessed(err))

	action, err := h.svc.ApplyDue(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionCancel, action)

	o, err = h.svc.Get(ctx, o.ID, order.Viewer{ID: h.seller})
	require.NoError(t, err)
	assert.Equal(t, entity.CancellationAcceptanceExpired, o.Cancellation.Kind)
	assert.Equal(t, int64(10000), partFor(h.reservation(t, o.ID), h.buyer))
}

func TestApplyDue_RespectsDisabledSettings(t *testing.T) {
	policy := defaultPolicy()
	policy.AutomaticRefunds = false
	policy.AutoReleasePayment = false
	h := newHarness(t, policy)
	ctx := context.Background()

	pending := h.create(t)
	delivered := h.delivered(t)
	h.clock.Advance(10 * valueobject.Day)

	for _, id := range []uuid.UUID{pending.ID, delivered.ID} {
		action, err := h.svc.ApplyDue(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.AutoActionNone, action)
		assert.False(t, h.reservation(t, id).IsSettled())
	}
}

func TestApplyDue_SkipsDisputed(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)
	_, err := h.svc.OpenDispute(ctx, o.ID, h.seller, entity.DisputeClaim{Reason: "покупатель пропал"})
	require.NoError(t, err)

	h.clock.Advance(30 * valueobject.Day)
	action, err := h.svc.ApplyDue(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AutoActionNone, action)
}

func TestCancel_RefundsBuyer(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.create(t)
	_, err := h.svc.Accept(ctx, o.ID, h.seller)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, o.ID, h.buyer, "коротко")
	assert.True(t, apperror.IsValidation(err))
	assert.False(t, h.reservation(t, o.ID).IsSettled())

	o, err = h.svc.Cancel(ctx, o.ID, h.buyer, "нашёл другого исполнителя")
	require.NoError(t, err)
	assert.Equal(t, entity.CancellationByBuyer, o.Cancellation.Kind)
	assert.Equal(t, int64(10000), partFor(h.reservation(t, o.ID), h.buyer))
}

func TestExtension_Flow(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.create(t)
	_, err := h.svc.Accept(ctx, o.ID, h.seller)
	require.NoError(t, err)
	o, err = h.svc.Start(ctx, o.ID, h.seller)
	require.NoError(t, err)
	before := *o.ExpiresAt

	_, err = h.svc.RequestExtension(ctx, o.ID, h.seller, 5, "заказчик поменял требования")
	require.NoError(t, err)
	_, err = h.svc.RequestExtension(ctx, o.ID, h.seller, 2, "ещё немного времени")
	assert.True(t, apperror.IsConflict(err))

	_, err = h.svc.ApproveExtension(ctx, o.ID, h.seller)
	assert.True(t, apperror.IsForbidden(err))

	o, err = h.svc.ApproveExtension(ctx, o.ID, h.buyer)
	require.NoError(t, err)
	assert.Equal(t, before.Add(5*valueobject.Day), *o.ExpiresAt)
}

func TestPostMessage(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.create(t)

	msg, err := h.svc.PostMessage(ctx, o.ID, h.buyer, "когда сможете начать?")
	require.NoError(t, err)
	assert.Equal(t, h.buyer, msg.AuthorID)

	o, err = h.svc.Get(ctx, o.ID, order.Viewer{ID: h.seller})
	require.NoError(t, err)
	assert.Len(t, o.Messages, 1)

	_, err = h.svc.Get(ctx, o.ID, order.Viewer{ID: uuid.New()})
	assert.True(t, apperror.IsForbidden(err))
}

func TestDeadlines(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	o := h.delivered(t)

	h.clock.Advance(time.Hour)
	views, err := h.svc.Deadlines(ctx, o.ID, order.Viewer{ID: h.buyer})
	require.NoError(t, err)
	require.Len(t, views, 3)

	var review order.DeadlineView
	for _, v := range views {
		if v.Active {
			review = v
		}
	}
	assert.Equal(t, entity.DeadlineReview, review.Kind)
	assert.Equal(t, 2, review.Remaining.Days)
	assert.Equal(t, 23, review.Remaining.Hours)

	remaining := h.svc.TimeRemaining(h.clock.Now().Add(-time.Second))
	assert.True(t, remaining.Expired)
}

func TestListByUser(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	ctx := context.Background()
	h.create(t)
	h.create(t)

	orders, err := h.svc.ListByUser(ctx, h.seller, entity.RoleSeller, repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = h.svc.ListByUser(ctx, h.seller, entity.RoleWorker, repository.ListFilter{})
	assert.True(t, apperror.IsValidation(err))
}
