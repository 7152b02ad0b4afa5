package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/auth"
	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/http/router"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/handler"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
	"github.com/ignatzorin/escrow-engine/internal/storage"
	"github.com/ignatzorin/escrow-engine/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-engine/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
	"github.com/ignatzorin/escrow-engine/internal/usecase/sweeper"
	"github.com/ignatzorin/escrow-engine/internal/ws"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type envelope struct {
	Success          bool            `json:"success"`
	Data             json.RawMessage `json:"data"`
	AlreadyProcessed bool            `json:"already_processed"`
	Error            *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	tokens *auth.TokenManager
	clock  *clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Silence()

	c := &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	locks := keylock.New()
	ledger := escrow.NewLedger(store.Ledger, c.Now)

	orders := order.NewService(order.Deps{
		Orders: store.Orders, Disputes: store.Disputes, Audit: store.Audit,
		Ledger: ledger, Tx: store.Tx, Locks: locks, Now: c.Now,
	}, order.Policy{
		OrderPolicy: entity.OrderPolicy{
			AcceptanceWindow: 48 * time.Hour,
			ReviewPeriod:     3 * valueobject.Day,
			MinReasonLength:  10,
			MaxExtensionDays: 30,
		},
		Split:               valueobject.DefaultSplitPolicy,
		AutomaticRefunds:    true,
		AutoReleasePayment:  true,
		DefaultDeliveryDays: 7,
	})
	submissions := submission.NewService(submission.Deps{
		Submissions: store.Submissions, Disputes: store.Disputes, Audit: store.Audit,
		Ledger: ledger, Tx: store.Tx, Locks: locks, Now: c.Now,
	}, submission.Policy{
		SubmissionPolicy: entity.SubmissionPolicy{
			ReviewPeriod:        3 * valueobject.Day,
			MaxRevisionRequests: 3,
			RevisionTimeout:     3 * valueobject.Day,
			RejectionTimeout:    3 * valueobject.Day,
			MinReasonLength:     10,
		},
		Split:              valueobject.DefaultSplitPolicy,
		AutomaticRefunds:   true,
		AutoReleasePayment: true,
	})
	disputes := dispute.NewService(dispute.Deps{
		Disputes: store.Disputes, Audit: store.Audit, Tx: store.Tx, Locks: locks,
		Orders: orders, Submissions: submissions, Now: c.Now,
	})
	sweep := sweeper.New(sweeper.Config{Interval: time.Minute}, nil, c.Now,
		sweeper.Source{Kind: valueobject.SubjectKindOrder, Due: store.Orders, Applier: orders},
		sweeper.Source{Kind: valueobject.SubjectKindJob, Due: store.Submissions, Applier: submissions},
	)
	evidence, err := storage.NewEvidenceStorage(t.TempDir(), 1)
	require.NoError(t, err)

	tokens := auth.NewTokenManager("handler-test-secret")
	cfg := &config.Config{Env: "test", RateLimitLimit: 10000, RateLimitPeriod: time.Minute}
	engine := router.SetupRouter(cfg, router.Handlers{
		Health:      handler.NewHealthHandler(),
		WS:          handler.NewWSHandler(ws.NewHub(), nil),
		Orders:      handler.NewOrderHandler(orders, disputes, ledger),
		Submissions: handler.NewSubmissionHandler(submissions, disputes, ledger),
		Disputes:    handler.NewDisputeHandler(disputes, evidence),
		Admin:       handler.NewAdminHandler(sweep),
	}, tokens)

	return &server{t: t, engine: engine, tokens: tokens, clock: c}
}

func (s *server) token(userID uuid.UUID, role string) string {
	s.t.Helper()
	// токен живёт по реальному времени, часы сервисов управляются тестом
	tok, err := s.tokens.Issue(userID, role, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(method, path string, userID uuid.UUID, role string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(userID, role))
	}
	return s.serve(req)
}

func (s *server) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type orderView struct {
	ID        uuid.UUID  `json:"id"`
	Status    string     `json:"status"`
	DisputeID *uuid.UUID `json:"dispute_id"`
}

func (s *server) createOrder(buyer, seller uuid.UUID) orderView {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/orders", buyer, "user", map[string]any{
		"seller_id": seller.String(),
		"title":     "Логотип для кофейни",
		"price":     100,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orderView](s.t, env)
}

func (s *server) startOrder(buyer, seller uuid.UUID) orderView {
	s.t.Helper()
	o := s.createOrder(buyer, seller)
	for _, step := range []string{"accept", "start"} {
		w, _ := s.do(http.MethodPost, "/api/orders/"+o.ID.String()+"/"+step, seller, "user", nil)
		require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	}
	return o
}

func TestOrderLifecycle_ReleaseIsIdempotent(t *testing.T) {
	s := newServer(t)
	buyer, seller := uuid.New(), uuid.New()
	o := s.startOrder(buyer, seller)
	base := "/api/orders/" + o.ID.String()

	w, env := s.do(http.MethodPost, base+"/deliver", seller, "user", map[string]any{
		"message": "Готово, исходники по ссылке",
		"links":   []string{"https://example.com/logo.zip"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "delivered", decode[orderView](t, env).Status)

	// продавец не может подтвердить за покупателя
	w, env = s.do(http.MethodPost, base+"/release", seller, "user", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = s.do(http.MethodPost, base+"/release", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode[orderView](t, env).Status)

	w, env = s.do(http.MethodPost, base+"/release", buyer, "user", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.AlreadyProcessed)

	w, env = s.do(http.MethodGet, base+"/escrow", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Status string                  `json:"status"`
		Parts  []entity.SettlementPart `json:"parts"`
	}](t, env)
	assert.Equal(t, "settled", res.Status)
	require.Len(t, res.Parts, 1)
	assert.Equal(t, seller, res.Parts[0].To)
	assert.Equal(t, int64(10000), res.Parts[0].Amount.Amount)

	w, env = s.do(http.MethodGet, base+"/audit", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	audit := decode[[]struct {
		Action string `json:"action"`
	}](t, env)
	actions := make([]string, 0, len(audit))
	for _, a := range audit {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{"create", "accept", "start", "submit_delivery", "release_payment"}, actions)
}

func TestOrderAccess(t *testing.T) {
	s := newServer(t)
	buyer, seller := uuid.New(), uuid.New()
	o := s.createOrder(buyer, seller)
	path := "/api/orders/" + o.ID.String()

	w, _ := s.do(http.MethodGet, path, uuid.Nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, path, uuid.New(), "user", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, path, uuid.New(), auth.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/orders/not-a-uuid", buyer, "user", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(http.MethodGet, "/api/orders/my?role=seller", seller, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orderView](t, env), 1)

	w, _ = s.do(http.MethodGet, "/api/orders/my?role=admin", seller, "user", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderCreate_Validation(t *testing.T) {
	s := newServer(t)
	buyer := uuid.New()

	w, _ := s.do(http.MethodPost, "/api/orders", buyer, "user", map[string]any{
		"seller_id": "nope", "title": "Логотип", "price": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(http.MethodPost, "/api/orders", buyer, "user", map[string]any{
		"seller_id": buyer.String(), "title": "Логотип", "price": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	seller := uuid.New().String()
	w, env = s.do(http.MethodPost, "/api/orders", buyer, "user", map[string]any{
		"seller_id": seller, "title": "Логотип", "price": 1e16,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, _ = s.do(http.MethodPost, "/api/orders", buyer, "user", map[string]any{
		"seller_id": seller, "title": "Логотип", "price": 100, "currency": "DOLLAR",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderDeadlinesAndCheckExpired(t *testing.T) {
	s := newServer(t)
	buyer, seller := uuid.New(), uuid.New()
	o := s.createOrder(buyer, seller)
	base := "/api/orders/" + o.ID.String()

	w, env := s.do(http.MethodGet, base+"/deadlines", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	deadlines := decode[[]order.DeadlineView](t, env)
	require.Len(t, deadlines, 1)
	assert.Equal(t, entity.DeadlineAcceptance, deadlines[0].Kind)
	assert.Equal(t, 2, deadlines[0].Remaining.Days)

	w, env = s.do(http.MethodPost, base+"/check-expired", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", decode[struct {
		Action string `json:"action"`
	}](t, env).Action)

	s.clock.Advance(49 * time.Hour)
	w, env = s.do(http.MethodPost, base+"/check-expired", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[struct {
		Action string    `json:"action"`
		Order  orderView `json:"order"`
	}](t, env)
	assert.Equal(t, string(entity.AutoActionCancel), result.Action)
	assert.Equal(t, "cancelled", result.Order.Status)

	// продавец опоздал: заказ уже отменён планировщиком
	w, env = s.do(http.MethodPost, base+"/accept", seller, "user", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
}

func TestAdminSweep(t *testing.T) {
	s := newServer(t)
	buyer, seller := uuid.New(), uuid.New()
	o := s.createOrder(buyer, seller)
	s.clock.Advance(49 * time.Hour)

	w, _ := s.do(http.MethodPost, "/api/admin/sweep", buyer, "user", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(http.MethodPost, "/api/admin/sweep", uuid.New(), auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[sweeper.Report](t, env)
	assert.Equal(t, 1, report.Orders)
	assert.Equal(t, 1, report.Applied)

	w, env = s.do(http.MethodGet, "/api/orders/"+o.ID.String(), buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[orderView](t, env).Status)
}

type disputeView struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Evidence []string  `json:"evidence"`
}

func TestOrderDispute_ResolveByAdmin(t *testing.T) {
	s := newServer(t)
	buyer, seller, admin := uuid.New(), uuid.New(), uuid.New()
	o := s.startOrder(buyer, seller)
	base := "/api/orders/" + o.ID.String()

	w, _ := s.do(http.MethodPost, base+"/deliver", seller, "user", map[string]any{"message": "Работа сдана"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(http.MethodPost, base+"/dispute", buyer, "user", map[string]any{
		"reason": "Логотип не соответствует брифу",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[disputeView](t, env)
	assert.Equal(t, "pending", d.Status)

	w, env = s.do(http.MethodPost, base+"/dispute", seller, "user", map[string]any{
		"reason": "Покупатель не отвечает на вопросы",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	resolvePath := "/api/admin/disputes/" + d.ID.String() + "/resolve"
	body := map[string]any{"decision": "partial_refund", "notes": "Работа выполнена частично"}

	w, _ = s.do(http.MethodPost, resolvePath, buyer, "user", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPost, resolvePath, admin, auth.RoleAdmin, map[string]any{"decision": "split", "notes": "Работа выполнена частично"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DECISION", env.Error.Code)

	w, env = s.do(http.MethodPost, resolvePath, admin, auth.RoleAdmin, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "resolved_partial", decode[disputeView](t, env).Status)

	w, env = s.do(http.MethodPost, resolvePath, admin, auth.RoleAdmin, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.AlreadyProcessed)

	w, env = s.do(http.MethodGet, base+"/escrow", buyer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Parts []entity.SettlementPart `json:"parts"`
	}](t, env)
	var total int64
	for _, p := range res.Parts {
		total += p.Amount.Amount
	}
	assert.Equal(t, int64(10000), total)

	w, env = s.do(http.MethodGet, base+"/disputes", seller, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]disputeView](t, env), 1)
}

// минимальный PNG: сигнатура и заголовок IHDR
var pngHeader = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xDE,
}

func (s *server) upload(userID uuid.UUID, name string, content []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(userID, "user"))
	return s.serve(req)
}

func TestDisputeEvidence(t *testing.T) {
	s := newServer(t)
	buyer, seller := uuid.New(), uuid.New()
	o := s.startOrder(buyer, seller)

	w, _ := s.do(http.MethodPost, "/api/orders/"+o.ID.String()+"/deliver", seller, "user", map[string]any{"message": "Сдаю работу"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(http.MethodPost, "/api/orders/"+o.ID.String()+"/dispute", buyer, "user", map[string]any{
		"reason": "Сдана пустая заготовка вместо логотипа",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[disputeView](t, env)
	evidencePath := "/api/disputes/" + d.ID.String() + "/evidence"

	w, env = s.upload(seller, "chat.png", pngHeader)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[storage.Evidence](t, env)
	assert.Equal(t, "image/png", saved.MIME)

	w, _ = s.upload(seller, "notes.txt", []byte("обычный текст"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// чужой файл приложить нельзя
	w, _ = s.do(http.MethodPost, evidencePath, buyer, "user", map[string]any{"refs": []string{saved.Ref}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPost, evidencePath, seller, "user", map[string]any{"refs": []string{saved.Ref}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode[disputeView](t, env).Evidence, saved.Ref)

	w, _ = s.do(http.MethodGet, "/api/disputes/"+d.ID.String(), uuid.New(), "user", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type submissionView struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

func TestSubmissionRejectionFlow(t *testing.T) {
	s := newServer(t)
	employer, worker := uuid.New(), uuid.New()

	w, env := s.do(http.MethodPost, "/api/submissions", worker, "user", map[string]any{
		"job_id":      uuid.NewString(),
		"employer_id": employer.String(),
		"amount":      50,
		"message":     "Сделал лендинг, ссылка ниже",
		"links":       []string{"https://example.com/landing"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[submissionView](t, env)
	base := "/api/submissions/" + sub.ID.String()

	w, _ = s.do(http.MethodPost, base+"/reject", worker, "user", map[string]any{"reason": "Не нравится результат"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPost, base+"/reject", employer, "user", map[string]any{"reason": "Вёрстка не совпадает с макетом"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", decode[submissionView](t, env).Status)

	w, env = s.do(http.MethodGet, base+"/deadline", worker, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dl := decode[struct {
		Deadline  *entity.Deadline          `json:"deadline"`
		Remaining valueobject.TimeRemaining `json:"remaining"`
	}](t, env)
	require.NotNil(t, dl.Deadline)
	assert.Equal(t, 3, dl.Remaining.Days)

	w, env = s.do(http.MethodPost, base+"/accept-rejection", worker, "user", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected_accepted", decode[submissionView](t, env).Status)

	w, env = s.do(http.MethodGet, base+"/escrow", employer, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Parts []entity.SettlementPart `json:"parts"`
	}](t, env)
	require.Len(t, res.Parts, 1)
	assert.Equal(t, employer, res.Parts[0].To)

	w, env = s.do(http.MethodGet, "/api/submissions/my?role=worker", worker, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]submissionView](t, env), 1)
}

func TestSubmissionDispute_WorkerOnly(t *testing.T) {
	s := newServer(t)
	employer, worker := uuid.New(), uuid.New()

	w, env := s.do(http.MethodPost, "/api/submissions", worker, "user", map[string]any{
		"job_id":      uuid.NewString(),
		"employer_id": employer.String(),
		"amount":      50,
		"message":     "Готово",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	base := "/api/submissions/" + decode[submissionView](t, env).ID.String()

	w, _ = s.do(http.MethodPost, base+"/reject", employer, "user", map[string]any{"reason": "Не то, что просили в задании"})
	require.Equal(t, http.StatusOK, w.Code)

	claim := map[string]any{"reason": "Работа выполнена строго по заданию"}
	w, _ = s.do(http.MethodPost, base+"/dispute", employer, "user", claim)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPost, base+"/dispute", worker, "user", claim)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "pending", decode[disputeView](t, env).Status)

	w, env = s.do(http.MethodGet, base, worker, "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disputed", decode[submissionView](t, env).Status)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
