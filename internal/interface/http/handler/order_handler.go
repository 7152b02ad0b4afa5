package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/dto"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/response"
	"github.com/ignatzorin/escrow-engine/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-engine/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
)

type OrderHandler struct {
	orders   *order.Service
	disputes *dispute.Service
	ledger   *escrow.Ledger
}

func NewOrderHandler(orders *order.Service, disputes *dispute.Service, ledger *escrow.Ledger) *OrderHandler {
	return &OrderHandler{orders: orders, disputes: disputes, ledger: ledger}
}

func (h *OrderHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	price, ok := parseMoney(c, req.Price, req.Currency)
	if !ok {
		return
	}

	created, err := h.orders.Create(c.Request.Context(), order.CreateOrderInput{
		BuyerID:      user.UserID,
		SellerID:     uuid.MustParse(req.SellerID),
		Title:        req.Title,
		Price:        price,
		DeliveryDays: req.DeliveryDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToOrderResponse(created))
}

// ListMy обрабатывает GET /api/orders/my?role=buyer|seller
func (h *OrderHandler) ListMy(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filter := listFilter(c)
	orders, err := h.orders.ListByUser(c.Request.Context(), user.UserID, entity.Role(c.Query("role")), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToOrderResponses(orders), len(orders), filter.Limit, filter.Offset)
}

func (h *OrderHandler) Get(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}

	o, err := h.orders.Get(c.Request.Context(), orderID, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToOrderResponse(o))
}

func (h *OrderHandler) Deadlines(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}

	deadlines, err := h.orders.Deadlines(c.Request.Context(), orderID, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	if deadlines == nil {
		deadlines = []order.DeadlineView{}
	}

	response.Success(c, deadlines)
}

func (h *OrderHandler) Audit(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}

	entries, err := h.orders.Audit(c.Request.Context(), orderID, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToAuditResponses(entries))
}

// Escrow возвращает резерв средств заказа и его распределение.
func (h *OrderHandler) Escrow(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}

	if _, err := h.orders.Get(c.Request.Context(), orderID, viewer); err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.ledger.GetReservation(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToReservationResponse(res))
}

func (h *OrderHandler) Disputes(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}

	items, err := h.disputes.ListBySubject(c.Request.Context(), valueobject.SubjectKindOrder, orderID, viewer.ID, viewer.Admin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponses(items))
}

func (h *OrderHandler) Accept(c *gin.Context) {
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.Accept(ctx.Request.Context(), orderID, userID)
	})
}

func (h *OrderHandler) Decline(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.Decline(ctx.Request.Context(), orderID, userID, req.Reason)
	})
}

func (h *OrderHandler) Start(c *gin.Context) {
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.Start(ctx.Request.Context(), orderID, userID)
	})
}

func (h *OrderHandler) RequestExtension(c *gin.Context) {
	var req dto.ExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите количество дней и причину продления")
		return
	}
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.RequestExtension(ctx.Request.Context(), orderID, userID, req.Days, req.Reason)
	})
}

func (h *OrderHandler) ApproveExtension(c *gin.Context) {
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.ApproveExtension(ctx.Request.Context(), orderID, userID)
	})
}

func (h *OrderHandler) DeclineExtension(c *gin.Context) {
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.DeclineExtension(ctx.Request.Context(), orderID, userID)
	})
}

func (h *OrderHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.SubmitDelivery(ctx.Request.Context(), orderID, userID, entity.Deliverable{
			Message:  req.Message,
			FileRefs: req.FileRefs,
			Links:    req.Links,
		})
	})
}

// Release: повторный вызов после выплаты отвечает already_processed, а не ошибкой.
func (h *OrderHandler) Release(c *gin.Context) {
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.ReleasePayment(ctx.Request.Context(), orderID, userID)
	})
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(ctx *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error) {
		return h.orders.Cancel(ctx.Request.Context(), orderID, userID, req.Reason)
	})
}

// CheckExpired применяет просроченное автоматическое действие сразу, не дожидаясь планировщика.
func (h *OrderHandler) CheckExpired(c *gin.Context) {
	viewer, orderID, ok := h.viewer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.orders.Get(ctx, orderID, viewer); err != nil {
		response.Error(c, err)
		return
	}
	action, err := h.orders.ApplyDue(ctx, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	o, err := h.orders.Get(ctx, orderID, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"action": action,
		"order":  dto.ToOrderResponse(o),
	})
}

func (h *OrderHandler) PostMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "текст сообщения обязателен")
		return
	}

	msg, err := h.orders.PostMessage(c.Request.Context(), orderID, user.UserID, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, msg)
}

func (h *OrderHandler) OpenDispute(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "причина спора обязательна")
		return
	}

	d, err := h.disputes.Open(c.Request.Context(), valueobject.SubjectKindOrder, orderID, user.UserID, req.ToClaim())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToDisputeResponse(d))
}

func (h *OrderHandler) viewer(c *gin.Context) (order.Viewer, uuid.UUID, bool) {
	user, ok := currentUser(c)
	if !ok {
		return order.Viewer{}, uuid.Nil, false
	}
	orderID, ok := pathID(c)
	if !ok {
		return order.Viewer{}, uuid.Nil, false
	}
	return order.Viewer{ID: user.UserID, Admin: user.IsAdmin()}, orderID, true
}

type orderCommand func(c *gin.Context, orderID, userID uuid.UUID) (*entity.Order, error)

func (h *OrderHandler) command(c *gin.Context, run orderCommand) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	o, err := run(c, orderID, user.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToOrderResponse(o))
}
