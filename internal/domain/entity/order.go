package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

// Role: роль участника относительно конкретной сделки.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
	RoleNone     Role = ""
)

// SystemActorID обозначает автоматические действия планировщика.
var SystemActorID = uuid.Nil

type CancellationKind string

const (
	CancellationRejectedBySeller  CancellationKind = "rejected_by_seller"
	CancellationByBuyer           CancellationKind = "cancelled_by_buyer"
	CancellationBySeller          CancellationKind = "cancelled_by_seller"
	CancellationAcceptanceExpired CancellationKind = "acceptance_expired"
	CancellationDeliveryExpired   CancellationKind = "delivery_expired"
)

type Cancellation struct {
	Kind    CancellationKind `json:"kind"`
	Reason  string           `json:"reason"`
	ActorID uuid.UUID        `json:"actor_id"`
	At      time.Time        `json:"at"`
}

type Deliverable struct {
	Message     string    `json:"message"`
	FileRefs    []string  `json:"file_refs"`
	Links       []string  `json:"links"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID           uuid.UUID
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	Title        string
	Price        valueobject.Money
	Status       valueobject.OrderStatus
	DeliveryTime time.Duration

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	DeliveredAt *time.Time
	DisputedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	AcceptanceDeadline *time.Time
	ExpiresAt          *time.Time
	ReviewDeadline     *time.Time

	ExtensionRequested bool
	ExtensionDays      int
	ExtensionReason    string

	Cancellation *Cancellation
	Deliverable  *Deliverable
	Messages     []Message
	DisputeID    *uuid.UUID
	Resolution   *Resolution

	// Version увеличивается репозиторием при каждом успешном сохранении.
	Version int64
}

// OrderPolicy: параметры платформы, влияющие на переходы заказа.
type OrderPolicy struct {
	AcceptanceWindow time.Duration
	ReviewPeriod     time.Duration
	MinReasonLength  int
	MaxExtensionDays int
}

func NewOrder(buyerID, sellerID uuid.UUID, title string, price valueobject.Money, deliveryDays int, acceptanceWindow time.Duration, now time.Time) (*Order, error) {
	if buyerID == uuid.Nil || sellerID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "покупатель и продавец обязательны")
	}
	if buyerID == sellerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя заказать услугу у самого себя")
	}
	if err := validation.ValidateOrderTitle(title); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if price.Amount > valueobject.MaxAmount {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена заказа превышает допустимый максимум")
	}
	if !price.IsPositive() {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена заказа должна быть больше нуля")
	}
	if deliveryDays <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "срок выполнения должен быть не менее одного дня")
	}
	if acceptanceWindow <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "окно принятия заказа должно быть положительным")
	}

	acceptanceDeadline := valueobject.DeadlineAfter(now, acceptanceWindow)
	return &Order{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		SellerID:           sellerID,
		Title:              strings.TrimSpace(title),
		Price:              price,
		Status:             valueobject.OrderStatusAwaitingAcceptance,
		DeliveryTime:       time.Duration(deliveryDays) * valueobject.Day,
		CreatedAt:          now,
		UpdatedAt:          now,
		AcceptanceDeadline: &acceptanceDeadline,
	}, nil
}

func (o *Order) RoleOf(actorID uuid.UUID) Role {
	switch actorID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	}
	return RoleNone
}

func (o *Order) IsParticipant(actorID uuid.UUID) bool {
	return o.RoleOf(actorID) != RoleNone
}

// Accept: продавец принимает заказ до истечения окна принятия.
// Предварительный срок сдачи ставится сразу, чтобы у pending всегда был дедлайн.
func (o *Order) Accept(sellerID uuid.UUID, now time.Time) error {
	if sellerID != o.SellerID {
		return apperror.New(apperror.ErrCodeForbidden, "принять заказ может только продавец")
	}
	if o.Status != valueobject.OrderStatusAwaitingAcceptance {
		return o.invalidState("принять заказ")
	}
	if valueobject.IsExpired(o.AcceptanceDeadline, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок принятия заказа истёк")
	}

	expiresAt := valueobject.DeadlineAfter(now, o.DeliveryTime)
	o.AcceptedAt = &now
	o.ExpiresAt = &expiresAt
	return o.transition(valueobject.OrderStatusPending, now)
}

// Decline: продавец отказывается от заказа, средства возвращаются покупателю.
func (o *Order) Decline(sellerID uuid.UUID, reason string, now time.Time) error {
	if sellerID != o.SellerID {
		return apperror.New(apperror.ErrCodeForbidden, "отклонить заказ может только продавец")
	}
	if o.Status != valueobject.OrderStatusAwaitingAcceptance {
		return o.invalidState("отклонить заказ")
	}
	if err := validation.ValidateNonEmpty("причина отказа", reason); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return o.cancel(CancellationRejectedBySeller, reason, sellerID, now)
}

func (o *Order) Start(sellerID uuid.UUID, now time.Time) error {
	if sellerID != o.SellerID {
		return apperror.New(apperror.ErrCodeForbidden, "начать работу может только продавец")
	}
	if o.Status != valueobject.OrderStatusPending {
		return o.invalidState("начать работу")
	}
	if valueobject.IsExpired(o.ExpiresAt, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок выполнения заказа истёк")
	}

	expiresAt := valueobject.DeadlineAfter(now, o.DeliveryTime)
	o.StartedAt = &now
	o.ExpiresAt = &expiresAt
	return o.transition(valueobject.OrderStatusInProgress, now)
}

func (o *Order) RequestExtension(sellerID uuid.UUID, days int, reason string, policy OrderPolicy, now time.Time) error {
	if sellerID != o.SellerID {
		return apperror.New(apperror.ErrCodeForbidden, "запросить продление может только продавец")
	}
	if o.Status != valueobject.OrderStatusInProgress {
		return o.invalidState("запросить продление")
	}
	if o.ExtensionRequested {
		return apperror.New(apperror.ErrCodeConflict, "запрос на продление уже ожидает ответа покупателя")
	}
	if valueobject.IsExpired(o.ExpiresAt, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок выполнения заказа истёк")
	}
	if days <= 0 || (policy.MaxExtensionDays > 0 && days > policy.MaxExtensionDays) {
		return apperror.New(apperror.ErrCodeValidation, "некорректное количество дней продления")
	}
	if err := validation.ValidateReason("причина продления", reason, policy.MinReasonLength); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	o.ExtensionRequested = true
	o.ExtensionDays = days
	o.ExtensionReason = strings.TrimSpace(reason)
	o.UpdatedAt = now
	return nil
}

// ApproveExtension сдвигает срок сдачи только вперёд и снимает запрос.
func (o *Order) ApproveExtension(buyerID uuid.UUID, now time.Time) error {
	if err := o.checkExtensionAnswer(buyerID, now); err != nil {
		return err
	}

	base := now
	if o.ExpiresAt != nil && o.ExpiresAt.After(now) {
		base = *o.ExpiresAt
	}
	expiresAt := valueobject.DeadlineAfter(base, time.Duration(o.ExtensionDays)*valueobject.Day)
	o.ExpiresAt = &expiresAt
	o.clearExtension()
	o.UpdatedAt = now
	return nil
}

func (o *Order) DeclineExtension(buyerID uuid.UUID, now time.Time) error {
	if err := o.checkExtensionAnswer(buyerID, now); err != nil {
		return err
	}
	o.clearExtension()
	o.UpdatedAt = now
	return nil
}

func (o *Order) checkExtensionAnswer(buyerID uuid.UUID, now time.Time) error {
	if buyerID != o.BuyerID {
		return apperror.New(apperror.ErrCodeForbidden, "ответить на запрос продления может только покупатель")
	}
	if o.Status != valueobject.OrderStatusInProgress || !o.ExtensionRequested {
		return apperror.New(apperror.ErrCodeInvalidState, "нет активного запроса на продление")
	}
	if valueobject.IsExpired(o.ExpiresAt, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок выполнения заказа истёк")
	}
	return nil
}

func (o *Order) clearExtension() {
	o.ExtensionRequested = false
	o.ExtensionDays = 0
	o.ExtensionReason = ""
}

func (o *Order) SubmitDelivery(sellerID uuid.UUID, deliverable Deliverable, reviewPeriod time.Duration, now time.Time) error {
	if sellerID != o.SellerID {
		return apperror.New(apperror.ErrCodeForbidden, "сдать работу может только продавец")
	}
	if o.Status != valueobject.OrderStatusInProgress {
		return o.invalidState("сдать работу")
	}
	if valueobject.IsExpired(o.ExpiresAt, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок выполнения заказа истёк")
	}
	if err := validateWork(deliverable.Message, deliverable.FileRefs, deliverable.Links); err != nil {
		return err
	}

	deliverable.SubmittedAt = now
	reviewDeadline := valueobject.DeadlineAfter(now, reviewPeriod)
	o.Deliverable = &deliverable
	o.DeliveredAt = &now
	o.ReviewDeadline = &reviewDeadline
	o.clearExtension()
	return o.transition(valueobject.OrderStatusDelivered, now)
}

// Complete: покупатель подтверждает получение работы. Повторный вызов не платит дважды.
func (o *Order) Complete(buyerID uuid.UUID, now time.Time) error {
	if buyerID != o.BuyerID {
		return apperror.New(apperror.ErrCodeForbidden, "подтвердить выполнение может только покупатель")
	}
	if o.Status == valueobject.OrderStatusCompleted {
		return apperror.ErrAlreadyCompleted
	}
	if o.Status != valueobject.OrderStatusDelivered {
		return o.invalidState("подтвердить выполнение")
	}
	return o.complete(now)
}

// AutoComplete выполняется планировщиком после истечения срока проверки.
func (o *Order) AutoComplete(now time.Time) error {
	if o.DueAction(now) != AutoActionComplete {
		return o.notDue()
	}
	return o.complete(now)
}

func (o *Order) complete(now time.Time) error {
	o.CompletedAt = &now
	return o.transition(valueobject.OrderStatusCompleted, now)
}

func (o *Order) Cancel(actorID uuid.UUID, reason string, minReasonLength int, now time.Time) error {
	role := o.RoleOf(actorID)
	if role == RoleNone {
		return apperror.New(apperror.ErrCodeForbidden, "отменить заказ может только участник сделки")
	}
	switch o.Status {
	case valueobject.OrderStatusPending, valueobject.OrderStatusInProgress, valueobject.OrderStatusDelivered:
	default:
		return o.invalidState("отменить заказ")
	}
	if err := validation.ValidateReason("причина отмены", reason, minReasonLength); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	kind := CancellationByBuyer
	if role == RoleSeller {
		kind = CancellationBySeller
	}
	return o.cancel(kind, reason, actorID, now)
}

// AutoCancel выполняется планировщиком, когда продавец не принял заказ или не сдал работу вовремя.
func (o *Order) AutoCancel(now time.Time) error {
	if o.DueAction(now) != AutoActionCancel {
		return o.notDue()
	}
	kind := CancellationDeliveryExpired
	if o.Status == valueobject.OrderStatusAwaitingAcceptance {
		kind = CancellationAcceptanceExpired
	}
	return o.cancel(kind, "истёк срок", SystemActorID, now)
}

func (o *Order) cancel(kind CancellationKind, reason string, actorID uuid.UUID, now time.Time) error {
	o.Cancellation = &Cancellation{
		Kind:    kind,
		Reason:  strings.TrimSpace(reason),
		ActorID: actorID,
		At:      now,
	}
	o.CancelledAt = &now
	o.clearExtension()
	return o.transition(valueobject.OrderStatusCancelled, now)
}

// OpenDispute переводит сданный заказ в спор. Второй спор по тому же заказу невозможен.
func (o *Order) OpenDispute(actorID, disputeID uuid.UUID, now time.Time) error {
	if !o.IsParticipant(actorID) {
		return apperror.New(apperror.ErrCodeForbidden, "открыть спор может только участник сделки")
	}
	if o.DisputeID != nil || o.Status == valueobject.OrderStatusDisputed {
		return apperror.ErrDisputeExists
	}
	if o.Status != valueobject.OrderStatusDelivered {
		return o.invalidState("открыть спор")
	}
	if valueobject.IsExpired(o.ReviewDeadline, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок проверки работы истёк")
	}

	o.DisputeID = &disputeID
	o.DisputedAt = &now
	return o.transition(valueobject.OrderStatusDisputed, now)
}

// ResolveDispute фиксирует решение администратора. Решение устанавливается ровно один раз.
func (o *Order) ResolveDispute(resolution Resolution, now time.Time) error {
	if o.Resolution != nil {
		return apperror.ErrAlreadySettled
	}
	if o.Status != valueobject.OrderStatusDisputed {
		return o.invalidState("разрешить спор")
	}
	if resolution.Payment.Total().Amount != o.Price.Amount {
		return apperror.New(apperror.ErrCodeValidation, "распределение не совпадает с ценой заказа")
	}

	o.Resolution = &resolution
	o.CompletedAt = &now
	return o.transition(valueobject.OrderStatusDisputeResolved, now)
}

// PostMessage добавляет сообщение в журнал заказа. Журнал только дополняется.
func (o *Order) PostMessage(authorID uuid.UUID, body string, now time.Time) (Message, error) {
	if !o.IsParticipant(authorID) {
		return Message{}, apperror.New(apperror.ErrCodeForbidden, "писать в заказ могут только участники")
	}
	if o.Status.IsTerminal() {
		return Message{}, o.invalidState("отправить сообщение")
	}
	if err := validation.ValidateMessageContent(body); err != nil {
		return Message{}, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	msg := Message{
		ID:        uuid.New(),
		AuthorID:  authorID,
		Body:      strings.TrimSpace(body),
		CreatedAt: now,
	}
	o.Messages = append(o.Messages, msg)
	o.UpdatedAt = now
	return msg, nil
}

type AutoAction string

const (
	AutoActionNone     AutoAction = ""
	AutoActionCancel   AutoAction = "auto_cancel"
	AutoActionComplete AutoAction = "auto_complete"
	AutoActionApprove  AutoAction = "auto_approve"
	AutoActionRefund   AutoAction = "auto_refund"
)

// DueAction возвращает автоматическое действие, которое должно быть применено к заказу сейчас.
// В спорных и терминальных статусах действий нет.
func (o *Order) DueAction(now time.Time) AutoAction {
	switch o.Status {
	case valueobject.OrderStatusAwaitingAcceptance:
		if valueobject.IsExpired(o.AcceptanceDeadline, now) {
			return AutoActionCancel
		}
	case valueobject.OrderStatusPending, valueobject.OrderStatusInProgress:
		if valueobject.IsExpired(o.ExpiresAt, now) {
			return AutoActionCancel
		}
	case valueobject.OrderStatusDelivered:
		if valueobject.IsExpired(o.ReviewDeadline, now) {
			return AutoActionComplete
		}
	}
	return AutoActionNone
}

type DeadlineKind string

const (
	DeadlineAcceptance DeadlineKind = "acceptance"
	DeadlineDelivery   DeadlineKind = "delivery"
	DeadlineReview     DeadlineKind = "review"
	DeadlineRejection  DeadlineKind = "rejection"
	DeadlineRevision   DeadlineKind = "revision"
)

type Deadline struct {
	Kind DeadlineKind `json:"kind"`
	At   time.Time    `json:"at"`
}

// ActiveDeadline: дедлайн, по которому сработает планировщик в текущем статусе.
func (o *Order) ActiveDeadline() *Deadline {
	var kind DeadlineKind
	var at *time.Time

	switch o.Status {
	case valueobject.OrderStatusAwaitingAcceptance:
		kind, at = DeadlineAcceptance, o.AcceptanceDeadline
	case valueobject.OrderStatusPending, valueobject.OrderStatusInProgress:
		kind, at = DeadlineDelivery, o.ExpiresAt
	case valueobject.OrderStatusDelivered:
		kind, at = DeadlineReview, o.ReviewDeadline
	}
	if at == nil {
		return nil
	}
	return &Deadline{Kind: kind, At: *at}
}

func (o *Order) transition(to valueobject.OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(to) {
		return apperror.New(apperror.ErrCodeInvalidState, "недопустимый переход статуса заказа из "+string(o.Status)+" в "+string(to))
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) invalidState(action string) error {
	return apperror.New(apperror.ErrCodeInvalidState, "невозможно "+action+" в статусе "+string(o.Status))
}

func (o *Order) notDue() error {
	return apperror.New(apperror.ErrCodeInvalidState, "для заказа нет просроченного автоматического действия")
}

func validateWork(message string, fileRefs, links []string) error {
	if err := validation.ValidateMessageContent(message); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateFileRefs(fileRefs); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLinks(links); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return nil
}
