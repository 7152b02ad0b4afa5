package valueobject

import "github.com/ignatzorin/escrow-engine/internal/pkg/apperror"

type OrderStatus string

const (
	OrderStatusAwaitingAcceptance OrderStatus = "awaiting_acceptance"
	OrderStatusPending            OrderStatus = "pending"
	OrderStatusInProgress         OrderStatus = "in_progress"
	OrderStatusDelivered          OrderStatus = "delivered"
	OrderStatusDisputed           OrderStatus = "disputed"
	OrderStatusCompleted          OrderStatus = "completed"
	OrderStatusCancelled          OrderStatus = "cancelled"
	OrderStatusDisputeResolved    OrderStatus = "dispute_resolved"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingAcceptance: {OrderStatusPending, OrderStatusCancelled},
	OrderStatusPending:            {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress:         {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:          {OrderStatusCompleted, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusDisputed:           {OrderStatusDisputeResolved},
	OrderStatusCompleted:          {},
	OrderStatusCancelled:          {},
	OrderStatusDisputeResolved:    {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusDisputeResolved:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	for _, status := range orderTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

func NewOrderStatus(status string) (OrderStatus, error) {
	s := OrderStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус заказа")
	}
	return s, nil
}

type SubmissionStatus string

const (
	SubmissionStatusSubmitted         SubmissionStatus = "submitted"
	SubmissionStatusApproved          SubmissionStatus = "approved"
	SubmissionStatusAutoApproved      SubmissionStatus = "auto_approved"
	SubmissionStatusRejected          SubmissionStatus = "rejected"
	SubmissionStatusRevisionRequested SubmissionStatus = "revision_requested"
	SubmissionStatusRejectedAccepted  SubmissionStatus = "rejected_accepted"
	SubmissionStatusCancelledByWorker SubmissionStatus = "cancelled_by_worker"
	SubmissionStatusDisputed          SubmissionStatus = "disputed"
	SubmissionStatusDisputeResolved   SubmissionStatus = "dispute_resolved"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusSubmitted: {
		SubmissionStatusApproved,
		SubmissionStatusAutoApproved,
		SubmissionStatusRejected,
		SubmissionStatusRevisionRequested,
	},
	SubmissionStatusRejected:          {SubmissionStatusRejectedAccepted, SubmissionStatusDisputed},
	SubmissionStatusRevisionRequested: {SubmissionStatusSubmitted, SubmissionStatusCancelledByWorker},
	SubmissionStatusDisputed:          {SubmissionStatusDisputeResolved},
	SubmissionStatusApproved:          {},
	SubmissionStatusAutoApproved:      {},
	SubmissionStatusRejectedAccepted:  {},
	SubmissionStatusCancelledByWorker: {},
	SubmissionStatusDisputeResolved:   {},
}

func (s SubmissionStatus) IsValid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

func (s SubmissionStatus) IsTerminal() bool {
	return s.IsValid() && len(submissionTransitions[s]) == 0
}

func (s SubmissionStatus) CanTransitionTo(newStatus SubmissionStatus) bool {
	for _, status := range submissionTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

func NewSubmissionStatus(status string) (SubmissionStatus, error) {
	s := SubmissionStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус работы")
	}
	return s, nil
}

// SubjectKind различает, к чему относится спор или резерв: к заказу или к работе по заданию.
type SubjectKind string

const (
	SubjectKindOrder SubjectKind = "order"
	SubjectKindJob   SubjectKind = "job"
)

func (k SubjectKind) IsValid() bool {
	return k == SubjectKindOrder || k == SubjectKindJob
}

type DisputeStatus string

const (
	DisputeStatusPending              DisputeStatus = "pending"
	DisputeStatusResolvedFavorBuyer   DisputeStatus = "resolved_favor_buyer"
	DisputeStatusResolvedFavorSeller  DisputeStatus = "resolved_favor_seller"
	DisputeStatusResolvedFavorPoster  DisputeStatus = "resolved_favor_poster"
	DisputeStatusResolvedFavorWorker  DisputeStatus = "resolved_favor_worker"
	DisputeStatusResolvedPartialSplit DisputeStatus = "resolved_partial"
)

func (s DisputeStatus) IsOpen() bool {
	return s == DisputeStatusPending
}

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusPending,
		DisputeStatusResolvedFavorBuyer,
		DisputeStatusResolvedFavorSeller,
		DisputeStatusResolvedFavorPoster,
		DisputeStatusResolvedFavorWorker,
		DisputeStatusResolvedPartialSplit:
		return true
	}
	return false
}

// ResolvedDisputeStatus выбирает итоговый статус спора по решению и типу сделки.
func ResolvedDisputeStatus(kind SubjectKind, decision Decision) DisputeStatus {
	switch decision {
	case DecisionRefundBuyer:
		if kind == SubjectKindJob {
			return DisputeStatusResolvedFavorPoster
		}
		return DisputeStatusResolvedFavorBuyer
	case DecisionPaySeller:
		if kind == SubjectKindJob {
			return DisputeStatusResolvedFavorWorker
		}
		return DisputeStatusResolvedFavorSeller
	}
	return DisputeStatusResolvedPartialSplit
}

type Decision string

const (
	DecisionRefundBuyer   Decision = "refund_buyer"
	DecisionPaySeller     Decision = "pay_seller"
	DecisionPartialRefund Decision = "partial_refund"
)

func NewDecision(value string) (Decision, error) {
	d := Decision(value)
	switch d {
	case DecisionRefundBuyer, DecisionPaySeller, DecisionPartialRefund:
		return d, nil
	}
	return "", apperror.ErrInvalidDecision
}
