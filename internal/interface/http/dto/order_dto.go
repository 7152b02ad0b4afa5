package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type CreateOrderRequest struct {
	SellerID     string  `json:"seller_id" binding:"required,uuid"`
	Title        string  `json:"title" binding:"required"`
	Price        float64 `json:"price" binding:"required,gt=0"`
	Currency     string  `json:"currency" binding:"omitempty,len=3,alpha"`
	DeliveryDays int     `json:"delivery_days"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ExtensionRequest struct {
	Days   int    `json:"days" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"required"`
}

type DeliverRequest struct {
	Message  string   `json:"message"`
	FileRefs []string `json:"file_refs"`
	Links    []string `json:"links"`
}

type MessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type OrderResponse struct {
	ID                 uuid.UUID            `json:"id"`
	BuyerID            uuid.UUID            `json:"buyer_id"`
	SellerID           uuid.UUID            `json:"seller_id"`
	Title              string               `json:"title"`
	Price              valueobject.Money    `json:"price"`
	Status             string               `json:"status"`
	DeliveryDays       int                  `json:"delivery_days"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	AcceptedAt         *time.Time           `json:"accepted_at,omitempty"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
	DeliveredAt        *time.Time           `json:"delivered_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	AcceptanceDeadline *time.Time           `json:"acceptance_deadline,omitempty"`
	ExpiresAt          *time.Time           `json:"expires_at,omitempty"`
	ReviewDeadline     *time.Time           `json:"review_deadline,omitempty"`
	Extension          *ExtensionDTO        `json:"extension,omitempty"`
	Cancellation       *entity.Cancellation `json:"cancellation,omitempty"`
	Deliverable        *entity.Deliverable  `json:"deliverable,omitempty"`
	Messages           []entity.Message     `json:"messages"`
	DisputeID          *uuid.UUID           `json:"dispute_id,omitempty"`
	Resolution         *entity.Resolution   `json:"resolution,omitempty"`
}

type ExtensionDTO struct {
	Days   int    `json:"days"`
	Reason string `json:"reason"`
}

func ToOrderResponse(order *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:                 order.ID,
		BuyerID:            order.BuyerID,
		SellerID:           order.SellerID,
		Title:              order.Title,
		Price:              order.Price,
		Status:             string(order.Status),
		DeliveryDays:       int(order.DeliveryTime / (24 * time.Hour)),
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		AcceptedAt:         order.AcceptedAt,
		StartedAt:          order.StartedAt,
		DeliveredAt:        order.DeliveredAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
		AcceptanceDeadline: order.AcceptanceDeadline,
		ExpiresAt:          order.ExpiresAt,
		ReviewDeadline:     order.ReviewDeadline,
		Cancellation:       order.Cancellation,
		Deliverable:        order.Deliverable,
		Messages:           order.Messages,
		DisputeID:          order.DisputeID,
		Resolution:         order.Resolution,
	}
	if resp.Messages == nil {
		resp.Messages = []entity.Message{}
	}
	if order.ExtensionRequested {
		resp.Extension = &ExtensionDTO{Days: order.ExtensionDays, Reason: order.ExtensionReason}
	}
	return resp
}

func ToOrderResponses(orders []*entity.Order) []OrderResponse {
	result := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, ToOrderResponse(o))
	}
	return result
}
