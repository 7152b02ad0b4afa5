package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type OpenDisputeRequest struct {
	Reason   string   `json:"reason" binding:"required"`
	Details  string   `json:"details"`
	Evidence []string `json:"evidence"`
}

func (r OpenDisputeRequest) ToClaim() entity.DisputeClaim {
	return entity.DisputeClaim{Reason: r.Reason, Details: r.Details, Evidence: r.Evidence}
}

type EvidenceRequest struct {
	Refs []string `json:"refs" binding:"required,min=1"`
}

type ResolveDisputeRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes" binding:"required"`
}

type DisputeResponse struct {
	ID           uuid.UUID          `json:"id"`
	SubjectKind  string             `json:"subject_kind"`
	SubjectID    uuid.UUID          `json:"subject_id"`
	ClaimantID   uuid.UUID          `json:"claimant_id"`
	ClaimantRole string             `json:"claimant_role"`
	RespondentID uuid.UUID          `json:"respondent_id"`
	Reason       string             `json:"reason"`
	Details      string             `json:"details,omitempty"`
	Evidence     []string           `json:"evidence"`
	Status       string             `json:"status"`
	Resolution   *entity.Resolution `json:"resolution,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func ToDisputeResponse(d *entity.Dispute) DisputeResponse {
	resp := DisputeResponse{
		ID:           d.ID,
		SubjectKind:  string(d.SubjectKind),
		SubjectID:    d.SubjectID,
		ClaimantID:   d.ClaimantID,
		ClaimantRole: string(d.ClaimantRole),
		RespondentID: d.RespondentID,
		Reason:       d.Reason,
		Details:      d.Details,
		Evidence:     d.Evidence,
		Status:       string(d.Status),
		Resolution:   d.Resolution,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if resp.Evidence == nil {
		resp.Evidence = []string{}
	}
	return resp
}

func ToDisputeResponses(items []*entity.Dispute) []DisputeResponse {
	result := make([]DisputeResponse, 0, len(items))
	for _, d := range items {
		result = append(result, ToDisputeResponse(d))
	}
	return result
}

type AuditEntryResponse struct {
	ID        uuid.UUID       `json:"id"`
	Action    string          `json:"action"`
	ActorID   uuid.UUID       `json:"actor_id"`
	ActorRole string          `json:"actor_role"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func ToAuditResponses(entries []*entity.AuditEntry) []AuditEntryResponse {
	result := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, AuditEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			ActorID:   e.ActorID,
			ActorRole: string(e.ActorRole),
			Before:    e.Before,
			After:     e.After,
			CreatedAt: e.CreatedAt,
		})
	}
	return result
}

type ReservationResponse struct {
	SubjectKind string                  `json:"subject_kind"`
	SubjectID   uuid.UUID               `json:"subject_id"`
	PayerID     uuid.UUID               `json:"payer_id"`
	Amount      valueobject.Money       `json:"amount"`
	Status      string                  `json:"status"`
	Reason      string                  `json:"reason,omitempty"`
	Parts       []entity.SettlementPart `json:"parts"`
	ReservedAt  time.Time               `json:"reserved_at"`
	SettledAt   *time.Time              `json:"settled_at,omitempty"`
}

func ToReservationResponse(r *entity.Reservation) ReservationResponse {
	resp := ReservationResponse{
		SubjectKind: string(r.SubjectKind),
		SubjectID:   r.SubjectID,
		PayerID:     r.PayerID,
		Amount:      r.Amount,
		Status:      string(r.Status),
		Reason:      r.Reason,
		Parts:       r.Parts,
		ReservedAt:  r.ReservedAt,
		SettledAt:   r.SettledAt,
	}
	if resp.Parts == nil {
		resp.Parts = []entity.SettlementPart{}
	}
	return resp
}
