package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
)

type CreateSubmissionRequest struct {
	JobID      string   `json:"job_id" binding:"required,uuid"`
	EmployerID string   `json:"employer_id" binding:"required,uuid"`
	Amount     float64  `json:"amount" binding:"required,gt=0"`
	Currency   string   `json:"currency" binding:"omitempty,len=3,alpha"`
	Message    string   `json:"message"`
	FileRefs   []string `json:"file_refs"`
	Links      []string `json:"links"`
}

type ProofRequest struct {
	Message  string   `json:"message"`
	FileRefs []string `json:"file_refs"`
	Links    []string `json:"links"`
}

func (r ProofRequest) ToProof() entity.WorkProof {
	return entity.WorkProof{Message: r.Message, FileRefs: r.FileRefs, Links: r.Links}
}

type SubmissionResponse struct {
	ID                uuid.UUID          `json:"id"`
	JobID             uuid.UUID          `json:"job_id"`
	EmployerID        uuid.UUID          `json:"employer_id"`
	WorkerID          uuid.UUID          `json:"worker_id"`
	Amount            valueobject.Money  `json:"amount"`
	Status            string             `json:"status"`
	Proof             entity.WorkProof   `json:"proof"`
	RevisionCount     int                `json:"revision_count"`
	RevisionNote      string             `json:"revision_note,omitempty"`
	RejectionReason   string             `json:"rejection_reason,omitempty"`
	SubmittedAt       time.Time          `json:"submitted_at"`
	ReviewDeadline    *time.Time         `json:"review_deadline,omitempty"`
	RejectionDeadline *time.Time         `json:"rejection_deadline,omitempty"`
	RevisionDeadline  *time.Time         `json:"revision_deadline,omitempty"`
	ReviewedAt        *time.Time         `json:"reviewed_at,omitempty"`
	ClosedAt          *time.Time         `json:"closed_at,omitempty"`
	DisputeID         *uuid.UUID         `json:"dispute_id,omitempty"`
	Resolution        *entity.Resolution `json:"resolution,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func ToSubmissionResponse(s *entity.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:                s.ID,
		JobID:             s.JobID,
		EmployerID:        s.EmployerID,
		WorkerID:          s.WorkerID,
		Amount:            s.Amount,
		Status:            string(s.Status),
		Proof:             s.Proof,
		RevisionCount:     s.RevisionCount,
		RevisionNote:      s.RevisionNote,
		RejectionReason:   s.RejectionReason,
		SubmittedAt:       s.SubmittedAt,
		ReviewDeadline:    s.ReviewDeadline,
		RejectionDeadline: s.RejectionDeadline,
		RevisionDeadline:  s.RevisionDeadline,
		ReviewedAt:        s.ReviewedAt,
		ClosedAt:          s.ClosedAt,
		DisputeID:         s.DisputeID,
		Resolution:        s.Resolution,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func ToSubmissionResponses(items []*entity.Submission) []SubmissionResponse {
	result := make([]SubmissionResponse, 0, len(items))
	for _, s := range items {
		result = append(result, ToSubmissionResponse(s))
	}
	return result
}
