package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

// Resolution: окончательное решение по спору. После установки не меняется.
type Resolution struct {
	Decision   valueobject.Decision     `json:"decision"`
	Payment    valueobject.PaymentSplit `json:"payment"`
	ResolvedBy uuid.UUID                `json:"resolved_by"`
	Notes      string                   `json:"notes"`
	ResolvedAt time.Time                `json:"resolved_at"`
}

// NewResolution считает распределение по политике; сумма частей всегда равна цене.
func NewResolution(policy valueobject.SplitPolicy, price valueobject.Money, decision valueobject.Decision, adminID uuid.UUID, notes string, minNotesLength int, now time.Time) (Resolution, error) {
	split, err := policy.Split(price, decision)
	if err != nil {
		return Resolution{}, err
	}
	if err := validation.ValidateReason("комментарий к решению", notes, minNotesLength); err != nil {
		return Resolution{}, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return Resolution{
		Decision:   decision,
		Payment:    split,
		ResolvedBy: adminID,
		Notes:      strings.TrimSpace(notes),
		ResolvedAt: now,
	}, nil
}

// Dispute: единый спор по сделке. Тип сделки (заказ или задание) задаётся SubjectKind,
// поэтому отдельные реестры споров по заданиям и заказам не нужны.
type Dispute struct {
	ID           uuid.UUID
	SubjectKind  valueobject.SubjectKind
	SubjectID    uuid.UUID
	ClaimantID   uuid.UUID
	ClaimantRole Role
	RespondentID uuid.UUID
	Reason       string
	Details      string
	Evidence     []string
	Status       valueobject.DisputeStatus
	Resolution   *Resolution
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

type DisputeClaim struct {
	Reason   string
	Details  string
	Evidence []string
}

func NewDispute(kind valueobject.SubjectKind, subjectID, claimantID uuid.UUID, claimantRole Role, respondentID uuid.UUID, claim DisputeClaim, minReasonLength int, now time.Time) (*Dispute, error) {
	if !kind.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип сделки")
	}
	if err := validation.ValidateReason("причина спора", claim.Reason, minReasonLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateDetails(claim.Details); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateFileRefs(claim.Evidence); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	return &Dispute{
		ID:           uuid.New(),
		SubjectKind:  kind,
		SubjectID:    subjectID,
		ClaimantID:   claimantID,
		ClaimantRole: claimantRole,
		RespondentID: respondentID,
		Reason:       strings.TrimSpace(claim.Reason),
		Details:      strings.TrimSpace(claim.Details),
		Evidence:     append([]string(nil), claim.Evidence...),
		Status:       valueobject.DisputeStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (d *Dispute) IsParty(actorID uuid.UUID) bool {
	return actorID == d.ClaimantID || actorID == d.RespondentID
}

// AddEvidence прикрепляет ссылки на файлы к открытому спору.
func (d *Dispute) AddEvidence(actorID uuid.UUID, refs []string, now time.Time) error {
	if !d.IsParty(actorID) {
		return apperror.New(apperror.ErrCodeForbidden, "добавлять доказательства могут только стороны спора")
	}
	if !d.Status.IsOpen() {
		return apperror.New(apperror.ErrCodeInvalidState, "спор уже закрыт")
	}
	if len(refs) == 0 {
		return apperror.New(apperror.ErrCodeValidation, "не переданы доказательства")
	}
	all := append(append([]string(nil), d.Evidence...), refs...)
	if err := validation.ValidateFileRefs(all); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	d.Evidence = all
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) Resolve(resolution Resolution, now time.Time) error {
	if d.Resolution != nil || !d.Status.IsOpen() {
		return apperror.ErrAlreadySettled
	}
	d.Resolution = &resolution
	d.Status = valueobject.ResolvedDisputeStatus(d.SubjectKind, resolution.Decision)
	d.UpdatedAt = now
	return nil
}
