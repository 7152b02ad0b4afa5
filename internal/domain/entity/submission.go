package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/validation"
)

// WorkProof: результат работы исполнителя по заданию.
type WorkProof struct {
	Message  string   `json:"message"`
	FileRefs []string `json:"file_refs"`
	Links    []string `json:"links"`
}

// Submission: сданная по заданию работа. Оплата задания зарезервирована до её закрытия.
type Submission struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	EmployerID uuid.UUID
	WorkerID   uuid.UUID
	Amount     valueobject.Money
	Status     valueobject.SubmissionStatus
	Proof      WorkProof

	RevisionCount   int
	RevisionNote    string
	RejectionReason string

	SubmittedAt       time.Time
	ReviewDeadline    *time.Time
	RejectionDeadline *time.Time
	RevisionDeadline  *time.Time
	ReviewedAt        *time.Time
	ClosedAt          *time.Time

	DisputeID  *uuid.UUID
	Resolution *Resolution

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// SubmissionPolicy: настройки платформы для проверки работ.
type SubmissionPolicy struct {
	ReviewPeriod        time.Duration
	MaxRevisionRequests int
	RevisionTimeout     time.Duration
	RejectionTimeout    time.Duration
	MinReasonLength     int
}

func NewSubmission(jobID, employerID, workerID uuid.UUID, amount valueobject.Money, proof WorkProof, reviewPeriod time.Duration, now time.Time) (*Submission, error) {
	if jobID == uuid.Nil || employerID == uuid.Nil || workerID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "задание, заказчик и исполнитель обязательны")
	}
	if employerID == workerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя выполнять собственное задание")
	}
	if amount.Amount > valueobject.MaxAmount {
		return nil, apperror.New(apperror.ErrCodeValidation, "оплата задания превышает допустимый максимум")
	}
	if !amount.IsPositive() {
		return nil, apperror.New(apperror.ErrCodeValidation, "оплата задания должна быть больше нуля")
	}
	if err := validateWork(proof.Message, proof.FileRefs, proof.Links); err != nil {
		return nil, err
	}

	reviewDeadline := valueobject.DeadlineAfter(now, reviewPeriod)
	return &Submission{
		ID:             uuid.New(),
		JobID:          jobID,
		EmployerID:     employerID,
		WorkerID:       workerID,
		Amount:         amount,
		Status:         valueobject.SubmissionStatusSubmitted,
		Proof:          proof,
		SubmittedAt:    now,
		ReviewDeadline: &reviewDeadline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Submission) RoleOf(actorID uuid.UUID) Role {
	switch actorID {
	case s.EmployerID:
		return RoleEmployer
	case s.WorkerID:
		return RoleWorker
	}
	return RoleNone
}

func (s *Submission) IsParticipant(actorID uuid.UUID) bool {
	return s.RoleOf(actorID) != RoleNone
}

// Approve: заказчик принимает работу, исполнитель получает оплату.
func (s *Submission) Approve(employerID uuid.UUID, now time.Time) error {
	if err := s.checkEmployerReview(employerID, "принять работу"); err != nil {
		return err
	}
	s.ReviewedAt = &now
	return s.close(valueobject.SubmissionStatusApproved, now)
}

// AutoApprove выполняется планировщиком, если заказчик не проверил работу вовремя.
func (s *Submission) AutoApprove(now time.Time) error {
	if s.DueAction(now) != AutoActionApprove {
		return s.notDue()
	}
	s.ReviewedAt = &now
	return s.close(valueobject.SubmissionStatusAutoApproved, now)
}

// Reject: средства остаются в резерве, пока исполнитель не согласится или не истечёт срок ответа.
func (s *Submission) Reject(employerID uuid.UUID, reason string, policy SubmissionPolicy, now time.Time) error {
	if err := s.checkEmployerReview(employerID, "отклонить работу"); err != nil {
		return err
	}
	if err := validation.ValidateReason("причина отклонения", reason, policy.MinReasonLength); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	deadline := valueobject.DeadlineAfter(now, policy.RejectionTimeout)
	s.RejectionReason = strings.TrimSpace(reason)
	s.RejectionDeadline = &deadline
	s.ReviewDeadline = nil
	s.ReviewedAt = &now
	return s.transition(valueobject.SubmissionStatusRejected, now)
}

// RequestRevision допустим, пока число доработок меньше максимума.
func (s *Submission) RequestRevision(employerID uuid.UUID, note string, policy SubmissionPolicy, now time.Time) error {
	if err := s.checkEmployerReview(employerID, "запросить доработку"); err != nil {
		return err
	}
	if s.RevisionCount >= policy.MaxRevisionRequests {
		return apperror.New(apperror.ErrCodeInvalidState, "достигнут лимит запросов на доработку")
	}
	if err := validation.ValidateReason("комментарий к доработке", note, policy.MinReasonLength); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	deadline := valueobject.DeadlineAfter(now, policy.RevisionTimeout)
	s.RevisionCount++
	s.RevisionNote = strings.TrimSpace(note)
	s.RevisionDeadline = &deadline
	s.ReviewDeadline = nil
	s.ReviewedAt = &now
	return s.transition(valueobject.SubmissionStatusRevisionRequested, now)
}

func (s *Submission) checkEmployerReview(employerID uuid.UUID, action string) error {
	if employerID != s.EmployerID {
		return apperror.New(apperror.ErrCodeForbidden, "проверять работу может только заказчик")
	}
	switch s.Status {
	case valueobject.SubmissionStatusApproved, valueobject.SubmissionStatusAutoApproved:
		return apperror.New(apperror.ErrCodeAlreadyCompleted, "работа уже принята")
	case valueobject.SubmissionStatusSubmitted:
		return nil
	}
	return s.invalidState(action)
}

// AcceptRejection: исполнитель соглашается с отклонением, заказчику возвращаются средства.
func (s *Submission) AcceptRejection(workerID uuid.UUID, now time.Time) error {
	if err := s.checkWorkerResponse(workerID, valueobject.SubmissionStatusRejected, s.RejectionDeadline, "согласиться с отклонением", now); err != nil {
		return err
	}
	return s.close(valueobject.SubmissionStatusRejectedAccepted, now)
}

func (s *Submission) Resubmit(workerID uuid.UUID, proof WorkProof, reviewPeriod time.Duration, now time.Time) error {
	if err := s.checkWorkerResponse(workerID, valueobject.SubmissionStatusRevisionRequested, s.RevisionDeadline, "отправить работу повторно", now); err != nil {
		return err
	}
	if err := validateWork(proof.Message, proof.FileRefs, proof.Links); err != nil {
		return err
	}

	reviewDeadline := valueobject.DeadlineAfter(now, reviewPeriod)
	s.Proof = proof
	s.SubmittedAt = now
	s.ReviewDeadline = &reviewDeadline
	s.RevisionDeadline = nil
	s.ReviewedAt = nil
	return s.transition(valueobject.SubmissionStatusSubmitted, now)
}

// CancelByWorker: исполнитель отказывается от доработки, средства сразу возвращаются заказчику.
func (s *Submission) CancelByWorker(workerID uuid.UUID, now time.Time) error {
	if err := s.checkWorkerResponse(workerID, valueobject.SubmissionStatusRevisionRequested, s.RevisionDeadline, "отказаться от задания", now); err != nil {
		return err
	}
	return s.close(valueobject.SubmissionStatusCancelledByWorker, now)
}

func (s *Submission) checkWorkerResponse(workerID uuid.UUID, status valueobject.SubmissionStatus, deadline *time.Time, action string, now time.Time) error {
	if workerID != s.WorkerID {
		return apperror.New(apperror.ErrCodeForbidden, "это действие доступно только исполнителю")
	}
	if s.Status != status {
		return s.invalidState(action)
	}
	if valueobject.IsExpired(deadline, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок ответа истёк")
	}
	return nil
}

// AutoRefund выполняется планировщиком, если исполнитель не ответил вовремя:
// отклонённая работа считается принятой отклонением, доработка считается отменённой.
func (s *Submission) AutoRefund(now time.Time) error {
	if s.DueAction(now) != AutoActionRefund {
		return s.notDue()
	}
	if s.Status == valueobject.SubmissionStatusRejected {
		return s.close(valueobject.SubmissionStatusRejectedAccepted, now)
	}
	return s.close(valueobject.SubmissionStatusCancelledByWorker, now)
}

// OpenDispute: исполнитель оспаривает отклонение до истечения срока ответа.
func (s *Submission) OpenDispute(workerID, disputeID uuid.UUID, now time.Time) error {
	if workerID != s.WorkerID {
		return apperror.New(apperror.ErrCodeForbidden, "оспорить отклонение может только исполнитель")
	}
	if s.DisputeID != nil || s.Status == valueobject.SubmissionStatusDisputed {
		return apperror.ErrDisputeExists
	}
	if s.Status != valueobject.SubmissionStatusRejected {
		return s.invalidState("открыть спор")
	}
	if valueobject.IsExpired(s.RejectionDeadline, now) {
		return apperror.New(apperror.ErrCodeExpired, "срок ответа на отклонение истёк")
	}

	s.DisputeID = &disputeID
	s.RejectionDeadline = nil
	return s.transition(valueobject.SubmissionStatusDisputed, now)
}

func (s *Submission) ResolveDispute(resolution Resolution, now time.Time) error {
	if s.Resolution != nil {
		return apperror.ErrAlreadySettled
	}
	if s.Status != valueobject.SubmissionStatusDisputed {
		return s.invalidState("разрешить спор")
	}
	if resolution.Payment.Total().Amount != s.Amount.Amount {
		return apperror.New(apperror.ErrCodeValidation, "распределение не совпадает с оплатой задания")
	}
	s.Resolution = &resolution
	return s.close(valueobject.SubmissionStatusDisputeResolved, now)
}

// DueAction возвращает просроченное автоматическое действие для работы.
func (s *Submission) DueAction(now time.Time) AutoAction {
	switch s.Status {
	case valueobject.SubmissionStatusSubmitted:
		if valueobject.IsExpired(s.ReviewDeadline, now) {
			return AutoActionApprove
		}
	case valueobject.SubmissionStatusRejected:
		if valueobject.IsExpired(s.RejectionDeadline, now) {
			return AutoActionRefund
		}
	case valueobject.SubmissionStatusRevisionRequested:
		if valueobject.IsExpired(s.RevisionDeadline, now) {
			return AutoActionRefund
		}
	}
	return AutoActionNone
}

func (s *Submission) ActiveDeadline() *Deadline {
	var kind DeadlineKind
	var at *time.Time

	switch s.Status {
	case valueobject.SubmissionStatusSubmitted:
		kind, at = DeadlineReview, s.ReviewDeadline
	case valueobject.SubmissionStatusRejected:
		kind, at = DeadlineRejection, s.RejectionDeadline
	case valueobject.SubmissionStatusRevisionRequested:
		kind, at = DeadlineRevision, s.RevisionDeadline
	}
	if at == nil {
		return nil
	}
	return &Deadline{Kind: kind, At: *at}
}

func (s *Submission) close(to valueobject.SubmissionStatus, now time.Time) error {
	if err := s.transition(to, now); err != nil {
		return err
	}
	s.ClosedAt = &now
	s.ReviewDeadline = nil
	s.RejectionDeadline = nil
	s.RevisionDeadline = nil
	return nil
}

func (s *Submission) transition(to valueobject.SubmissionStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(to) {
		return apperror.New(apperror.ErrCodeInvalidState, "недопустимый переход статуса работы из "+string(s.Status)+" в "+string(to))
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

func (s *Submission) invalidState(action string) error {
	return apperror.New(apperror.ErrCodeInvalidState, "невозможно "+action+" в статусе "+string(s.Status))
}

func (s *Submission) notDue() error {
	return apperror.New(apperror.ErrCodeInvalidState, "для работы нет просроченного автоматического действия")
}
