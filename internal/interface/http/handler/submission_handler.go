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
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
)

// SubmissionHandler: работы исполнителей по заданиям и их проверка заказчиком.
type SubmissionHandler struct {
	submissions *submission.Service
	disputes    *dispute.Service
	ledger      *escrow.Ledger
}

func NewSubmissionHandler(submissions *submission.Service, disputes *dispute.Service, ledger *escrow.Ledger) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, disputes: disputes, ledger: ledger}
}

// Create: работу сдаёт исполнитель, оплата резервируется со счёта заказчика.
func (h *SubmissionHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные запроса")
		return
	}
	amount, ok := parseMoney(c, req.Amount, req.Currency)
	if !ok {
		return
	}

	created, err := h.submissions.Create(c.Request.Context(), submission.CreateSubmissionInput{
		JobID:      uuid.MustParse(req.JobID),
		EmployerID: uuid.MustParse(req.EmployerID),
		WorkerID:   user.UserID,
		Amount:     amount,
		Proof:      entity.WorkProof{Message: req.Message, FileRefs: req.FileRefs, Links: req.Links},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToSubmissionResponse(created))
}

// ListMy обрабатывает GET /api/submissions/my?role=worker|employer
func (h *SubmissionHandler) ListMy(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filter := listFilter(c)
	items, err := h.submissions.ListByUser(c.Request.Context(), user.UserID, entity.Role(c.Query("role")), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToSubmissionResponses(items), len(items), filter.Limit, filter.Offset)
}

func (h *SubmissionHandler) Get(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}

	sub, err := h.submissions.Get(c.Request.Context(), id, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToSubmissionResponse(sub))
}

func (h *SubmissionHandler) Deadline(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}

	deadline, remaining, err := h.submissions.Deadline(c.Request.Context(), id, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	if deadline == nil {
		response.Success(c, gin.H{"deadline": nil})
		return
	}

	response.Success(c, gin.H{
		"deadline":  deadline,
		"remaining": remaining,
	})
}

func (h *SubmissionHandler) Audit(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}

	entries, err := h.submissions.Audit(c.Request.Context(), id, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToAuditResponses(entries))
}

func (h *SubmissionHandler) Escrow(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}

	if _, err := h.submissions.Get(c.Request.Context(), id, viewer); err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.ledger.GetReservation(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToReservationResponse(res))
}

func (h *SubmissionHandler) Disputes(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}

	items, err := h.disputes.ListBySubject(c.Request.Context(), valueobject.SubjectKindJob, id, viewer.ID, viewer.Admin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponses(items))
}

func (h *SubmissionHandler) Approve(c *gin.Context) {
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.Approve(c.Request.Context(), id, userID)
	})
}

func (h *SubmissionHandler) Reject(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.Reject(c.Request.Context(), id, userID, req.Reason)
	})
}

func (h *SubmissionHandler) RequestRevision(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.RequestRevision(c.Request.Context(), id, userID, req.Reason)
	})
}

func (h *SubmissionHandler) AcceptRejection(c *gin.Context) {
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.AcceptRejection(c.Request.Context(), id, userID)
	})
}

func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	var req dto.ProofRequest
	if !bindJSON(c, &req) {
		return
	}
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.Resubmit(c.Request.Context(), id, userID, req.ToProof())
	})
}

func (h *SubmissionHandler) Cancel(c *gin.Context) {
	h.command(c, func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error) {
		return h.submissions.CancelByWorker(c.Request.Context(), id, userID)
	})
}

func (h *SubmissionHandler) CheckExpired(c *gin.Context) {
	viewer, id, ok := h.viewer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.submissions.Get(ctx, id, viewer); err != nil {
		response.Error(c, err)
		return
	}
	action, err := h.submissions.ApplyDue(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	sub, err := h.submissions.Get(ctx, id, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"action":     action,
		"submission": dto.ToSubmissionResponse(sub),
	})
}

func (h *SubmissionHandler) OpenDispute(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "причина спора обязательна")
		return
	}

	d, err := h.disputes.Open(c.Request.Context(), valueobject.SubjectKindJob, id, user.UserID, req.ToClaim())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToDisputeResponse(d))
}

func (h *SubmissionHandler) viewer(c *gin.Context) (submission.Viewer, uuid.UUID, bool) {
	user, ok := currentUser(c)
	if !ok {
		return submission.Viewer{}, uuid.Nil, false
	}
	id, ok := pathID(c)
	if !ok {
		return submission.Viewer{}, uuid.Nil, false
	}
	return submission.Viewer{ID: user.UserID, Admin: user.IsAdmin()}, id, true
}

type submissionCommand func(c *gin.Context, id, userID uuid.UUID) (*entity.Submission, error)

func (h *SubmissionHandler) command(c *gin.Context, run submissionCommand) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	sub, err := run(c, id, user.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToSubmissionResponse(sub))
}
