package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/dto"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/response"
	"github.com/ignatzorin/escrow-engine/internal/storage"
	"github.com/ignatzorin/escrow-engine/internal/usecase/dispute"
)

type DisputeHandler struct {
	disputes *dispute.Service
	evidence *storage.EvidenceStorage
}

func NewDisputeHandler(disputes *dispute.Service, evidence *storage.EvidenceStorage) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, evidence: evidence}
}

func (h *DisputeHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	d, err := h.disputes.Get(c.Request.Context(), id, user.UserID, user.IsAdmin())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

// AddEvidence принимает только ссылки на файлы, загруженные этим же пользователем через /api/evidence.
func (h *DisputeHandler) AddEvidence(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите ссылки на доказательства")
		return
	}
	for _, ref := range req.Refs {
		if !h.evidence.Owns(c.Request.Context(), user.UserID, ref) {
			response.BadRequest(c, fmt.Sprintf("файл %s не найден среди ваших загрузок", ref))
			return
		}
	}

	d, err := h.disputes.AddEvidence(c.Request.Context(), id, user.UserID, req.Refs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}

// Upload обрабатывает POST /api/evidence (multipart, поле file) и возвращает ссылку на файл.
func (h *DisputeHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	// запас на заголовки multipart
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.evidence.MaxUploadBytes()+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "файл не передан или превышает допустимый размер")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "не удалось прочитать файл")
		return
	}
	defer file.Close()

	saved, err := h.evidence.Save(c.Request.Context(), user.UserID, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, saved)
}

// Resolve: решение администратора по спору: refund_buyer, pay_seller или partial_refund.
// Повторное решение отвечает already_processed.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "укажите решение и комментарий")
		return
	}
	decision, err := valueobject.NewDecision(req.Decision)
	if err != nil {
		response.Error(c, err)
		return
	}

	d, err := h.disputes.Resolve(c.Request.Context(), id, user.UserID, decision, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToDisputeResponse(d))
}
