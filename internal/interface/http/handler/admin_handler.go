package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/interface/http/response"
	"github.com/ignatzorin/escrow-engine/internal/usecase/sweeper"
)

type AdminHandler struct {
	sweeper *sweeper.Sweeper
}

func NewAdminHandler(sw *sweeper.Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sw}
}

// Sweep запускает один проход планировщика и возвращает его отчёт.
func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
