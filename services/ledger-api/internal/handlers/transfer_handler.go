package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type TransferHandler struct {
	logger  *zap.Logger
	service services.TransferService
}

func NewTransferHandler(logger *zap.Logger, svc services.TransferService) *TransferHandler {
	return &TransferHandler{logger: logger, service: svc}
}

func (h *TransferHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers", h.CreateTransfer)
}

func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req views.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	record, err := h.service.Transfer(c.Request.Context(), principalID(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, views.NewTransactionView(record, record.SenderID))
}

