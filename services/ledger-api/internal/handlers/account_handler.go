package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type AccountHandler struct {
	logger  *zap.Logger
	service services.AccountService
}

func NewAccountHandler(logger *zap.Logger, svc services.AccountService) *AccountHandler {
	return &AccountHandler{logger: logger, service: svc}
}

// RegisterRoutes expects a group that already resolved the principal.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts", h.OpenAccount)
	r.GET("/accounts/me", h.GetAccount)
	r.GET("/accounts/me/transactions", h.ListTransactions)
	r.GET("/accounts/me/reconciliation", h.Reconcile)
	r.POST("/accounts/me/pix-keys", h.CreatePixKey)
	r.GET("/accounts/me/pix-keys", h.ListPixKeys)
}

// OpenAccount is idempotent per principal and always answers 200 with the account.
func (h *AccountHandler) OpenAccount(c *gin.Context) {
	account, err := h.service.Open(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, views.NewAccountView(account))
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.service.Me(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, views.NewAccountView(account))
}

func (h *AccountHandler) ListTransactions(c *gin.Context) {
	var q views.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, invalidInput("invalid query parameters", err))
		return
	}
	from, err := parseBound(q.From)
	if err != nil {
		respondError(c, h.logger, invalidInput("from must be an RFC 3339 timestamp", err))
		return
	}
	to, err := parseBound(q.To)
	if err != nil {
		respondError(c, h.logger, invalidInput("to must be an RFC 3339 timestamp", err))
		return
	}

	account, records, err := h.service.History(c.Request.Context(), principalID(c), from, to, q.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]views.TransactionView, 0, len(records))
	for _, r := range records {
		out = append(out, views.NewTransactionView(r, account.ID))
	}
	respond(c, http.StatusOK, out)
}

func (h *AccountHandler) Reconcile(c *gin.Context) {
	rec, err := h.service.Reconcile(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

func (h *AccountHandler) CreatePixKey(c *gin.Context) {
	key, err := h.service.CreatePixKey(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, key)
}

func (h *AccountHandler) ListPixKeys(c *gin.Context) {
	keys, err := h.service.PixKeys(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]views.PixKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, views.NewPixKeyView(k))
	}
	respond(c, http.StatusOK, out)
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
