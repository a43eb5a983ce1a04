package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	logger  *zap.Logger
	service services.DeviceService
}

func NewDeviceHandler(logger *zap.Logger, svc services.DeviceService) *DeviceHandler {
	return &DeviceHandler{logger: logger, service: svc}
}

// RegisterRoutes mounts the owner-facing device management routes.
func (h *DeviceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/devices", h.RegisterDevice)
	r.GET("/devices", h.ListDevices)
	r.POST("/devices/:deviceId/rotate", h.RotateCredential)
	r.POST("/devices/:deviceId/deactivate", h.DeactivateDevice)
	r.GET("/devices/:deviceId/usage", h.GetUsage)
}

// RegisterDeviceRoutes mounts the routes devices call with their own credentials.
func (h *DeviceHandler) RegisterDeviceRoutes(r *gin.RouterGroup) {
	r.POST("/device-payments", h.CreatePayment)
}

func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req views.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	device, credential, err := h.service.Register(c.Request.Context(), principalID(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, views.DeviceCredentialView{DeviceView: views.NewDeviceView(device), Credential: credential})
}

func (h *DeviceHandler) ListDevices(c *gin.Context) {
	devices, err := h.service.List(c.Request.Context(), principalID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]views.DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, views.NewDeviceView(d))
	}
	respond(c, http.StatusOK, out)
}

func (h *DeviceHandler) RotateCredential(c *gin.Context) {
	device, credential, err := h.service.Rotate(c.Request.Context(), principalID(c), c.Param("deviceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, views.DeviceCredentialView{DeviceView: views.NewDeviceView(device), Credential: credential})
}

func (h *DeviceHandler) DeactivateDevice(c *gin.Context) {
	device, err := h.service.Deactivate(c.Request.Context(), principalID(c), c.Param("deviceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, views.NewDeviceView(device))
}

func (h *DeviceHandler) GetUsage(c *gin.Context) {
	usage, err := h.service.Usage(c.Request.Context(), principalID(c), c.Param("deviceId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, usage)
}

func (h *DeviceHandler) CreatePayment(c *gin.Context) {
	deviceID := c.GetHeader(pkg.HeaderDeviceId)
	credential, ok := bearerToken(c.GetHeader("Authorization"))
	if utils.IsEmpty(deviceID) || !ok {
		respondError(c, h.logger, pkg.DeviceUnauthorized())
		return
	}
	c.Set(pkg.DeviceId, deviceID)

	var req views.DevicePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	record, err := h.service.Pay(c.Request.Context(), deviceID, credential, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, views.NewTransactionView(record, record.SenderID))
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
