// Package handlers contains the HTTP handlers for the LicenseGate API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/HoangDuong1310/licensegate/internal/licensing"
	"github.com/HoangDuong1310/licensegate/internal/models"
)

// LicenseService defines the protocol operations exposed to clients.
type LicenseService interface {
	Activate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*licensing.Result, error)
	Validate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*licensing.Result, error)
	Heartbeat(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*licensing.Result, error)
	Deactivate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*licensing.Result, error)
}

// LicenseHandler handles the client-facing license protocol endpoints.
type LicenseHandler struct {
	service LicenseService
	logger  zerolog.Logger
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(service LicenseService, logger zerolog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With().Str("component", "license_handler").Logger(),
	}
}

// RegisterRoutes registers license protocol routes on the given router group.
func (h *LicenseHandler) RegisterRoutes(r *gin.RouterGroup) {
	license := r.Group("/license")
	{
		license.POST("/activate", h.Activate)
		license.POST("/validate", h.Validate)
		license.POST("/heartbeat", h.Heartbeat)
		license.POST("/deactivate", h.Deactivate)
	}
}

// errorBody is the JSON error payload. The code distinguishes failure
// modes; quota failures also carry device counts.
type errorBody struct {
	Code           licensing.ErrorCode `json:"code"`
	Message        string              `json:"message"`
	CurrentDevices int                 `json:"current_devices,omitempty"`
	MaxDevices     int                 `json:"max_devices,omitempty"`
}

// statusForCode maps protocol error codes to HTTP status codes.
func statusForCode(code licensing.ErrorCode) int {
	switch code {
	case licensing.CodeInvalidKey:
		return http.StatusNotFound
	case licensing.CodeKeyExpired, licensing.CodeKeySuspended,
		licensing.CodeKeyBanned, licensing.CodeKeyRevoked:
		return http.StatusForbidden
	case licensing.CodeMaxDevicesReached:
		return http.StatusConflict
	case licensing.CodeHwidNotActivated, licensing.CodeNotActivated:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respond writes a protocol result or error, preserving the error
// taxonomy on the wire.
func (h *LicenseHandler) respond(c *gin.Context, result *licensing.Result, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
		return
	}

	var protoErr *licensing.Error
	if errors.As(err, &protoErr) {
		c.JSON(statusForCode(protoErr.Code), gin.H{
			"success": false,
			"error": errorBody{
				Code:           protoErr.Code,
				Message:        protoErr.Message,
				CurrentDevices: protoErr.CurrentDevices,
				MaxDevices:     protoErr.MaxDevices,
			},
		})
		return
	}

	h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("license operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	}})
}

// metaFrom builds device metadata from the request context and body fields.
func metaFrom(c *gin.Context, deviceName, deviceInfo string) models.DeviceMeta {
	return models.DeviceMeta{
		DeviceName: deviceName,
		DeviceInfo: deviceInfo,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
}

// Activate binds a device to a license key.
// POST /api/v1/license/activate
func (h *LicenseHandler) Activate(c *gin.Context) {
	var req models.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorBody{
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		}})
		return
	}

	result, err := h.service.Activate(c.Request.Context(), req.KeyCode, req.HWID,
		metaFrom(c, req.DeviceName, req.DeviceInfo))
	h.respond(c, result, err)
}

// Validate reports whether a key is usable without mutating state.
// POST /api/v1/license/validate
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req models.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorBody{
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		}})
		return
	}

	result, err := h.service.Validate(c.Request.Context(), req.KeyCode, req.HWID,
		metaFrom(c, "", ""))
	h.respond(c, result, err)
}

// Heartbeat refreshes an active device binding.
// POST /api/v1/license/heartbeat
func (h *LicenseHandler) Heartbeat(c *gin.Context) {
	var req models.DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorBody{
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		}})
		return
	}

	result, err := h.service.Heartbeat(c.Request.Context(), req.KeyCode, req.HWID,
		metaFrom(c, "", ""))
	h.respond(c, result, err)
}

// Deactivate releases a device's quota slot.
// POST /api/v1/license/deactivate
func (h *LicenseHandler) Deactivate(c *gin.Context) {
	var req models.DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorBody{
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		}})
		return
	}

	result, err := h.service.Deactivate(c.Request.Context(), req.KeyCode, req.HWID,
		metaFrom(c, "", ""))
	h.respond(c, result, err)
}
