package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HoangDuong1310/licensegate/internal/licensing"
	"github.com/HoangDuong1310/licensegate/internal/models"
)

// KeyAdminService defines the administrative key lifecycle operations.
type KeyAdminService interface {
	CreateKey(ctx context.Context, planID uuid.UUID, notes string, maxDevices *int) (*models.LicenseKey, error)
	Suspend(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error)
	Unsuspend(ctx context.Context, keyCode string) (*models.LicenseKey, error)
	Ban(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error)
	Revoke(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error)
	Extend(ctx context.Context, keyCode string, durationType models.DurationType, durationValue int) (*models.LicenseKey, error)
	ResetHWID(ctx context.Context, keyCode string) (*models.LicenseKey, error)
}

// KeyStore defines the read-side persistence the admin endpoints need.
type KeyStore interface {
	GetLicenseKeyByID(ctx context.Context, id uuid.UUID) (*models.LicenseKey, error)
	ListLicenseKeys(ctx context.Context, status models.KeyStatus, limit, offset int) ([]*models.LicenseKey, error)
	GetActivationsByKeyID(ctx context.Context, keyID uuid.UUID) ([]*models.KeyActivation, error)
	GetUsageLogsByKeyID(ctx context.Context, keyID uuid.UUID, limit, offset int) ([]*models.KeyUsageLog, error)
	CountUsageLogsByKeyID(ctx context.Context, keyID uuid.UUID) (int, error)
}

// KeysHandler handles administrative license key endpoints.
type KeysHandler struct {
	service KeyAdminService
	store   KeyStore
	logger  zerolog.Logger
}

// NewKeysHandler creates a new KeysHandler.
func NewKeysHandler(service KeyAdminService, store KeyStore, logger zerolog.Logger) *KeysHandler {
	return &KeysHandler{
		service: service,
		store:   store,
		logger:  logger.With().Str("component", "keys_handler").Logger(),
	}
}

// RegisterRoutes registers admin key routes on the given router group.
func (h *KeysHandler) RegisterRoutes(r *gin.RouterGroup) {
	keys := r.Group("/keys")
	{
		keys.GET("", h.List)
		keys.POST("", h.Create)
		keys.GET("/:id", h.Get)
		keys.GET("/:id/activations", h.Activations)
		keys.GET("/:id/usage", h.UsageLogs)
		keys.POST("/:id/suspend", h.Suspend)
		keys.POST("/:id/unsuspend", h.Unsuspend)
		keys.POST("/:id/ban", h.Ban)
		keys.POST("/:id/revoke", h.Revoke)
		keys.POST("/:id/extend", h.Extend)
		keys.POST("/:id/reset-hwid", h.ResetHWID)
	}
}

// StatusChangeRequest is the request body for suspend/ban/revoke.
type StatusChangeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// keyByID resolves the :id path parameter to a license key. Writes the
// error response and returns nil when resolution fails.
func (h *KeysHandler) keyByID(c *gin.Context) *models.LicenseKey {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key ID"})
		return nil
	}

	key, err := h.store.GetLicenseKeyByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license key not found"})
			return nil
		}
		h.logger.Error().Err(err).Str("key_id", id.String()).Msg("failed to load license key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load license key"})
		return nil
	}
	return key
}

// adminRespond writes the outcome of an administrative operation.
func (h *KeysHandler) adminRespond(c *gin.Context, key *models.LicenseKey, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"key": key})
		return
	}
	if errors.Is(err, models.ErrKeyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "license key not found"})
		return
	}
	var protoErr *licensing.Error
	if errors.As(err, &protoErr) {
		c.JSON(http.StatusConflict, gin.H{"error": protoErr.Message, "code": protoErr.Code})
		return
	}
	h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("admin key operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
}

// pageParams reads limit/offset query parameters with defaults.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// Create issues a new license key against a plan.
// POST /api/v1/admin/keys
func (h *KeysHandler) Create(c *gin.Context) {
	var req models.CreateLicenseKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.service.CreateKey(c.Request.Context(), req.PlanID, req.Notes, req.MaxDevices)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
			return
		}
		h.logger.Error().Err(err).Str("plan_id", req.PlanID.String()).Msg("failed to create license key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create license key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// List returns issued keys with optional status filtering and paging.
// GET /api/v1/admin/keys
func (h *KeysHandler) List(c *gin.Context) {
	status := models.KeyStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	limit, offset := pageParams(c)
	keys, err := h.store.ListLicenseKeys(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list license keys")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list license keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// Get returns a specific key by ID.
// GET /api/v1/admin/keys/:id
func (h *KeysHandler) Get(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// Activations returns all device bindings for a key.
// GET /api/v1/admin/keys/:id/activations
func (h *KeysHandler) Activations(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	activations, err := h.store.GetActivationsByKeyID(c.Request.Context(), key.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("key_id", key.ID.String()).Msg("failed to list activations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list activations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activations": activations})
}

// UsageLogs returns the key's usage ledger, newest first.
// GET /api/v1/admin/keys/:id/usage
func (h *KeysHandler) UsageLogs(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	limit, offset := pageParams(c)
	logs, err := h.store.GetUsageLogsByKeyID(c.Request.Context(), key.ID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("key_id", key.ID.String()).Msg("failed to list usage logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list usage logs"})
		return
	}

	total, err := h.store.CountUsageLogsByKeyID(c.Request.Context(), key.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("key_id", key.ID.String()).Msg("failed to count usage logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list usage logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total, "limit": limit, "offset": offset})
}

// Suspend temporarily blocks a key.
// POST /api/v1/admin/keys/:id/suspend
func (h *KeysHandler) Suspend(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	var req StatusChangeRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.service.Suspend(c.Request.Context(), key.KeyCode, req.Reason)
	h.adminRespond(c, updated, err)
}

// Unsuspend lifts a suspension, restoring the status the key's history implies.
// POST /api/v1/admin/keys/:id/unsuspend
func (h *KeysHandler) Unsuspend(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	updated, err := h.service.Unsuspend(c.Request.Context(), key.KeyCode)
	h.adminRespond(c, updated, err)
}

// Ban permanently bans a key.
// POST /api/v1/admin/keys/:id/ban
func (h *KeysHandler) Ban(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	var req StatusChangeRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.service.Ban(c.Request.Context(), key.KeyCode, req.Reason)
	h.adminRespond(c, updated, err)
}

// Revoke permanently revokes a key.
// POST /api/v1/admin/keys/:id/revoke
func (h *KeysHandler) Revoke(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	var req StatusChangeRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.service.Revoke(c.Request.Context(), key.KeyCode, req.Reason)
	h.adminRespond(c, updated, err)
}

// Extend pushes a key's expiration further out, reviving EXPIRED keys.
// POST /api/v1/admin/keys/:id/extend
func (h *KeysHandler) Extend(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	var req models.ExtendKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.Extend(c.Request.Context(), key.KeyCode, req.DurationType, req.DurationValue)
	h.adminRespond(c, updated, err)
}

// ResetHWID releases every device binding on a key.
// POST /api/v1/admin/keys/:id/reset-hwid
func (h *KeysHandler) ResetHWID(c *gin.Context) {
	key := h.keyByID(c)
	if key == nil {
		return
	}

	updated, err := h.service.ResetHWID(c.Request.Context(), key.KeyCode)
	h.adminRespond(c, updated, err)
}
