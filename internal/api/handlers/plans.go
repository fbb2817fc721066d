package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HoangDuong1310/licensegate/internal/models"
)

// PlanStore defines the persistence operations for plans.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)
}

// PlansHandler handles plan administration endpoints.
type PlansHandler struct {
	store  PlanStore
	logger zerolog.Logger
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(store PlanStore, logger zerolog.Logger) *PlansHandler {
	return &PlansHandler{
		store:  store,
		logger: logger.With().Str("component", "plans_handler").Logger(),
	}
}

// RegisterRoutes registers plan routes on the given router group.
func (h *PlansHandler) RegisterRoutes(r *gin.RouterGroup) {
	plans := r.Group("/plans")
	{
		plans.GET("", h.List)
		plans.POST("", h.Create)
		plans.GET("/:id", h.Get)
	}
}

// Create registers a new plan.
// POST /api/v1/admin/plans
func (h *PlansHandler) Create(c *gin.Context) {
	var req models.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan := models.NewPlan(req.Name, req.DurationType, req.DurationValue, req.MaxDevices)
	if err := h.store.CreatePlan(c.Request.Context(), plan); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create plan"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"plan": plan})
}

// List returns all plans.
// GET /api/v1/admin/plans
func (h *PlansHandler) List(c *gin.Context) {
	plans, err := h.store.ListPlans(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list plans")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list plans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// Get returns a specific plan by ID.
// GET /api/v1/admin/plans/:id
func (h *PlansHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan ID"})
		return
	}

	plan, err := h.store.GetPlanByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}
		h.logger.Error().Err(err).Str("plan_id", id.String()).Msg("failed to load plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
