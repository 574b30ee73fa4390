// Package web provides the read-side HTTP API over run and node execution records.
package web

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/runtrace/runtrace/pkg/persistence"
)

const defaultListLimit = 20

// APIHandlers serves run and node-execution queries. The tracker is the
// only writer; this surface is read-only by design.
type APIHandlers struct {
	store     persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(store persistence.Persistence, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:     store,
		validator: validator,
	}
}

// listRunsRequest carries the validated query parameters of GetRuns.
type listRunsRequest struct {
	TenantID string `validate:"required"`
	AppID    string `validate:"required"`
	Limit    int    `validate:"min=1,max=100"`
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	req := listRunsRequest{
		TenantID: c.Query("tenant_id"),
		AppID:    c.Params("appID"),
		Limit:    defaultListLimit,
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		req.Limit = limit
	}

	err := h.validator.Struct(&req)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	runs, err := h.store.WorkflowRunRepository().ListByApp(c.Context(), req.TenantID, req.AppID, req.Limit)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":  runs,
		"limit": req.Limit,
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.store.WorkflowRunRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunNodeExecutions(c fiber.Ctx) error {
	runID := c.Params("id")

	// Confirm the run exists so an unknown id is a 404, not an empty list.
	_, err := h.store.WorkflowRunRepository().GetByID(c.Context(), runID)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	executions, err := h.store.NodeExecutionRepository().ListByRun(c.Context(), runID)
	if err != nil {
		return handleRepositoryError(c, err)
	}

	return c.JSON(fiber.Map{
		"node_executions": executions,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.store.HealthCheck(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
