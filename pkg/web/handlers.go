package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/orchardhq/orchard/pkg/agents"
	"github.com/orchardhq/orchard/pkg/dispatch"
	"github.com/orchardhq/orchard/pkg/executions"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/workflows"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type APIHandlers struct {
	workflowService *workflows.Service
	executionStore  *executions.Store
	dispatcher      *dispatch.Dispatcher
	synchronizer    *agents.Synchronizer
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *workflows.Service,
	executionStore *executions.Store,
	dispatcher *dispatch.Dispatcher,
	synchronizer *agents.Synchronizer,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		executionStore:  executionStore,
		dispatcher:      dispatcher,
		synchronizer:    synchronizer,
		validator:       validate,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.workflowService.HealthCheck(c.Context())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		return badRequest(c, "workspace_id query parameter is required")
	}

	list, err := h.workflowService.ListByWorkspace(c.Context(), workspaceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": list})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	workflow, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, createErr := h.workflowService.Create(c.Context(), workflow)
	if createErr != nil {
		return handleServiceError(c, createErr)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.bindWorkflow(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, updateErr := h.workflowService.Update(c.Context(), id, workflow)
	if updateErr != nil {
		return handleServiceError(c, updateErr)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RunWorkflowRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.dispatcher.RunManual(c.Context(), id, req.InputData, req.Test)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// GetWebhookTestEvent returns the captured test payload for a workflow's
// webhook trigger, 204 while nothing arrived yet.
func (h *APIHandlers) GetWebhookTestEvent(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	payload, err := h.dispatcher.TakeWebhookTestEvent(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if payload == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(payload)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		return badRequest(c, "workspace_id query parameter is required")
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	list, err := h.executionStore.FindAllForWorkspace(c.Context(), workspaceID, limit, offset)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": list,
		"pagination": fiber.Map{"limit": limit, "offset": offset},
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionStore.FindOne(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	err := h.executionStore.Stop(c.Context(), id)
	if err != nil {
		if errors.Is(err, executions.ErrExecutionSettled) {
			return badRequest(c, err.Error())
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleWebhook is the catch-all intake for /webhooks/*. Paths under
// /webhooks/test/ capture the payload for the editor instead of starting
// executions.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	path := "/" + strings.TrimPrefix(c.Params("*"), "/")

	test := false
	if strings.HasPrefix(path, "/test/") {
		test = true
		path = strings.TrimPrefix(path, "/test")
	}

	payload := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Webhook payload must be a JSON object")
		}
	}

	started, err := h.dispatcher.HandleWebhook(c.Context(), c.Method(), path, payload, test)
	if err != nil {
		return internalError(c, err)
	}

	if test {
		return c.SendStatus(fiber.StatusAccepted)
	}

	if len(started) == 0 {
		return notFound(c, "no webhook workflow matches this path")
	}

	ids := make([]string, len(started))
	for i, execution := range started {
		ids[i] = execution.ID
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"execution_ids": ids})
}

func (h *APIHandlers) SyncAgentTriggers(c fiber.Ctx) error {
	agentID := c.Params("id")
	if agentID == "" {
		return badRequest(c, "Agent ID is required")
	}

	var req SyncAgentTriggersRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Agent.ID != agentID {
		return badRequest(c, "Agent ID in path and body do not match")
	}

	agent := &models.Agent{
		ID:          req.Agent.ID,
		WorkspaceID: req.Agent.WorkspaceID,
		ProjectID:   req.Agent.ProjectID,
		Name:        req.Agent.Name,
	}

	declared := make([]*models.AgentTrigger, len(req.Triggers))
	for i, trigger := range req.Triggers {
		declared[i] = &models.AgentTrigger{
			ID:        trigger.ID,
			AgentID:   agent.ID,
			TriggerID: trigger.TriggerID,
			Node:      trigger.Node,
		}
	}

	err := h.synchronizer.Sync(c.Context(), agent, declared)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) bindWorkflow(c fiber.Ctx) (*models.Workflow, error) {
	var req SaveWorkflowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return nil, err
	}

	err = h.validator.Struct(req)
	if err != nil {
		return nil, err
	}

	return &models.Workflow{
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Strategy:    models.TriggerStrategy(req.Strategy),
		IsActive:    req.IsActive,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	}, nil
}

func parsePagination(c fiber.Ctx) (limit, offset int, err error) {
	limit = defaultListLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
	}

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
