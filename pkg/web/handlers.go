// Package web provides the REST API for workflow definitions, instances and tasks.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/approvals/pkg/engine"
	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	definitions *services.Definition
	engine      *engine.Engine
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *services.Definition,
	engine *engine.Engine,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		engine:      engine,
		validator:   validator,
	}
}

// Routes mounts every endpoint on app.
func (h *APIHandlers) Routes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/livez", h.Liveness)
	app.Get("/readyz", h.Readiness)

	d := app.Group("/definitions")
	d.Get("/", h.GetDefinitions)
	d.Post("/", h.CreateDefinition)
	d.Get("/:id", h.GetDefinition)
	d.Post("/:id/deactivate", h.DeactivateDefinition)
	d.Post("/:id/revisions", h.ReviseDefinition)

	i := app.Group("/instances")
	i.Get("/", h.GetInstances)
	i.Post("/", h.StartInstance)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/steps/:stepId/decisions", h.SubmitDecision)
	i.Post("/:id/cancel", h.CancelInstance)
	i.Post("/:id/pause", h.PauseInstance)
	i.Post("/:id/resume", h.ResumeInstance)

	t := app.Group("/tasks")
	t.Get("/", h.GetUserTasks)
	t.Get("/overdue", h.GetOverdueTasks)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.definitions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvals API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approvals API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) Liveness(c fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

func (h *APIHandlers) Readiness(c fiber.Ctx) error {
	if _, ok := h.definitions.HealthCheck(c.Context()); !ok {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	req, err := h.parseListDefinitionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.definitions.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions":   result.Definitions,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListDefinitionsRequest parses query parameters for listing definitions.
func (h *APIHandlers) parseListDefinitionsRequest(c fiber.Ctx) (*services.ListDefinitionsRequest, error) {
	req := &services.ListDefinitionsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.EntityType = models.EntityType(c.Query("entity_type"))

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.ActiveOnly = active
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	definition, err := h.definitions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req DefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Register(c.Context(), req.Definition())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeactivateDefinition(c fiber.Ctx) error {
	definition, err := h.definitions.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) ReviseDefinition(c fiber.Ctx) error {
	var req DefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	revised, err := h.definitions.Revise(c.Context(), c.Params("id"), req.Definition())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(revised)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.StartInstance(c.Context(), engine.StartRequest{
		DefinitionID: req.DefinitionID,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		EntityName:   req.EntityName,
		StartedBy:    req.StartedBy,
		Priority:     req.Priority,
		Metadata:     req.Metadata,
		SkipSteps:    req.SkipSteps,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformInstanceResponse(instance))
}

// GetInstances lists instances of one entity when entity_type and entity_id
// are given, active instances with active=true, and open instances otherwise.
func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	entityType := models.EntityType(c.Query("entity_type"))
	entityID := c.Query("entity_id")

	var (
		instances []*models.WorkflowInstance
		err       error
	)

	switch {
	case entityType != "" || entityID != "":
		if entityType == "" || entityID == "" {
			return badRequest(c, "entity_type and entity_id must be given together")
		}

		if !entityType.Valid() {
			return badRequest(c, "unknown entity_type "+string(entityType))
		}

		instances, err = h.engine.GetInstancesByEntity(c.Context(), entityType, entityID)
	case c.Query("active") == "true":
		instances, err = h.engine.GetActiveInstances(c.Context())
	default:
		instances, err = h.engine.GetOpenInstances(c.Context())
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   TransformInstancesResponse(instances),
		"total_count": len(instances),
	})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformInstanceResponse(instance))
}

// SubmitDecision records a decision. A decision that was not applied because
// the instance or step is no longer open answers 409.
func (h *APIHandlers) SubmitDecision(c fiber.Ctx) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")

	applied, err := h.engine.SubmitDecision(c.Context(), engine.DecisionRequest{
		RequestID:      req.RequestID,
		InstanceID:     id,
		StepInstanceID: c.Params("stepId"),
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		Decision:       req.Decision,
		Comments:       req.Comments,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if !applied {
		return conflict(c, "decision was not applied: the instance or step is not open for decisions")
	}

	instance, err := h.engine.GetInstance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformInstanceResponse(instance))
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	var req CancelInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.CancelInstance(c.Context(), c.Params("id"), req.CancelledBy, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformInstanceResponse(instance))
}

func (h *APIHandlers) PauseInstance(c fiber.Ctx) error {
	instance, err := h.engine.PauseInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformInstanceResponse(instance))
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	instance, err := h.engine.ResumeInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformInstanceResponse(instance))
}

func (h *APIHandlers) GetUserTasks(c fiber.Ctx) error {
	user := c.Query("user")
	if user == "" {
		return badRequest(c, "user is required")
	}

	tasks, err := h.engine.GetUserTasks(c.Context(), user)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (h *APIHandlers) GetOverdueTasks(c fiber.Ctx) error {
	now := time.Now().UTC()

	if nowStr := c.Query("now"); nowStr != "" {
		parsed, err := time.Parse(time.RFC3339, nowStr)
		if err != nil {
			return badRequest(c, "now must be an RFC 3339 timestamp")
		}

		now = parsed
	}

	tasks, err := h.engine.GetOverdueTasks(c.Context(), now)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": len(tasks),
		"as_of":       now,
	})
}
