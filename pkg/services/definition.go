package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxConflictRetries = 5

// Definition is the catalogue of workflow definitions. Stored definitions are
// never edited in place: only IsActive changes, and Revise stores a new
// definition that supersedes the previous one.
type Definition struct {
	definitions *persistence.Repository[models.WorkflowDefinition, *models.WorkflowDefinition]
	store       persistence.Store
	validate    *validator.Validate
	now         func() time.Time
}

// NewDefinition creates a new definition service.
func NewDefinition(store persistence.Store) *Definition {
	return &Definition{
		definitions: persistence.NewRepository[models.WorkflowDefinition](store, persistence.CollectionDefinitions),
		store:       store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (d *Definition) HealthCheck(ctx context.Context) (string, bool) {
	if d.store == nil {
		return "Persistence layer not initialized", false
	}

	err := d.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Validate checks a definition without storing it. Steps are sorted by order.
func (d *Definition) Validate(definition *models.WorkflowDefinition) error {
	if definition == nil {
		return ErrDefinitionNil
	}

	err := d.validate.Struct(definition)
	if err != nil {
		return NewValidationError("Validate", "INVALID_DEFINITION", err.Error(), ErrInvalidRequest)
	}

	stepIDs := make(map[string]struct{}, len(definition.Steps))
	orders := make(map[int]struct{}, len(definition.Steps))

	for _, step := range definition.Steps {
		if _, dup := stepIDs[step.ID]; dup {
			return NewValidationError("Validate", "DUPLICATE_STEP_ID",
				fmt.Sprintf("step id '%s' is used more than once", step.ID), ErrDuplicateStepID)
		}

		if _, dup := orders[step.Order]; dup {
			return NewValidationError("Validate", "DUPLICATE_STEP_ORDER",
				fmt.Sprintf("step order %d is used more than once", step.Order), ErrDuplicateStepOrder)
		}

		if step.Type != models.StepTypeNotification && len(step.AssignedTo) == 0 && len(step.AssignedRoles) == 0 {
			return NewValidationError("Validate", "STEP_WITHOUT_ASSIGNEES",
				fmt.Sprintf("step '%s' has no assignees", step.ID), ErrStepWithoutAssignees)
		}

		stepIDs[step.ID] = struct{}{}
		orders[step.Order] = struct{}{}
	}

	slices.SortStableFunc(definition.Steps, func(a, b *models.WorkflowStep) int {
		return cmp.Compare(a.Order, b.Order)
	})

	return nil
}

// Register validates and stores a new, active definition. A missing ID is
// generated; an ID already in use fails with ErrDefinitionExists.
func (d *Definition) Register(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	err := d.Validate(definition)
	if err != nil {
		return nil, err
	}

	if definition.ID == "" {
		definition.ID = uuid.Must(uuid.NewV7()).String()
	}

	if definition.Version == 0 {
		definition.Version = 1
	}

	definition.IsActive = true
	definition.CreatedAt = d.now().UTC()
	definition.Revision = 0

	err = d.definitions.Save(ctx, definition)
	if persistence.IsRevisionConflict(err) {
		return nil, &ServiceError{
			Op:      "Register",
			Code:    "DEFINITION_EXISTS",
			Message: fmt.Sprintf("definition '%s' already exists", definition.ID),
			Err:     ErrDefinitionExists,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to register definition: %w", err)
	}

	return definition, nil
}

// Get retrieves a definition by its ID, active or not.
func (d *Definition) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, err := d.definitions.Get(ctx, id)
	if persistence.IsNotFound(err) {
		return nil, &ServiceError{Op: "Get", Message: fmt.Sprintf("definition '%s' not found", id), Err: ErrDefinitionNotFound}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	return definition, nil
}

// GetActive retrieves a definition that may start new instances. Inactive
// definitions are reported as not found.
func (d *Definition) GetActive(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	definition, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !definition.IsActive {
		return nil, &ServiceError{Op: "GetActive", Message: fmt.Sprintf("definition '%s' is not active", id), Err: ErrDefinitionNotFound}
	}

	return definition, nil
}

// ListDefinitionsRequest contains options for listing definitions.
type ListDefinitionsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	EntityType models.EntityType
	ActiveOnly bool

	// Sorting
	SortBy    string
	SortOrder string
}

// ListDefinitionsResponse contains the result of listing definitions.
type ListDefinitionsResponse struct {
	Definitions []*models.WorkflowDefinition `json:"definitions"`
	TotalCount  int64                        `json:"total_count"`
	HasNextPage bool                         `json:"has_next_page"`
}

// List retrieves definitions with filtering, sorting, and pagination.
func (d *Definition) List(ctx context.Context, req ListDefinitionsRequest) (*ListDefinitionsResponse, error) {
	if err := d.validateListRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	definitions, err := d.definitions.List(ctx, func(definition *models.WorkflowDefinition) bool {
		if req.ActiveOnly && !definition.IsActive {
			return false
		}

		return req.EntityType == "" || definition.EntityType == req.EntityType
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	slices.SortFunc(definitions, func(a, b *models.WorkflowDefinition) int {
		var order int

		switch req.SortBy {
		case "name":
			order = strings.Compare(a.Name, b.Name)
		case "version":
			order = cmp.Compare(a.Version, b.Version)
		default:
			order = a.CreatedAt.Compare(b.CreatedAt)
		}

		order = cmp.Or(order, strings.Compare(a.ID, b.ID))

		if req.SortOrder == "desc" {
			return -order
		}

		return order
	})

	total := len(definitions)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)

	return &ListDefinitionsResponse{
		Definitions: definitions[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

func (d *Definition) validateListRequest(req *ListDefinitionsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "name", "version"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.EntityType != "" && !req.EntityType.Valid() {
		return NewValidationError(
			"validateListRequest",
			"INVALID_ENTITY_TYPE",
			fmt.Sprintf("invalid entity type '%s'", req.EntityType),
			ErrInvalidEntityType,
		)
	}

	return nil
}

// Deactivate stops a definition from starting new instances. Running
// instances are unaffected. Deactivating an inactive definition is a no-op.
func (d *Definition) Deactivate(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	for range maxConflictRetries {
		definition, err := d.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if !definition.IsActive {
			return definition, nil
		}

		definition.IsActive = false

		err = d.definitions.Save(ctx, definition)
		if persistence.IsRevisionConflict(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to deactivate definition: %w", err)
		}

		return definition, nil
	}

	return nil, fmt.Errorf("failed to deactivate definition %s: %w", id, persistence.ErrRevisionConflict)
}

// Revise stores a new version of an active definition and deactivates the
// previous one. The new version keeps the entity type of the original.
func (d *Definition) Revise(ctx context.Context, id string, revision *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if revision == nil {
		return nil, ErrDefinitionNil
	}

	previous, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !previous.IsActive {
		return nil, &ServiceError{
			Op:      "Revise",
			Code:    "DEFINITION_INACTIVE",
			Message: fmt.Sprintf("definition '%s' was already superseded or deactivated", id),
			Err:     ErrDefinitionInactive,
		}
	}

	if revision.EntityType == "" {
		revision.EntityType = previous.EntityType
	}

	if revision.EntityType != previous.EntityType {
		return nil, NewValidationError("Revise", "ENTITY_TYPE_CHANGED",
			"a revision cannot change the entity type", ErrInvalidEntityType)
	}

	revision.ID = ""
	revision.Version = previous.Version + 1
	revision.PreviousVersionID = previous.ID

	created, err := d.Register(ctx, revision)
	if err != nil {
		return nil, err
	}

	_, err = d.Deactivate(ctx, previous.ID)
	if err != nil && !errors.Is(err, ErrDefinitionNotFound) {
		return nil, fmt.Errorf("revision %s stored but previous version not deactivated: %w", created.ID, err)
	}

	return created, nil
}
