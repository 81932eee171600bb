// Package models defines the core domain models for multi-step approval workflows.
package models

import "time"

// EntityType identifies the kind of business entity a workflow decides over.
type EntityType string

const (
	EntityTypeDocument EntityType = "document"
	EntityTypeProduct  EntityType = "product"
	EntityTypeMaterial EntityType = "material"
	EntityTypeFee      EntityType = "fee"
	EntityTypeReport   EntityType = "report"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeDocument, EntityTypeProduct, EntityTypeMaterial, EntityTypeFee, EntityTypeReport:
		return true
	default:
		return false
	}
}

// Trigger is an opaque descriptor of when a workflow should be started.
// The engine never evaluates it.
type Trigger struct {
	Type   string         `json:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// WorkflowDefinition is the immutable template a workflow instance is started from.
// Only IsActive may change once stored; editing produces a new definition.
type WorkflowDefinition struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"                          validate:"required,min=3"`
	Description       string          `json:"description,omitempty"`
	EntityType        EntityType      `json:"entity_type"                   validate:"required,oneof=document product material fee report"`
	Triggers          []*Trigger      `json:"triggers,omitempty"            validate:"omitempty,dive"`
	Steps             []*WorkflowStep `json:"steps"                         validate:"required,min=1,dive"`
	IsActive          bool            `json:"is_active"`
	Version           int             `json:"version"`
	PreviousVersionID string          `json:"previous_version_id,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`

	Revision int64 `json:"-"`
}

// Step returns the step with the given ID, or nil.
func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for _, step := range d.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

func (d *WorkflowDefinition) GetID() string { return d.ID }

func (d *WorkflowDefinition) GetRevision() int64 { return d.Revision }

func (d *WorkflowDefinition) SetRevision(rev int64) { d.Revision = rev }
