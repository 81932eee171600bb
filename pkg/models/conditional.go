package models

// Condition is an opaque predicate descriptor attached to a step. Evaluating it
// is the caller's job; the engine only consumes the resulting skip signal.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Action describes a side effect executed by an external collaborator when a
// step is reached.
type Action struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}
