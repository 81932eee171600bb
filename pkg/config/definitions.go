// Package config loads workflow definitions from YAML or JSON files.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/approvals/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed definitions.schema.json
var definitionsSchema []byte

var ErrInvalidDefinitionsFile = errors.New("invalid definitions file")

// DefinitionsFile is the document stored in a definitions file.
type DefinitionsFile struct {
	Definitions []*models.WorkflowDefinition `json:"definitions"`
}

var definitionExtensions = []string{".yaml", ".yml", ".json"}

// ParseDefinitions decodes a definitions document. JSON documents are valid
// YAML, so both formats go through the same decoder before the document is
// checked against the definitions schema.
func ParseDefinitions(data []byte) ([]*models.WorkflowDefinition, error) {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to encode definitions: %w", err)
	}

	var file DefinitionsFile
	if err := json.Unmarshal(encoded, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinitionsFile, err)
	}

	return file.Definitions, nil
}

func validateDocument(document any) error {
	schemaLoader := gojsonschema.NewBytesLoader(definitionsSchema)
	dataLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinitionsFile, err)
	}

	if !result.Valid() {
		var problems []string
		for _, resultError := range result.Errors() {
			problems = append(problems, resultError.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinitionsFile, strings.Join(problems, "; "))
	}

	return nil
}

// LoadDefinitions reads one definitions file.
func LoadDefinitions(path string) ([]*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file %s: %w", path, err)
	}

	definitions, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return definitions, nil
}

// LoadDefinitionsPath reads a definitions file, or every definitions file of
// a directory in lexical order.
func LoadDefinitionsPath(path string) ([]*models.WorkflowDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return LoadDefinitions(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	var definitions []*models.WorkflowDefinition

	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(definitionExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}

		loaded, err := LoadDefinitions(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, loaded...)
	}

	return definitions, nil
}
