package records

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUnsupportedValueType marks records of a kind this importer does not
// project. Callers skip such records instead of failing the batch.
var ErrUnsupportedValueType = errors.New("unsupported record value type")

var valueSchemas = map[ValueType]string{
	ValueTypeProcessInstance: `{
		"type": "object",
		"required": ["workflow_instance_key", "element_id", "element_type"],
		"properties": {
			"bpmn_process_id": {"type": "string"},
			"workflow_key": {"type": "integer"},
			"workflow_instance_key": {"type": "integer"},
			"element_id": {"type": "string", "minLength": 1},
			"element_type": {"type": "string", "minLength": 1},
			"flow_scope_key": {"type": "integer"}
		}
	}`,
	ValueTypeIncident: `{
		"type": "object",
		"required": ["element_instance_key", "error_type"],
		"properties": {
			"workflow_instance_key": {"type": "integer"},
			"element_id": {"type": "string"},
			"element_instance_key": {"type": "integer"},
			"error_type": {"type": "string", "minLength": 1},
			"error_message": {"type": "string"},
			"job_key": {"type": "integer"}
		}
	}`,
	ValueTypeVariable: `{
		"type": "object",
		"required": ["name", "scope_key", "workflow_instance_key"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"value": {"type": "string"},
			"scope_key": {"type": "integer"},
			"workflow_instance_key": {"type": "integer"}
		}
	}`,
	ValueTypeJob: `{
		"type": "object",
		"required": ["workflow_instance_key", "element_instance_key"],
		"properties": {
			"type": {"type": "string"},
			"workflow_instance_key": {"type": "integer"},
			"element_instance_key": {"type": "integer"},
			"retries": {"type": "integer"}
		}
	}`,
	ValueTypeProcess: `{
		"type": "object",
		"required": ["bpmn_process_id", "version"],
		"properties": {
			"bpmn_process_id": {"type": "string", "minLength": 1},
			"version": {"type": "integer", "minimum": 1},
			"name": {"type": "string"},
			"bpmn_xml": {"type": "string"}
		}
	}`,
}

var (
	compiledSchemas     map[ValueType]*gojsonschema.Schema
	compileSchemasOnce  sync.Once
	compileSchemasError error
)

func schemas() (map[ValueType]*gojsonschema.Schema, error) {
	compileSchemasOnce.Do(func() {
		compiledSchemas = make(map[ValueType]*gojsonschema.Schema, len(valueSchemas))

		for valueType, raw := range valueSchemas {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
			if err != nil {
				compileSchemasError = fmt.Errorf("failed to compile schema for %s: %w", valueType, err)

				return
			}

			compiledSchemas[valueType] = schema
		}
	})

	return compiledSchemas, compileSchemasError
}

// Validate checks a record's payload against the schema of its value type.
// An unknown value type returns ErrUnsupportedValueType so the pipeline can
// skip the record without failing the round.
func Validate(record Record) error {
	all, err := schemas()
	if err != nil {
		return err
	}

	schema, ok := all[record.ValueType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedValueType, record.ValueType)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(record.Value))
	if err != nil {
		return fmt.Errorf("failed to validate %s record at position %d: %w", record.ValueType, record.Position, err)
	}

	if !result.Valid() {
		return fmt.Errorf("invalid %s record at position %d: %s", record.ValueType, record.Position, result.Errors()[0])
	}

	return nil
}
