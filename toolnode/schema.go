// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package toolnode

import (
	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/cascadeflow/cascade/registry"
)

// shapeFromSchema maps a tool's JSON input schema onto the registry's
// shape vocabulary, best effort. Anything the mapping cannot express
// becomes an "any" field; a missing or non-object schema yields a nil
// shape, which admits everything.
func shapeFromSchema(schema *jsonschema.Schema) registry.Shape {
	if schema == nil || schema.Type != "object" || len(schema.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	shape := make(registry.Shape, len(schema.Properties))
	for name, prop := range schema.Properties {
		field := fieldFromSchema(prop)
		field.Required = required[name]
		shape[name] = field
	}
	return shape
}

func fieldFromSchema(schema *jsonschema.Schema) registry.Field {
	if schema == nil {
		return registry.Field{Type: registry.TypeAny}
	}
	field := registry.Field{Description: schema.Description}
	switch schema.Type {
	case "string":
		field.Type = registry.TypeString
	case "number", "integer":
		field.Type = registry.TypeNumber
	case "boolean":
		field.Type = registry.TypeBool
	case "array":
		field.Type = registry.TypeList
		if schema.Items != nil {
			elem := fieldFromSchema(schema.Items)
			field.Elem = &elem
		}
	case "object":
		field.Type = registry.TypeMap
		if len(schema.Properties) > 0 {
			field.Fields = shapeFromSchema(schema)
		}
	default:
		field.Type = registry.TypeAny
	}
	return field
}
