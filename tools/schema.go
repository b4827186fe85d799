package tools

import (
	"github.com/invopop/jsonschema"
)

// GenerateSchema derives an inline JSON Schema for T, suitable as tool
// parameters or as a structured-output schema.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	s := reflector.Reflect(v)
	// Upstream APIs reject the draft URI and id on nested tool schemas.
	s.Version = ""
	s.ID = ""
	return s
}

// Property is a named entry of an object schema.
type Property struct {
	Name     string
	Schema   *jsonschema.Schema
	Required bool
}

// Field returns an optional property.
func Field(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s}
}

// RequiredField returns a property listed under "required".
func RequiredField(name string, s *jsonschema.Schema) Property {
	return Property{Name: name, Schema: s, Required: true}
}

// Object builds an object schema; property order is preserved.
func Object(props ...Property) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "object"}
	if len(props) == 0 {
		return s
	}
	s.Properties = jsonschema.NewProperties()
	for _, p := range props {
		s.Properties.Set(p.Name, p.Schema)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

func String(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func Number(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: description}
}

func Integer(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description}
}

func Boolean(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}

// Enum builds a string schema restricted to values.
func Enum(description string, values ...string) *jsonschema.Schema {
	s := String(description)
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return s
}

// Array builds an array schema of items.
func Array(description string, items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: description, Items: items}
}

// AnyOf builds a schema matching any of the variants.
func AnyOf(description string, variants ...*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Description: description, AnyOf: variants}
}
