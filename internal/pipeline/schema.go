package pipeline

import (
	"github.com/invopop/jsonschema"

	internalschema "fabrik/internal/schema"
)

// SchemaPipeline is the registry key for the definition document schema.
const SchemaPipeline = "pipeline"

func init() {
	_ = internalschema.Register(SchemaPipeline, DefinitionSchema)
}

// DefinitionSchema builds the JSON Schema for a pipeline definition
// document. Structure is schema-checked; enums, GUID shapes, and
// cross-references are left to Validate.
func DefinitionSchema() *jsonschema.Schema {
	s := generateSchema(Definition{})

	// Reflection marks every non-omitempty field required. The wire format
	// is looser: dependsOn and the policy fields may be absent even though
	// the encoder always writes them.
	s.Required = []string{"name", "properties"}
	properties, ok := s.Properties.Get("properties")
	if !ok {
		return s
	}
	properties.Required = []string{"activities"}
	activities, ok := properties.Properties.Get("activities")
	if !ok || activities.Items == nil {
		return s
	}
	activity := activities.Items
	activity.Required = []string{"name", "type", "typeProperties"}
	if policy, ok := activity.Properties.Get("policy"); ok {
		policy.Required = nil
	}
	if dependsOn, ok := activity.Properties.Get("dependsOn"); ok && dependsOn.Items != nil {
		dependsOn.Items.Required = []string{"activity", "dependencyConditions"}
	}
	return s
}

func generateSchema(value any) *jsonschema.Schema {
	s := reflectSchema(value)
	if s.Version == "" {
		s.Version = jsonschema.Version
	}
	return s
}

func reflectSchema(value any) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	return reflector.Reflect(value)
}

func (Condition) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{
			string(ConditionSucceeded),
			string(ConditionFailed),
			string(ConditionSkipped),
			string(ConditionCompleted),
		},
	}
}

func (ParameterType) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{
			string(ParameterString),
			string(ParameterInt),
			string(ParameterBool),
			string(ParameterFloat),
		},
	}
}

func (Timespan) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:    "string",
		Pattern: `^(\d+\.)?\d{1,2}:\d{2}:\d{2}$`,
	}
}

func (Parameters) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		AdditionalProperties: reflectSchema(Parameter{}),
	}
}

func (TypeProperties) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}
