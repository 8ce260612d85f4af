package provider

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects T into a strict JSON schema accepted by OpenAI structured outputs.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
	enumKey                 = "enum"
)

// ensureOpenAICompliance closes every object and marks all of its properties required,
// including objects nested under properties and array items. A map (an object with no
// properties and a value schema) keeps its value schema, which is normalized in turn.
func ensureOpenAICompliance(schema map[string]interface{}) {
	properties, hasProps := schema[propertiesKey].(map[string]interface{})
	valueSchema, isMap := schema[additionalPropertiesKey].(map[string]interface{})

	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		if !isMap || hasProps {
			schema[additionalPropertiesKey] = false
			isMap = false
		}
		if hasProps {
			requiredFields := make([]string, 0, len(properties))
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				sort.Strings(requiredFields)
				schema[requiredKey] = requiredFields
			}
		}
	}

	for _, prop := range properties {
		if propMap, ok := prop.(map[string]interface{}); ok {
			ensureOpenAICompliance(propMap)
		}
	}
	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
	if isMap {
		ensureOpenAICompliance(valueSchema)
	}
}

// withEnum returns a copy of schema whose property prop only accepts values.
func withEnum(schema map[string]interface{}, prop string, values []string) map[string]interface{} {
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	properties, ok := out[propertiesKey].(map[string]interface{})
	if !ok {
		return out
	}
	p, ok := properties[prop].(map[string]interface{})
	if !ok {
		return out
	}
	enum := make([]interface{}, 0, len(values))
	for _, v := range values {
		enum = append(enum, v)
	}
	p[enumKey] = enum
	return out
}
