package schema

// JSONSchema renders the schema as the JSON Schema object advertised in
// tools/list inputSchema.
func (s Schema) JSONSchema() map[string]interface{} {
	return objectSchema(s.fields)
}

func objectSchema(fields []Field) map[string]interface{} {
	properties := make(map[string]interface{}, len(fields))
	required := make([]string, 0)
	for _, field := range fields {
		properties[field.name] = fieldSchema(field)
		if field.required {
			required = append(required, field.name)
		}
	}
	out := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(field Field) map[string]interface{} {
	var out map[string]interface{}
	if field.typ == TypeObject {
		out = objectSchema(field.fields)
	} else {
		out = map[string]interface{}{}
	}

	if field.typ != TypeAny {
		if field.nullable {
			out["type"] = []string{string(field.typ), "null"}
		} else {
			out["type"] = string(field.typ)
		}
	}
	if field.description != "" {
		out["description"] = field.description
	}
	if len(field.enum) > 0 {
		out["enum"] = append([]string(nil), field.enum...)
	}
	if field.min != nil {
		out["minimum"] = *field.min
	}
	if field.max != nil {
		out["maximum"] = *field.max
	}
	if field.hasDefault {
		out["default"] = field.def
	}
	if field.typ == TypeArray {
		if field.items != nil {
			out["items"] = fieldSchema(*field.items)
		} else {
			out["items"] = map[string]interface{}{}
		}
		if field.length > 0 {
			out["minItems"] = field.length
			out["maxItems"] = field.length
		}
	}
	return out
}
