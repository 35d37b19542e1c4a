package config

import (
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// fileSchema describes the keys a configuration file may carry
const fileSchema = `{
	"type": "object",
	"properties": {
		"periodic": {"type": "boolean"},
		"periodicDelay": {"type": "number"},
		"databases": {
			"type": "object",
			"properties": {
				"service": {
					"type": ["object", "null"],
					"properties": {
						"hosts": {"type": ["array", "string"], "items": {"type": "string"}},
						"sslOptions": {"type": "object"}
					}
				},
				"queue": {
					"type": "object",
					"properties": {
						"host": {"type": "string"},
						"port": {"type": ["string", "integer"]},
						"password": {"type": "string"},
						"db": {"type": "integer", "minimum": 0}
					}
				},
				"task": {
					"type": "object",
					"properties": {
						"url": {"type": "string"},
						"options": {"type": "object"}
					}
				}
			}
		},
		"programs": {
			"type": "object",
			"properties": {
				"neural-doodle": {
					"type": "object",
					"properties": {
						"command": {"type": "string"},
						"script": {"type": "string"},
						"arguments": {"type": "array", "items": {"type": "string"}},
						"workingDirectory": {"type": "string"}
					}
				}
			}
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": {"enum": ["debug", "info", "warn", "error"]},
				"file": {"type": "string"},
				"console": {"type": "boolean"},
				"pretty": {"type": "boolean"},
				"redaction": {"type": "boolean"}
			}
		},
		"metrics": {
			"type": "object",
			"properties": {
				"address": {"type": "string"}
			}
		}
	}
}`

const rootField = "(root)"

var compiledSchema = mustCompileSchema(fileSchema)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// SchemaViolation is a configuration value that does not match the schema
type SchemaViolation struct {
	Key         string
	Field       string
	Description string
}

// checkSchema validates a configuration document and returns the violations
// grouped by top-level key. A violation with Key "(root)" means the document
// as a whole is unusable. The error is non-nil when data is not JSON.
func checkSchema(data []byte) ([]SchemaViolation, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]SchemaViolation, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		field := re.Field()
		key, _, _ := strings.Cut(field, ".")
		violations = append(violations, SchemaViolation{
			Key:         key,
			Field:       field,
			Description: re.Description(),
		})
	}

	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return violations, nil
}
