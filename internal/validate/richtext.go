package validate

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// MaxRichTextBytes bounds a stored rich-text document.
const MaxRichTextBytes = 100 * 1024

const richTextSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "mark": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "attrs": {"type": "object"}
      }
    },
    "node": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "text": {"type": "string"},
        "attrs": {"type": "object"},
        "marks": {"type": "array", "items": {"$ref": "#/definitions/mark"}},
        "content": {"type": "array", "items": {"$ref": "#/definitions/node"}}
      }
    }
  },
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["doc"]},
    "content": {"type": "array", "items": {"$ref": "#/definitions/node"}}
  }
}`

var richText = mustSchema(richTextSchema)

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("compile rich-text schema: %v", err))
	}
	return schema
}

// RichText checks that raw is an editor document ({"type":"doc",...}) of
// bounded size.
func RichText(raw json.RawMessage, field string) []FieldError {
	if len(raw) == 0 || string(raw) == "null" {
		return []FieldError{{Field: field, Message: "Ce champ est requis."}}
	}
	if len(raw) > MaxRichTextBytes {
		return []FieldError{{Field: field, Message: "Le contenu ne doit pas dépasser 100 Ko."}}
	}
	res, err := richText.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil || !res.Valid() {
		return []FieldError{{Field: field, Message: "Le contenu doit être un document texte riche."}}
	}
	return nil
}
