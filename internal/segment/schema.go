package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/playforge/warehouse/internal/ports"
)

// ErrInvalidDefinition rejects a segment whose condition tree does not match
// the document schema.
var ErrInvalidDefinition = errors.New("segment: invalid definition")

// definitionSchema is the JSON Schema every stored condition tree must
// satisfy: a node is either a leaf carrying a condition or a group carrying
// an operator and at least one child.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "condition": {
      "type": "object",
      "properties": {
        "elementId": {"type": "string"},
        "condition": {
          "enum": ["=", "!=", ">", "<", ">=", "<=", "range",
                   "is", "isNot", "includes", "notIncludes",
                   "inSegment", "notInSegment", "date"]
        },
        "conditionValue": {"type": "string"},
        "conditionSecondaryValue": {"type": "string"}
      },
      "required": ["condition", "conditionValue"],
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "properties": {
        "operator": {"enum": ["and", "or"]},
        "cond": {"$ref": "#/definitions/condition"},
        "children": {
          "type": "array",
          "minItems": 1,
          "items": {"$ref": "#/definitions/node"}
        }
      },
      "additionalProperties": false,
      "oneOf": [
        {"required": ["cond"]},
        {"required": ["children"]}
      ]
    }
  },
  "$ref": "#/definitions/node"
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateNode checks a condition tree against the document schema.
func ValidateNode(root *ports.SegmentNode) error {
	if root == nil {
		return fmt.Errorf("%w: empty condition tree", ErrInvalidDefinition)
	}
	raw, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return ValidateDefinition(raw)
}

// ValidateDefinition checks a raw condition-tree document against the schema.
func ValidateDefinition(raw []byte) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(msgs, "; "))
}
