package definition

// documentSchema is the JSON-schema pre-check applied before the document is
// decoded. Structural rules that need cross-references (job lookups, cycles,
// kind parameters) live in the parser.
const documentSchema = `{
  "type": "object",
  "required": ["workflows", "jobs"],
  "properties": {
    "workflows": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["jobs"],
        "properties": {
          "jobs": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string"}
          },
          "concurrency": {"type": "integer", "minimum": 0}
        }
      }
    },
    "jobs": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["steps"],
        "properties": {
          "environment": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          },
          "requires": {
            "type": "array",
            "items": {"type": "string"}
          },
          "timeout_seconds": {"type": "integer", "minimum": 0},
          "steps": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["kind"],
              "properties": {
                "kind": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`
