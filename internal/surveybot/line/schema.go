package line

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// callbackSchema accepts the parts of a webhook callback the bot relies on.
// Unknown event and message types pass; message events must carry the fields
// needed to answer them.
const callbackSchema = `{
  "type": "object",
  "required": ["events"],
  "properties": {
    "destination": {"type": "string"},
    "events": {
      "type": "array",
      "items": {"$ref": "#/$defs/event"}
    }
  },
  "$defs": {
    "source": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"},
        "userId": {"type": "string"},
        "groupId": {"type": "string"},
        "roomId": {"type": "string"}
      }
    },
    "event": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"},
        "replyToken": {"type": "string"},
        "source": {"$ref": "#/$defs/source"}
      },
      "if": {"properties": {"type": {"const": "message"}}},
      "then": {
        "required": ["replyToken", "source", "message"],
        "properties": {
          "message": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"type": "string"},
              "text": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var callbackValidator = jsonschema.MustCompileString("line-callback.json", callbackSchema)
