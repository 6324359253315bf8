package genclient

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ResponseSchema reflects a JSON schema from a response struct, inlined
// (no $ref indirection) so it can be sent as the structured-output contract.
func ResponseSchema(v any) (json.RawMessage, error) {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
	}
	schema := r.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal response schema: %w", err)
	}
	return data, nil
}
