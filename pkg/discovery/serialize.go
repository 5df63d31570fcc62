package discovery

import (
	"encoding/json"
	"fmt"
)

// Serialize converts the Discovery into the generic tree the path query
// engine operates on: {"resources": [{"id", "meta", "struct"}, ...]}. The
// round-trip through JSON erases the typed Resource/Meta structs so selector
// evaluation sees the same shape a downstream consumer of the document would.
func (d *Discovery) Serialize() (map[string]interface{}, error) {
	raw, err := json.Marshal(struct {
		Resources []Resource `json:"resources"`
	}{Resources: d.Resources})
	if err != nil {
		return nil, fmt.Errorf("serialize discovery: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("deserialize discovery: %w", err)
	}
	return doc, nil
}

// StructOf converts a typed provider payload (an SDK response object) into
// the generic tree stored in Resource.Struct.
func StructOf(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
