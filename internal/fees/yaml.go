package fees

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML reads a schedule written in YAML. The document goes through
// the JSON decoder so both formats get the same defaults.
func DecodeYAML(raw []byte) (Schedule, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Schedule{}, fmt.Errorf("parse fee schedule yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Schedule{}, fmt.Errorf("convert fee schedule yaml: %w", err)
	}
	return Decode(js)
}

// EncodeYAML renders a schedule as YAML.
func EncodeYAML(s Schedule) ([]byte, error) {
	js, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, err
	}
	delete(doc, "updated_at")
	return yaml.Marshal(doc)
}
