package state

import (
	"encoding/json"
	"fmt"
)

// Persisted records are stored as their JSON encoding; the same shape crosses
// the HTTP boundary, so there is exactly one wire format to keep compatible.

func marshalValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", v, err)
	}
	return raw, nil
}

func unmarshalValue(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("deserialize %T: %w", v, err)
	}
	return nil
}
