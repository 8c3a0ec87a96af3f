package domain

import (
	"encoding/json"
	"fmt"
)

// The wire form of a Where mixes reserved keys ("or", "own") with schema
// field names, so it needs hand-written JSON handling.

func (w *Where) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("where: %w", err)
	}

	*w = Where{}
	for key, val := range raw {
		switch key {
		case "or":
			if err := json.Unmarshal(val, &w.Or); err != nil {
				return fmt.Errorf("where: or: %w", err)
			}
		case "own":
			if err := json.Unmarshal(val, &w.Own); err != nil {
				return fmt.Errorf("where: own: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("where: %s: %w", key, err)
			}
			if w.Eq == nil {
				w.Eq = make(map[string]any)
			}
			w.Eq[key] = v
		}
	}
	return nil
}

func (w Where) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(w.Eq)+2)
	for k, v := range w.Eq {
		out[k] = v
	}
	if len(w.Or) > 0 {
		out["or"] = w.Or
	}
	if w.Own {
		out["own"] = true
	}
	return json.Marshal(out)
}
