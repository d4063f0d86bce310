package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MetricValue stores one typed metric reading.
// Params: Type selects one payload among N/S/B.
// Returns: strict typed value for rule predicates.
type MetricValue struct {
	Type string   `json:"t"`
	N    *float64 `json:"n,omitempty"`
	S    *string  `json:"s,omitempty"`
	B    *bool    `json:"b,omitempty"`
}

// NumberValue builds a numeric metric value.
// Params: float reading.
// Returns: typed value with t=n.
func NumberValue(value float64) MetricValue {
	return MetricValue{Type: "n", N: &value}
}

// StringValue builds a string metric value.
// Params: string reading.
// Returns: typed value with t=s.
func StringValue(value string) MetricValue {
	return MetricValue{Type: "s", S: &value}
}

// BoolValue builds a boolean metric value.
// Params: bool reading.
// Returns: typed value with t=b.
func BoolValue(value bool) MetricValue {
	return MetricValue{Type: "b", B: &value}
}

// Format renders the value in compact string form for alert details.
// Params: none.
// Returns: string representation or empty string for malformed values.
func (v MetricValue) Format() string {
	switch v.Type {
	case "n":
		if v.N == nil {
			return ""
		}
		return strconv.FormatFloat(*v.N, 'f', -1, 64)
	case "s":
		if v.S == nil {
			return ""
		}
		return *v.S
	case "b":
		if v.B == nil {
			return ""
		}
		return strconv.FormatBool(*v.B)
	default:
		return ""
	}
}

// Snapshot is one point-in-time mapping of metric keys to typed values.
// Params: metric key vocabulary shared with the configured rules.
// Returns: sole input to rule evaluation.
type Snapshot map[string]MetricValue

// Number reads a numeric metric.
// Params: metric key.
// Returns: value and presence flag (false for non-numeric entries).
func (s Snapshot) Number(key string) (float64, bool) {
	value, ok := s[key]
	if !ok || value.Type != "n" || value.N == nil {
		return 0, false
	}
	return *value.N, true
}

// Bool reads a boolean metric.
// Params: metric key.
// Returns: value and presence flag (false for non-boolean entries).
func (s Snapshot) Bool(key string) (bool, bool) {
	value, ok := s[key]
	if !ok || value.Type != "b" || value.B == nil {
		return false, false
	}
	return *value.B, true
}

// String reads a string metric.
// Params: metric key.
// Returns: value and presence flag (false for non-string entries).
func (s Snapshot) String(key string) (string, bool) {
	value, ok := s[key]
	if !ok || value.Type != "s" || value.S == nil {
		return "", false
	}
	return *value.S, true
}

// Format renders one metric for alert details.
// Params: metric key.
// Returns: compact string form and presence flag.
func (s Snapshot) Format(key string) (string, bool) {
	value, ok := s[key]
	if !ok {
		return "", false
	}
	return value.Format(), true
}

// UnmarshalJSON decodes a snapshot from a flat JSON object of scalars.
// Params: JSON document with number/string/bool members.
// Returns: decode error for nested or null members.
func (s *Snapshot) UnmarshalJSON(raw []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return fmt.Errorf("decode snapshot object: %w", err)
	}
	out := make(Snapshot, len(flat))
	for key, member := range flat {
		value, err := decodeScalar(member)
		if err != nil {
			return fmt.Errorf("snapshot key %q: %w", key, err)
		}
		out[key] = value
	}
	*s = out
	return nil
}

// MarshalJSON encodes the snapshot back into a flat scalar object.
// Params: none.
// Returns: JSON document bytes or encode error.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s))
	for key, value := range s {
		switch value.Type {
		case "n":
			if value.N != nil {
				flat[key] = *value.N
			}
		case "s":
			if value.S != nil {
				flat[key] = *value.S
			}
		case "b":
			if value.B != nil {
				flat[key] = *value.B
			}
		}
	}
	return json.Marshal(flat)
}

// decodeScalar converts one JSON member into a typed metric value.
// Params: raw JSON member bytes.
// Returns: typed value or error for unsupported member shapes. A null
// member is rejected: unmarshalling null into a plain float64 is a
// silent no-op, so the check must come first.
func decodeScalar(raw json.RawMessage) (MetricValue, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return MetricValue{}, fmt.Errorf("null is not a valid metric value")
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return NumberValue(number), nil
	}
	var boolean bool
	if err := json.Unmarshal(raw, &boolean); err == nil {
		return BoolValue(boolean), nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return StringValue(text), nil
	}
	return MetricValue{}, fmt.Errorf("unsupported value %s", string(raw))
}
