package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Values is a multi-valued string map (headers, query parameters). It encodes
// single values as plain JSON strings and repeated ones as arrays, and decodes
// either form.
type Values map[string][]string

func (v Values) Get(key string) string {
	if vs := v[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (v Values) Add(key, value string) {
	v[key] = append(v[key], value)
}

func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Values) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(v))
	for k, vs := range v {
		switch len(vs) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = vs[0]
		default:
			out[k] = vs
		}
	}
	return json.Marshal(out)
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Values, len(raw))
	for k, msg := range raw {
		vs, err := decodeValue(msg)
		if err != nil {
			return fmt.Errorf("values: key %q: %w", k, err)
		}
		out[k] = vs
	}
	*v = out
	return nil
}

func decodeValue(msg json.RawMessage) ([]string, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil, nil
	}

	switch msg[0] {
	case '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			vs, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		return out, nil
	default:
		// numbers, booleans and nested objects are kept in their JSON form
		return []string{string(msg)}, nil
	}
}

// Encode returns the canonical stored form of v.
func (v Values) Encode() string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseValues decodes a stored Values string. Empty or malformed input yields
// an empty map.
func ParseValues(s string) Values {
	v := Values{}
	if s == "" {
		return v
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Values{}
	}
	return v
}
