package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Move structs and VecMaps arrive as {"type": ..., "fields": {...}}. These helpers
// decode them strictly: a missing or mistyped key is an error, never a zero value.

type moveStruct struct {
	Fields json.RawMessage `json:"fields"`
}

type vecMapFields struct {
	Contents *[]moveStruct `json:"contents"`
}

type vecMapEntry struct {
	Key   *string         `json:"key"`
	Value json.RawMessage `json:"value"`
}

// MapEntry is one key/value pair of a VecMap with the value left raw.
type MapEntry struct {
	Key   string
	Value json.RawMessage
}

// StructFields returns the "fields" member of a Move struct value.
func StructFields(raw json.RawMessage) (json.RawMessage, error) {
	var s moveStruct
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode move struct: %w", err)
	}
	if len(s.Fields) == 0 || bytes.Equal(s.Fields, []byte("null")) {
		return nil, fmt.Errorf("move struct has no fields")
	}
	return s.Fields, nil
}

// DecodeVecMap decodes a VecMap value in ledger order. A VecMap never holds a key
// twice, so a repeated key is a shape error.
func DecodeVecMap(raw json.RawMessage) ([]MapEntry, error) {
	fields, err := StructFields(raw)
	if err != nil {
		return nil, err
	}

	var m vecMapFields
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, fmt.Errorf("decode vec map: %w", err)
	}
	if m.Contents == nil {
		return nil, fmt.Errorf("vec map has no contents")
	}

	entries := make([]MapEntry, 0, len(*m.Contents))
	seen := make(map[string]struct{}, len(*m.Contents))
	for i, item := range *m.Contents {
		if len(item.Fields) == 0 {
			return nil, fmt.Errorf("vec map entry %d has no fields", i)
		}
		var e vecMapEntry
		if err := json.Unmarshal(item.Fields, &e); err != nil {
			return nil, fmt.Errorf("decode vec map entry %d: %w", i, err)
		}
		if e.Key == nil || len(e.Value) == 0 {
			return nil, fmt.Errorf("vec map entry %d missing key or value", i)
		}
		if _, dup := seen[*e.Key]; dup {
			return nil, fmt.Errorf("vec map entry %d repeats key %s", i, *e.Key)
		}
		seen[*e.Key] = struct{}{}
		entries = append(entries, MapEntry{Key: *e.Key, Value: e.Value})
	}
	return entries, nil
}

// DecodeStringVecMap decodes a VecMap whose values are string-encoded scalars.
func DecodeStringVecMap(raw json.RawMessage) (map[string]string, error) {
	entries, err := DecodeVecMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		var v string
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("vec map value for %s is not a string: %w", e.Key, err)
		}
		out[e.Key] = v
	}
	return out, nil
}

// ParseU64 parses an on-ledger u64, which is serialized as a decimal string.
func ParseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid u64 %q", s)
	}
	return v, nil
}

// StringField reads a required string member from a fields object.
func StringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("field %s missing", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %s is not a string", name)
	}
	return s, nil
}

// U64Field reads a required string-encoded u64 member from a fields object.
func U64Field(fields map[string]json.RawMessage, name string) (uint64, error) {
	s, err := StringField(fields, name)
	if err != nil {
		return 0, err
	}
	v, err := ParseU64(s)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}

// UIDField reads an object id stored as {"id": "0x.."}.
func UIDField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("field %s missing", name)
	}
	var uid struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &uid); err != nil || uid.ID == nil {
		return "", fmt.Errorf("field %s is not a uid", name)
	}
	return *uid.ID, nil
}
