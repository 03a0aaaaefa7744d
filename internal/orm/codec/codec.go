// Package codec encodes attribute snapshots as BSON documents and decodes
// them back into the plain Go values the engine works with.
package codec

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Encode marshals an attribute snapshot to BSON
func Encode(attrs map[string]interface{}) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	data, err := bson.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode unmarshals a BSON document into an attribute snapshot
func Decode(data []byte) (map[string]interface{}, error) {
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out, _ := Normalize(raw).(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// Normalize converts BSON driver types into plain Go values: documents become
// map[string]interface{}, arrays []interface{}, datetimes UTC time.Time and
// 32/64-bit integers int.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case primitive.A:
		return normalizeSlice(val)
	case []interface{}:
		return normalizeSlice(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case int32:
		return int(val)
	case int64:
		return int(val)
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, item := range m {
		out[k] = Normalize(item)
	}
	return out
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, item := range s {
		out[i] = Normalize(item)
	}
	return out
}
