package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DateLayout is the accepted string form of date values
const DateLayout = "2006-01-02"

// Coerce converts value to typ, returning a *TypeMismatchError when the
// value cannot represent a typ. nil is accepted by every type.
func Coerce(typ FieldType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	var (
		out interface{}
		ok  bool
	)
	switch typ {
	case TypeObject:
		return value, nil
	case TypeBoolean:
		out, ok = toBool(value)
	case TypeInteger:
		out, ok = toInt(value)
	case TypeFloat:
		out, ok = toFloat(value)
	case TypeString:
		out, ok = toString(value)
	case TypeDate:
		out, ok = toDate(value)
	case TypeTime:
		out, ok = toTime(value)
	case TypeArray:
		out, ok = toArray(value)
	case TypeMapping:
		out, ok = toMapping(value)
	case TypeIdentifier:
		out, ok = toIdentifier(value)
	}
	if !ok {
		return nil, &TypeMismatchError{Expected: typ, Value: value}
	}
	return out, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func toBool(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		if blank(v) {
			return nil, true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n":
			return false, true
		}
		return nil, false
	}
	if n, ok := integerValue(value); ok {
		switch n {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	}
	return nil, false
}

func toInt(value interface{}) (interface{}, bool) {
	if n, ok := integerValue(value); ok {
		return int(n), true
	}
	switch v := value.(type) {
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case string:
		if blank(v) {
			return nil, true
		}
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return int(n), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integralFloat(f)
		}
	}
	return nil, false
}

func integralFloat(f float64) (interface{}, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, false
	}
	return int(f), true
}

func integerValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toFloat(value interface{}) (interface{}, bool) {
	if n, ok := integerValue(value); ok {
		return float64(n), true
	}
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		if blank(v) {
			return nil, true
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

func toString(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	if n, ok := integerValue(value); ok {
		return strconv.FormatInt(n, 10), true
	}
	return nil, false
}

func toDate(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case time.Time:
		return midnight(v), true
	case primitive.DateTime:
		return midnight(v.Time().UTC()), true
	case string:
		if blank(v) {
			return nil, true
		}
		s := strings.TrimSpace(v)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return midnight(t), true
		}
	}
	return nil, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toTime(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case primitive.DateTime:
		return v.Time().UTC(), true
	case string:
		if blank(v) {
			return nil, true
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func toArray(value interface{}) (interface{}, bool) {
	if v, ok := value.([]interface{}); ok {
		return CopyValue(v), true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = CopyValue(rv.Index(i).Interface())
	}
	return out, true
}

func toMapping(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return CopyValue(v), true
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = CopyValue(e.Value)
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = CopyValue(iter.Value().Interface())
	}
	return out, true
}

func toIdentifier(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v, true
	case string:
		if blank(v) {
			return nil, true
		}
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return id, true
	}
	return nil, false
}

// CopyValue returns a deep copy of maps and slices so callers never share a
// mutable value. Other values are returned as is.
func CopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = CopyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = CopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case string, bool, int, int64, float64, time.Time, primitive.ObjectID:
		return v
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return value
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if item := CopyValue(rv.Index(i).Interface()); item != nil {
				out.Index(i).Set(reflect.ValueOf(item))
			}
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return value
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item := CopyValue(iter.Value().Interface())
			if item == nil {
				out.SetMapIndex(iter.Key(), reflect.Zero(rv.Type().Elem()))
				continue
			}
			out.SetMapIndex(iter.Key(), reflect.ValueOf(item))
		}
		return out.Interface()
	}
	return value
}
