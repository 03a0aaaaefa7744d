// Package query builds immutable criteria: conjunctions of field predicates
// composed from ad hoc conditions and named scopes, rendered as a BSON filter
// for storage and evaluable in process.
package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpIn
	OpNotIn
	OpExists
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpLessThan:
		return "lt"
	case OpLessThanOrEqual:
		return "lte"
	case OpGreaterThan:
		return "gt"
	case OpGreaterThanOrEqual:
		return "gte"
	case OpIn:
		return "in"
	case OpNotIn:
		return "nin"
	case OpExists:
		return "exists"
	default:
		return "unknown"
	}
}

// BSONKey returns the operator as it appears in a filter document ($gt)
func (o Operator) BSONKey() string {
	return "$" + o.String()
}

// ParseOperator converts a string to an Operator
func ParseOperator(s string) (Operator, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "$") {
	case "eq", "=", "==":
		return OpEqual, nil
	case "ne", "!=":
		return OpNotEqual, nil
	case "lt", "<":
		return OpLessThan, nil
	case "lte", "<=":
		return OpLessThanOrEqual, nil
	case "gt", ">":
		return OpGreaterThan, nil
	case "gte", ">=":
		return OpGreaterThanOrEqual, nil
	case "in":
		return OpIn, nil
	case "nin":
		return OpNotIn, nil
	case "exists":
		return OpExists, nil
	default:
		return 0, fmt.Errorf("unknown operator: %s", s)
	}
}

// Condition is one predicate of a criteria's conjunction
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// String renders the condition for logs and equivalence checks
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, canonical(c.Value))
}

func canonical(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return "oid:" + val.Hex()
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		return fmt.Sprintf("%t", val)
	}
	if f, ok := toFloat(v); ok {
		return fmt.Sprintf("num:%g", f)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = canonical(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("%#v", v)
}

// Matches evaluates the condition against a document's attributes. Dotted
// fields descend into embedded documents; array values match when any
// element does.
func (c Condition) Matches(attrs map[string]interface{}) bool {
	values, present := resolve(attrs, c.Field)

	switch c.Operator {
	case OpExists:
		want, _ := c.Value.(bool)
		return hasContent(values) == want
	case OpEqual:
		return anyEqual(values, present, c.Value)
	case OpNotEqual:
		return !anyEqual(values, present, c.Value)
	case OpIn:
		for _, candidate := range sliceOf(c.Value) {
			if anyEqual(values, present, candidate) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, candidate := range sliceOf(c.Value) {
			if anyEqual(values, present, candidate) {
				return false
			}
		}
		return true
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		for _, v := range expand(values) {
			cmp, ok := compareOrdered(v, c.Value)
			if !ok {
				continue
			}
			switch c.Operator {
			case OpLessThan:
				if cmp < 0 {
					return true
				}
			case OpLessThanOrEqual:
				if cmp <= 0 {
					return true
				}
			case OpGreaterThan:
				if cmp > 0 {
					return true
				}
			case OpGreaterThanOrEqual:
				if cmp >= 0 {
					return true
				}
			}
		}
		return false
	}
	return false
}

// resolve collects the values at a dotted path, fanning out over arrays of
// embedded documents.
func resolve(attrs map[string]interface{}, path string) ([]interface{}, bool) {
	head, rest, nested := strings.Cut(path, ".")
	value, ok := attrs[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return []interface{}{value}, true
	}

	var (
		out     []interface{}
		present bool
	)
	for _, item := range append([]interface{}{value}, sliceOf(value)...) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if values, found := resolve(m, rest); found {
			out = append(out, values...)
			present = true
		}
	}
	return out, present
}

func hasValue(values []interface{}) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}

// hasContent is like hasValue but also treats empty strings, arrays and
// documents as absent.
func hasContent(values []interface{}) bool {
	for _, v := range values {
		if !isBlank(v) {
			return true
		}
	}
	return false
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []byte:
		return len(val) == 0
	case primitive.ObjectID, time.Time:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func anyEqual(values []interface{}, present bool, want interface{}) bool {
	if want == nil && (!present || !hasValue(values)) {
		return true
	}
	for _, v := range values {
		if valuesEqual(v, want) {
			return true
		}
		for _, element := range sliceOf(v) {
			if valuesEqual(element, want) {
				return true
			}
		}
	}
	return false
}

func expand(values []interface{}) []interface{} {
	var out []interface{}
	for _, v := range values {
		if elements := sliceOf(v); elements != nil {
			out = append(out, elements...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// sliceOf returns the elements of a slice value, or nil for anything else
func sliceOf(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil, string, []byte, primitive.ObjectID:
		return nil
	case []interface{}:
		return val
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// valuesEqual compares two values treating all numeric types alike
func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func compareOrdered(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return compareFloats(fa, fb), true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare orders two attribute values for sorting. nil sorts first; values
// of unrelated types fall back to their type names so ordering stays total.
func Compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if cmp, ok := compareOrdered(a, b); ok {
		return cmp
	}
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	if ta != tb {
		return strings.Compare(ta, tb)
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// Canonical renders a value so that equal values of different numeric types
// produce the same key
func Canonical(v interface{}) string {
	return canonical(v)
}

// Lookup returns the first value at a dotted path, or nil
func Lookup(attrs map[string]interface{}, path string) interface{} {
	values, _ := resolve(attrs, path)
	return first(values)
}
