package attributes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// dob(1i), lunch_time(4i) ...
var multiParameterKey = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(([1-6])[if]?\)$`)

// splitMultiParameter separates multi-parameter keys from plain keys,
// grouping their parts by field. Types without the capability treat such
// keys as unknown.
func splitMultiParameter(typ *schema.DocumentType, attrs map[string]interface{}) (map[string]interface{}, map[string]map[int]interface{}, error) {
	plain := make(map[string]interface{}, len(attrs))
	multi := make(map[string]map[int]interface{})

	for key, value := range attrs {
		match := multiParameterKey.FindStringSubmatch(key)
		if match == nil {
			plain[key] = value
			continue
		}
		if !typ.Has(schema.CapMultiParameter) {
			return nil, nil, fmt.Errorf("%s.%s: %w", typ.Name, key, ErrUnknownAttribute)
		}
		name := match[1]
		position, _ := strconv.Atoi(match[2])
		if multi[name] == nil {
			multi[name] = make(map[int]interface{})
		}
		multi[name][position] = value
	}
	return plain, multi, nil
}

// combine builds the value of a field from its parts: year, month, day,
// hour, minute, second. Missing date parts default to 1970-01-01 and
// missing time parts to zero; a field whose parts are all blank is nil.
func combine(typ *schema.DocumentType, name string, parts map[int]interface{}) (interface{}, error) {
	field, ok := typ.Field(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", typ.Name, name, ErrUnknownAttribute)
	}

	values := [7]int{0, 1970, 1, 1, 0, 0, 0}
	set := false
	for position, raw := range parts {
		n, present, err := part(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s(%di): %w", typ.Name, name, position, err)
		}
		if present {
			values[position] = n
			set = true
		}
	}
	if !set {
		return nil, nil
	}

	t := time.Date(values[1], time.Month(values[2]), values[3], values[4], values[5], values[6], 0, time.UTC)
	if field.Type == schema.TypeDate {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return t, nil
}

func part(raw interface{}) (int, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, fmt.Errorf("%q: %w", v, ErrMultiParameter)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%T: %w", raw, ErrMultiParameter)
	}
}
