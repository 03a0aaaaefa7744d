// Package schema provides the declaration model for document types: fields,
// defaults, indexes, relations and the registry that freezes them at startup.
package schema

import (
	"fmt"
	"regexp"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
)

// FieldType represents the declared storage type of a field
type FieldType int

const (
	// TypeObject accepts any value; it is the type of undeclared fields
	TypeObject FieldType = iota
	TypeBoolean
	TypeInteger
	TypeFloat
	TypeString
	TypeDate
	TypeTime
	TypeArray
	TypeMapping
	TypeIdentifier
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeObject:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeArray:
		return "array"
	case TypeMapping:
		return "mapping"
	case TypeIdentifier:
		return "identifier"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "object", "":
		return TypeObject, nil
	case "boolean":
		return TypeBoolean, nil
	case "integer":
		return TypeInteger, nil
	case "float":
		return TypeFloat, nil
	case "string":
		return TypeString, nil
	case "date":
		return TypeDate, nil
	case "time":
		return TypeTime, nil
	case "array":
		return TypeArray, nil
	case "mapping":
		return TypeMapping, nil
	case "identifier":
		return TypeIdentifier, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// ConstraintType represents the kind of content constraint on a field
type ConstraintType int

const (
	// ConstraintFormat requires the value to match a pattern
	ConstraintFormat ConstraintType = iota
	// ConstraintWithout requires the value not to match a pattern
	ConstraintWithout
	// ConstraintPresence requires a non-blank value
	ConstraintPresence
)

// String returns the string representation of the constraint type
func (c ConstraintType) String() string {
	switch c {
	case ConstraintFormat:
		return "format"
	case ConstraintWithout:
		return "without"
	case ConstraintPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Constraint represents a content constraint checked before a save
type Constraint struct {
	Type    ConstraintType
	Pattern *regexp.Regexp
	Message string
}

// DefaultFunc produces a fresh default value for each new instance
type DefaultFunc func() interface{}

// FieldDefinition describes a persisted attribute of a document type
type FieldDefinition struct {
	Name         string
	Type         FieldType
	Default      interface{}
	DefaultFunc  DefaultFunc
	Protected    bool
	Constraints  []Constraint
	Interceptors []hooks.Interceptor

	// Implicit marks fields the registry adds itself (many-to-many id arrays)
	Implicit bool
}

// WithDefault sets a static default. Mutable defaults are copied per instance.
func (f *FieldDefinition) WithDefault(value interface{}) *FieldDefinition {
	f.Default = value
	return f
}

// WithDefaultFunc sets a default evaluated freshly for every new instance
func (f *FieldDefinition) WithDefaultFunc(fn DefaultFunc) *FieldDefinition {
	f.DefaultFunc = fn
	return f
}

// Protect excludes the field from bulk assignment
func (f *FieldDefinition) Protect() *FieldDefinition {
	f.Protected = true
	return f
}

// Format requires values to match pattern
func (f *FieldDefinition) Format(pattern *regexp.Regexp, message string) *FieldDefinition {
	f.Constraints = append(f.Constraints, Constraint{Type: ConstraintFormat, Pattern: pattern, Message: message})
	return f
}

// Without forbids values matching pattern
func (f *FieldDefinition) Without(pattern *regexp.Regexp, message string) *FieldDefinition {
	f.Constraints = append(f.Constraints, Constraint{Type: ConstraintWithout, Pattern: pattern, Message: message})
	return f
}

// Required rejects nil and blank values
func (f *FieldDefinition) Required() *FieldDefinition {
	f.Constraints = append(f.Constraints, Constraint{Type: ConstraintPresence})
	return f
}

// Intercept appends interceptors to the field's setter chain
func (f *FieldDefinition) Intercept(interceptors ...hooks.Interceptor) *FieldDefinition {
	f.Interceptors = append(f.Interceptors, interceptors...)
	return f
}

// HasDefault returns true if the field declares a default
func (f *FieldDefinition) HasDefault() bool {
	return f.Default != nil || f.DefaultFunc != nil
}

// ResolveDefault evaluates the field's default for a new instance. A default
// function is invoked on every call; a static default is deep-copied so two
// instances never share one mutable value.
func (f *FieldDefinition) ResolveDefault() (interface{}, bool) {
	switch {
	case f.DefaultFunc != nil:
		return f.DefaultFunc(), true
	case f.Default != nil:
		return CopyValue(f.Default), true
	default:
		return nil, false
	}
}

// Coerce converts value to the field's declared type
func (f *FieldDefinition) Coerce(value interface{}) (interface{}, error) {
	coerced, err := Coerce(f.Type, value)
	if err != nil {
		if mismatch, ok := err.(*TypeMismatchError); ok {
			mismatch.Field = f.Name
		}
		return nil, err
	}
	return coerced, nil
}

func (f *FieldDefinition) clone() *FieldDefinition {
	c := *f
	c.Default = CopyValue(f.Default)
	c.Constraints = append([]Constraint(nil), f.Constraints...)
	c.Interceptors = append([]hooks.Interceptor(nil), f.Interceptors...)
	return &c
}

// VirtualAttribute is a non-persisted attribute. ReadOnly virtuals can only
// be written by interceptors (attr_reader style).
type VirtualAttribute struct {
	Name         string
	ReadOnly     bool
	Interceptors []hooks.Interceptor
}

// Intercept appends interceptors to the virtual attribute's setter chain
func (v *VirtualAttribute) Intercept(interceptors ...hooks.Interceptor) *VirtualAttribute {
	v.Interceptors = append(v.Interceptors, interceptors...)
	return v
}

func (v *VirtualAttribute) clone() *VirtualAttribute {
	c := *v
	c.Interceptors = append([]hooks.Interceptor(nil), v.Interceptors...)
	return &c
}

// Capability is a behaviour a document type opts into at declaration
type Capability uint8

const (
	// CapTimestamps maintains created_at and updated_at
	CapTimestamps Capability = 1 << iota
	// CapVersioning maintains a version counter and optional snapshots
	CapVersioning
	// CapMultiParameter combines dob(1i)-style keys during bulk assignment
	CapMultiParameter
)

// String returns the string representation of the capability set
func (c Capability) String() string {
	names := ""
	for _, entry := range []struct {
		flag Capability
		name string
	}{
		{CapTimestamps, "timestamps"},
		{CapVersioning, "versioning"},
		{CapMultiParameter, "multi_parameter"},
	} {
		if c&entry.flag == 0 {
			continue
		}
		if names != "" {
			names += ","
		}
		names += entry.name
	}
	if names == "" {
		return "none"
	}
	return names
}

// Direction is an index or ordering direction
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// IndexKey is one (field, direction) component of an index
type IndexKey struct {
	Field     string
	Direction Direction
}

// Asc returns an ascending index key
func Asc(field string) IndexKey {
	return IndexKey{Field: field, Direction: Ascending}
}

// Desc returns a descending index key
func Desc(field string) IndexKey {
	return IndexKey{Field: field, Direction: Descending}
}

// IndexDefinition describes an index over one or more fields
type IndexDefinition struct {
	Keys       []IndexKey
	UniqueKeys bool
}

// Unique marks the index as a uniqueness constraint
func (i *IndexDefinition) Unique() *IndexDefinition {
	i.UniqueKeys = true
	return i
}

// Fields returns the indexed field names in declaration order
func (i *IndexDefinition) Fields() []string {
	fields := make([]string, len(i.Keys))
	for n, key := range i.Keys {
		fields[n] = key.Field
	}
	return fields
}

// KeySet identifies the index by its set of fields
func (i *IndexDefinition) KeySet() string {
	return keySet(i.Fields())
}

// Name returns a storage name for the index (age_1_ssn_-1)
func (i *IndexDefinition) Name() string {
	name := ""
	for n, key := range i.Keys {
		if n > 0 {
			name += "_"
		}
		name += fmt.Sprintf("%s_%d", key.Field, key.Direction)
	}
	return name
}

func (i *IndexDefinition) clone() *IndexDefinition {
	c := *i
	c.Keys = append([]IndexKey(nil), i.Keys...)
	return &c
}
