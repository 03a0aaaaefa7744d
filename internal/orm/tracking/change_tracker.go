// Package tracking records what happens to a document across saves: dirty
// attributes, the version counter, timestamps and retained version snapshots.
package tracking

import (
	"reflect"
	"sort"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// FieldChange represents a change to a single attribute
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

// ChangeTracker tracks attribute changes on a document since its last save.
// Like the document that owns it, it is not safe for concurrent mutation.
type ChangeTracker struct {
	original map[string]interface{}
	changes  map[string]*FieldChange
}

// NewChangeTracker creates a tracker whose baseline is original
func NewChangeTracker(original map[string]interface{}) *ChangeTracker {
	return &ChangeTracker{
		original: copyMap(original),
		changes:  make(map[string]*FieldChange),
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = schema.CopyValue(v)
	}
	return result
}

func deepEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// Track records the new value of field. Assigning the baseline value again
// clears the change.
func (ct *ChangeTracker) Track(field string, value interface{}) {
	oldValue, hadOldValue := ct.original[field]
	if hadOldValue && deepEqual(oldValue, value) {
		delete(ct.changes, field)
		return
	}
	if !hadOldValue && value == nil {
		delete(ct.changes, field)
		return
	}
	ct.changes[field] = &FieldChange{
		Field:    field,
		OldValue: oldValue,
		NewValue: schema.CopyValue(value),
	}
}

// Changed returns true if the attribute has changed
func (ct *ChangeTracker) Changed(field string) bool {
	_, ok := ct.changes[field]
	return ok
}

// ChangedFields returns the changed attribute names, sorted
func (ct *ChangeTracker) ChangedFields() []string {
	fields := make([]string, 0, len(ct.changes))
	for field := range ct.changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Change returns the change for an attribute, or nil if unchanged
func (ct *ChangeTracker) Change(field string) *FieldChange {
	return ct.changes[field]
}

// Changes returns a copy of all changes
func (ct *ChangeTracker) Changes() map[string]*FieldChange {
	result := make(map[string]*FieldChange, len(ct.changes))
	for k, v := range ct.changes {
		result[k] = v
	}
	return result
}

// HasChanges returns true if any attribute has changed
func (ct *ChangeTracker) HasChanges() bool {
	return len(ct.changes) > 0
}

// PreviousValue returns the value at the last save
func (ct *ChangeTracker) PreviousValue(field string) interface{} {
	return ct.original[field]
}

// ChangedFrom returns true if the attribute changed away from value
func (ct *ChangeTracker) ChangedFrom(field string, value interface{}) bool {
	change, ok := ct.changes[field]
	return ok && deepEqual(change.OldValue, value)
}

// Commit makes current the new baseline; called after a successful save
func (ct *ChangeTracker) Commit(current map[string]interface{}) {
	ct.original = copyMap(current)
	ct.changes = make(map[string]*FieldChange)
}

// Clone returns an independent copy of the tracker
func (ct *ChangeTracker) Clone() *ChangeTracker {
	c := &ChangeTracker{
		original: copyMap(ct.original),
		changes:  make(map[string]*FieldChange, len(ct.changes)),
	}
	for k, v := range ct.changes {
		change := *v
		change.NewValue = schema.CopyValue(v.NewValue)
		c.changes[k] = &change
	}
	return c
}
