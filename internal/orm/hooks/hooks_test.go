package hooks

import (
	"strconv"
)

// fakeRecord is a map-backed Record used across the hooks tests
type fakeRecord struct {
	typeName string
	attrs    map[string]interface{}
	virtual  map[string]interface{}
}

func newFakeRecord() *fakeRecord {
	return &fakeRecord{
		typeName: "Person",
		attrs:    make(map[string]interface{}),
		virtual:  make(map[string]interface{}),
	}
}

func (f *fakeRecord) TypeName() string { return f.typeName }

func (f *fakeRecord) Get(name string) interface{} {
	if v, ok := f.virtual[name]; ok {
		return v
	}
	return f.attrs[name]
}

func (f *fakeRecord) Set(name string, value interface{}) error {
	f.attrs[name] = value
	return nil
}

func (f *fakeRecord) SetVirtual(name string, value interface{}) { f.virtual[name] = value }

func (f *fakeRecord) Attributes() map[string]interface{} { return deepCopyRecord(f.attrs) }

// rescoring mirrors the interceptor the fixture attaches to score
func rescoring(rec Record, value interface{}, next Next) error {
	n, _ := strconv.Atoi(value.(string))
	rec.SetVirtual("rescored", n+20)
	return next(value)
}
