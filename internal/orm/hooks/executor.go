package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor executes lifecycle hooks for document types
type Executor struct {
	registry   *Registry
	asyncQueue *AsyncQueue
	logger     *zap.Logger
}

// NewExecutor creates a new hook executor
func NewExecutor(registry *Registry, asyncQueue *AsyncQueue, logger *zap.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:   registry,
		asyncQueue: asyncQueue,
		logger:     logger,
	}
}

// Register registers a hook for a document type
func (e *Executor) Register(typeName string, hookType HookType, hook *Hook) {
	e.registry.Register(typeName, hookType, hook)
}

// Run executes the hooks registered for each of typeNames, in order. Passing
// the ancestry of a specialized type runs the base type's hooks as well.
func (e *Executor) Run(ctx context.Context, hookType HookType, rec Record, typeNames ...string) error {
	for _, typeName := range typeNames {
		hooks := e.registry.GetHooks(typeName, hookType)
		if len(hooks) == 0 {
			continue
		}

		hookCtx := NewContext(ctx, typeName)
		for _, hook := range hooks {
			if hook.Async {
				if err := e.enqueueAsyncHook(hookCtx, hook, rec); err != nil {
					e.logger.Warn("failed to enqueue async hook",
						zap.String("type", typeName),
						zap.String("hook", hookType.String()),
						zap.Error(err))
				}
				continue
			}
			if err := hook.Fn(hookCtx, rec); err != nil {
				return fmt.Errorf("hook %s failed: %w", hookType.String(), err)
			}
		}
	}
	return nil
}

// enqueueAsyncHook queues a hook against a detached copy of the record
func (e *Executor) enqueueAsyncHook(hookCtx *Context, hook *Hook, rec Record) error {
	if e.asyncQueue == nil {
		return fmt.Errorf("async queue not configured")
	}

	detached := newDetachedRecord(rec)
	typeName := hookCtx.TypeName()

	return e.asyncQueue.Enqueue(AsyncTask{
		Name: fmt.Sprintf("%s_%s_hook", typeName, hook.Type.String()),
		Fn: func(ctx context.Context) error {
			return hook.Fn(NewContext(ctx, typeName), detached)
		},
	})
}

// HasHooks returns true if any hooks are registered for the type and hook point
func (e *Executor) HasHooks(typeName string, hookType HookType) bool {
	return e.registry.HasHooks(typeName, hookType)
}

// detachedRecord is a read-mostly copy of a record handed to async hooks.
// Writes land in the copy only.
type detachedRecord struct {
	typeName string
	attrs    map[string]interface{}
}

func newDetachedRecord(rec Record) *detachedRecord {
	return &detachedRecord{
		typeName: rec.TypeName(),
		attrs:    deepCopyRecord(rec.Attributes()),
	}
}

func (d *detachedRecord) TypeName() string { return d.typeName }

func (d *detachedRecord) Get(name string) interface{} { return d.attrs[name] }

func (d *detachedRecord) SetVirtual(name string, v interface{}) { d.attrs[name] = v }

func (d *detachedRecord) Attributes() map[string]interface{} { return deepCopyRecord(d.attrs) }

func (d *detachedRecord) Set(name string, value interface{}) error {
	d.attrs[name] = value
	return nil
}

// deepCopyRecord creates a deep copy of a record map
func deepCopyRecord(record map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(record))
	for k, v := range record {
		copied[k] = deepCopyValue(v)
	}
	return copied
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyRecord(val)
	case []interface{}:
		copySlice := make([]interface{}, len(val))
		for i, item := range val {
			copySlice[i] = deepCopyValue(item)
		}
		return copySlice
	case []string:
		copySlice := make([]string, len(val))
		copy(copySlice, val)
		return copySlice
	default:
		return v
	}
}
