// Package hooks provides the setter interception chain and lifecycle callbacks
// that run around document persistence.
package hooks

// HookType represents the lifecycle point a hook is attached to
type HookType int

const (
	BeforeSave HookType = iota
	AfterSave
	BeforeDestroy
	AfterDestroy
)

// String returns the string representation of the hook type
func (h HookType) String() string {
	switch h {
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	case BeforeDestroy:
		return "before_destroy"
	case AfterDestroy:
		return "after_destroy"
	default:
		return "unknown"
	}
}

// Record is the view of a document instance that hooks and interceptors operate on
type Record interface {
	TypeName() string
	Get(name string) interface{}
	Set(name string, value interface{}) error
	SetVirtual(name string, value interface{})
	Attributes() map[string]interface{}
}

// HookFunc represents a lifecycle hook function
type HookFunc func(ctx *Context, rec Record) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Type  HookType
	Fn    HookFunc
	Async bool // Runs on the async queue against a copy of the attributes
}

// Registry manages the lifecycle hooks registered for each document type
type Registry struct {
	hooks map[string]map[HookType][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]map[HookType][]*Hook),
	}
}

// Register adds a hook for the given document type
func (r *Registry) Register(typeName string, hookType HookType, hook *Hook) {
	hook.Type = hookType
	if r.hooks[typeName] == nil {
		r.hooks[typeName] = make(map[HookType][]*Hook)
	}
	r.hooks[typeName][hookType] = append(r.hooks[typeName][hookType], hook)
}

// GetHooks returns all hooks for a type and hook point
func (r *Registry) GetHooks(typeName string, hookType HookType) []*Hook {
	return r.hooks[typeName][hookType]
}

// HasHooks returns true if there are any hooks registered for the type and hook point
func (r *Registry) HasHooks(typeName string, hookType HookType) bool {
	return len(r.hooks[typeName][hookType]) > 0
}
