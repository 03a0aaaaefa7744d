// Package crud ties the document model to a storage collaborator: saving
// with validation, versioning and autosave, deleting with cascades, and
// finding and loading documents.
package crud

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/attributes"
	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
	"github.com/conduit-lang/conduit-odm/internal/orm/tracking"
	"github.com/conduit-lang/conduit-odm/internal/orm/validation"
)

// Operation represents a persistence operation type
type Operation int

const (
	// OperationSave represents an insert or replace
	OperationSave Operation = iota
	// OperationFind represents a read
	OperationFind
	// OperationDelete represents a delete
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationSave:
		return "save"
	case OperationFind:
		return "find"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Engine persists documents of a registry through a Store
type Engine struct {
	registry  *schema.Registry
	store     storage.Store
	scopes    *query.ScopeRegistry
	hooks     *hooks.Executor
	validator *validation.Engine
	tracker   *tracking.Tracker
	loader    *relationships.Loader
	assigner  *attributes.Assigner
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithHooks sets the lifecycle hook executor
func WithHooks(executor *hooks.Executor) Option {
	return func(e *Engine) {
		e.hooks = executor
	}
}

// WithTracker sets the version and timestamp tracker
func WithTracker(tracker *tracking.Tracker) Option {
	return func(e *Engine) {
		e.tracker = tracker
	}
}

// WithScopes sets the named scopes available to criteria
func WithScopes(scopes *query.ScopeRegistry) Option {
	return func(e *Engine) {
		e.scopes = scopes
	}
}

// WithAssigner replaces the bulk assigner, e.g. for strict protection
func WithAssigner(assigner *attributes.Assigner) Option {
	return func(e *Engine) {
		e.assigner = assigner
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine over registry and store
func NewEngine(registry *schema.Registry, store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		store:     store,
		validator: validation.NewEngine(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.scopes == nil {
		e.scopes = query.NewScopeRegistry()
	}
	if e.hooks == nil {
		e.hooks = hooks.NewExecutor(nil, nil, e.logger)
	}
	if e.tracker == nil {
		e.tracker = tracking.NewTracker(tracking.WithLogger(e.logger))
	}
	if e.assigner == nil {
		e.assigner = attributes.NewAssigner(registry, attributes.WithLogger(e.logger))
	}
	e.loader = relationships.NewLoader(store, registry, e.logger)
	return e
}

// Registry returns the schema registry
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Store returns the storage collaborator
func (e *Engine) Store() storage.Store {
	return e.store
}

// Scopes returns the scope registry
func (e *Engine) Scopes() *query.ScopeRegistry {
	return e.scopes
}

// Hooks returns the lifecycle hook executor
func (e *Engine) Hooks() *hooks.Executor {
	return e.hooks
}

// Tracker returns the version and timestamp tracker
func (e *Engine) Tracker() *tracking.Tracker {
	return e.tracker
}

// Loader returns the relation loader
func (e *Engine) Loader() *relationships.Loader {
	return e.loader
}

// New creates an unsaved document of the named type
func (e *Engine) New(typeName string) (*document.Document, error) {
	typ, err := e.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return document.New(typ), nil
}

// Assign bulk-assigns attrs to doc under attribute protection
func (e *Engine) Assign(doc *document.Document, attrs map[string]interface{}) error {
	return e.assigner.BulkAssign(doc, attrs)
}

// AssignNested applies nested attributes to one relation of doc
func (e *Engine) AssignNested(doc *document.Document, name string, input interface{}) error {
	return e.assigner.AssignNested(doc, name, input)
}

// identityKey identifies a document across specializations sharing a collection
func identityKey(doc *document.Document) string {
	return doc.Type().Collection() + ":" + doc.ID()
}
