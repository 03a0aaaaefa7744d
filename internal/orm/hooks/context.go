package hooks

import (
	"context"
)

// Context wraps the standard context with the document type being processed
type Context struct {
	context.Context
	typeName string
}

// NewContext creates a new hook context
func NewContext(ctx context.Context, typeName string) *Context {
	return &Context{
		Context:  ctx,
		typeName: typeName,
	}
}

// TypeName returns the name of the document type the hook runs for
func (c *Context) TypeName() string {
	return c.typeName
}
