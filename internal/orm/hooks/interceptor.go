package hooks

import (
	"errors"
	"fmt"
)

var (
	// ErrSuppressStorage is returned by an interceptor that deliberately skips the rest of the chain
	ErrSuppressStorage = errors.New("storage suppressed by interceptor")

	// ErrNextCalledTwice is returned when an interceptor invokes the next step more than once
	ErrNextCalledTwice = errors.New("interceptor invoked next more than once")

	// ErrChainBroken is returned when an interceptor neither invokes next nor suppresses storage
	ErrChainBroken = errors.New("interceptor did not invoke next")
)

// Next forwards a value to the next step of a setter chain
type Next func(value interface{}) error

// Interceptor wraps a field assignment. It must call next exactly once,
// or return ErrSuppressStorage to skip storing the value.
type Interceptor func(rec Record, value interface{}, next Next) error

// Chain is the composed interceptor sequence for one field. It holds no
// per-instance state and may be shared across goroutines.
type Chain struct {
	field        string
	interceptors []Interceptor
}

// Compose builds the chain for a field. The first interceptor is the outermost.
func Compose(field string, interceptors ...Interceptor) *Chain {
	steps := make([]Interceptor, len(interceptors))
	copy(steps, interceptors)
	return &Chain{
		field:        field,
		interceptors: steps,
	}
}

// Field returns the field the chain is attached to
func (c *Chain) Field() string {
	return c.field
}

// Len returns the number of interceptors in the chain
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.interceptors)
}

// Invoke runs the chain for value, terminating at store
func (c *Chain) Invoke(rec Record, value interface{}, store Next) error {
	if c.Len() == 0 {
		return store(value)
	}
	return c.step(0, rec, value, store)
}

func (c *Chain) step(i int, rec Record, value interface{}, store Next) error {
	if i == len(c.interceptors) {
		return store(value)
	}

	calls := 0
	next := func(v interface{}) error {
		calls++
		if calls > 1 {
			return fmt.Errorf("%w: %s", ErrNextCalledTwice, c.field)
		}
		return c.step(i+1, rec, v, store)
	}

	err := c.interceptors[i](rec, value, next)
	if errors.Is(err, ErrSuppressStorage) {
		return nil
	}
	if err != nil {
		return err
	}
	if calls > 1 {
		return fmt.Errorf("%w: %s", ErrNextCalledTwice, c.field)
	}
	if calls == 0 {
		return fmt.Errorf("%w: %s", ErrChainBroken, c.field)
	}
	return nil
}
