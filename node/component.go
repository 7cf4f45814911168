package node

import "errors"

// ErrComponentNotFound is returned by GetComponent when no component is
// registered under the given name.
var ErrComponentNotFound = errors.New("component not found")

// component is a thin types.Component wrapper around a name, used by
// GetComponent since the handler and reactor types have no uniform
// lifecycle/naming surface of their own to implement the interface with.
type component struct {
	name string
}

func (c component) Name() string { return c.name }
