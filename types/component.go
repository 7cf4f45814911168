package types

// Component is implemented by every pluggable piece the node coordinator
// wires together (handlers, reactors, the network) so that GetComponent can
// return them uniformly by name.
type Component interface {
	// Name identifies the component for lookup and logging.
	Name() string
}
