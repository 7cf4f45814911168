package abi

// Event is emitted during transaction execution or block processing, for
// indexing and external monitoring.
type Event struct {
	// Type is the event type identifier (e.g. "Tx", "ValidatorSetUpdates").
	Type string

	// Attributes are the key-value pairs associated with this event.
	Attributes []Attribute
}

// NewEvent creates a new event with the given type.
func NewEvent(eventType string) Event {
	return Event{Type: eventType}
}

// AddAttribute adds an attribute to the event and returns the event for chaining.
func (e Event) AddAttribute(key string, value []byte) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// AddStringAttribute adds a string attribute to the event.
func (e Event) AddStringAttribute(key, value string) Event {
	return e.AddAttribute(key, []byte(value))
}

// AddIndexedAttribute adds an indexed attribute to the event.
func (e Event) AddIndexedAttribute(key string, value []byte) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value, Index: true})
	return e
}

// Attribute is a key-value pair within an Event.
type Attribute struct {
	// Key is the attribute name.
	Key string

	// Value is the attribute value.
	Value []byte

	// Index indicates whether this attribute should be indexed for queries.
	Index bool
}

// StringValue returns the attribute value as a string.
func (a Attribute) StringValue() string {
	return string(a.Value)
}

// Common event types emitted by the executor and pool.
const (
	EventCommit    = "Commit"
	EventTx        = "Tx"
	EventTxAdded   = "TxAdded"
	EventTxRemoved = "TxRemoved"

	EventValidatorSetUpdates = "ValidatorSetUpdates"
	EventEvidence            = "Evidence"
)

// Common attribute keys used in events.
const (
	AttributeKeyHeight    = "height"
	AttributeKeyHash      = "hash"
	AttributeKeyTxHash    = "tx.hash"
	AttributeKeyValidator = "validator"
	AttributeKeyReason    = "reason"
)
