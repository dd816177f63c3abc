package resource

// Handle is an opaque guest-visible reference to a value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// TypeID distinguishes the kinds of values sharing one table.
type TypeID uint32

// EventType identifies a resource lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f.
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when removed.
type Dropper interface {
	Drop()
}
