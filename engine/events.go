package engine

// EventKind tells which fields of an Event are set
type EventKind int

const (
	EventQuit EventKind = iota
	EventResize
	EventKey
)

// Key is a key the loop reacts to
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	// KeyReload rebuilds the shader programs from their sources
	KeyReload
)

// Event is a window or input event
type Event struct {
	Kind          EventKind
	Width, Height int
	Key           Key
}

func Quit() Event { return Event{Kind: EventQuit} }
func Resize(width, height int) Event { return Event{Kind: EventResize, Width: width, Height: height} }
func KeyDown(key Key) Event { return Event{Kind: EventKey, Key: key} }

// EventSource hands out the events that arrived since the last Poll
type EventSource interface {
	Poll() []Event
}

// Context is the window system side of the graphics context
type Context interface {
	MakeCurrent() error
	SwapBuffers() error
}

// EventQueue is an EventSource fed by hand
type EventQueue struct {
	pending []Event
}

// Push queues events for the next Poll
func (q *EventQueue) Push(events ...Event) {
	q.pending = append(q.pending, events...)
}

func (q *EventQueue) Poll() []Event {
	events := q.pending
	q.pending = nil
	return events
}
