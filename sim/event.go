package sim

// EventType identifies what an event does when it is processed.
type EventType string

const (
	EventTypeArrival   EventType = "ARRIVAL"
	EventTypeDeparture EventType = "DEPARTURE"
)

// Event is a timestamped call arrival or departure.
// ID is assigned by the caller (usually the call index); Seq is assigned by
// the Scheduler on insertion and breaks timestamp ties.
type Event struct {
	ID        int64
	Type      EventType
	Timestamp int64
	Call      *Call

	seq uint64
}

// NewArrivalEvent creates an arrival event for c at its ArrivalTime.
func NewArrivalEvent(id int64, c *Call) *Event {
	return &Event{ID: id, Type: EventTypeArrival, Timestamp: c.ArrivalTime, Call: c}
}

// NewDepartureEvent creates a departure event for c at its DepartureTime.
func NewDepartureEvent(id int64, c *Call) *Event {
	return &Event{ID: id, Type: EventTypeDeparture, Timestamp: c.DepartureTime(), Call: c}
}

// Seq returns the insertion sequence number assigned by the Scheduler.
func (e *Event) Seq() uint64 {
	return e.seq
}
