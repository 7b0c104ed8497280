package sim

import "container/heap"

// Scheduler is a priority queue of events with deterministic ordering.
// Ordering: timestamp → insertion sequence.
//
// It never blocks and has no cancellation: every scheduled event is
// eventually returned by Next.
type Scheduler struct {
	events  eventHeap
	nextSeq uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{events: make(eventHeap, 0)}
	heap.Init(&s.events)
	return s
}

// Schedule inserts an event keyed by its timestamp.
func (s *Scheduler) Schedule(e *Event) {
	s.nextSeq++
	e.seq = s.nextSeq
	heap.Push(&s.events, e)
}

// Next removes and returns the earliest event, or nil when empty.
func (s *Scheduler) Next() *Event {
	if s.events.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.events).(*Event)
}

// Peek returns the next event without removing it.
func (s *Scheduler) Peek() *Event {
	if s.events.Len() == 0 {
		return nil
	}
	return s.events[0]
}

// PendingCount reports queue depth.
func (s *Scheduler) PendingCount() int {
	return s.events.Len()
}

// eventHeap implements heap.Interface.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Timestamp != h[j].Timestamp {
		return h[i].Timestamp < h[j].Timestamp
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}
