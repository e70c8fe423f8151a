package agentgraph

import "sync"

// subscriberBuffer is generous enough that a slow GraphNode dispatcher
// doesn't make Next block under normal graph sizes; it is not a backpressure
// mechanism.
const subscriberBuffer = 256

// EventStream is the hot multicast bus every GraphNode subscribes to.
// A single EventStream belongs to exactly one GraphAgent. Next serializes
// publication with a mutex so that one producer's events are never
// reordered across subscribers; each subscriber then drains its own
// buffered channel independently, which is where asynchrony between
// subscribers is introduced.
type EventStream struct {
	mu     sync.Mutex
	subs   map[int]chan AgentEvent
	nextID int
}

// NewEventStream constructs an empty bus.
func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[int]chan AgentEvent)}
}

// Subscribe registers a new subscriber and returns its id (for Unsubscribe)
// and the channel it will receive events on. Late subscribers never see
// events published before this call.
func (s *EventStream) Subscribe() (int, <-chan AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan AgentEvent, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once for the same id.
func (s *EventStream) Unsubscribe(id int) {
	s.mu.Lock()
	ch, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Next publishes e synchronously to every current subscriber. "Synchronously"
// means the send into each subscriber's buffered channel happens before Next
// returns; it does not mean the subscriber has processed e yet.
func (s *EventStream) Next(e AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		ch <- e
	}
}

// SendOutput publishes an Output event.
func (s *EventStream) SendOutput(run, node string, output map[string]any) {
	s.Next(outputEvent(run, node, output))
}

// SendRenderUpdate publishes a Render event.
func (s *EventStream) SendRenderUpdate(run, node string, payload RenderPayload) {
	s.Next(renderEvent(run, node, payload))
}
