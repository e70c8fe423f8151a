package agentgraph

// EventType is the closed set of event discriminants carried on an EventStream.
type EventType string

const (
	EventRunInvoked   EventType = "RunInvoked"
	EventOutput       EventType = "Output"
	EventRender       EventType = "Render"
	EventRunCompleted EventType = "RunCompleted"
	EventRunSkipped   EventType = "RunSkipped"
)

// initRunID is the synthetic run id passed to AgentNode.Init.
const initRunID = "__NODE_INIT__"

// RenderPayload is the opaque step/data pair a node publishes via Context.Render.
// step is never interpreted by the core; it is caller-assigned.
type RenderPayload struct {
	Step string
	Data any
}

// AgentEvent is the single event type multiplexed over an EventStream.
// Run is empty for run-independent events (schema descriptors are resolved
// directly through the provider rather than published as events, but the
// field stays on the struct so every event shares one shape).
type AgentEvent struct {
	Type   EventType
	Run    string
	Node   string
	Output map[string]any
	Render RenderPayload
	Err    error
}

func outputEvent(run, node string, output map[string]any) AgentEvent {
	return AgentEvent{Type: EventOutput, Run: run, Node: node, Output: output}
}

func renderEvent(run, node string, payload RenderPayload) AgentEvent {
	return AgentEvent{Type: EventRender, Run: run, Node: node, Render: payload}
}

func terminalEvent(run, node string, skipped bool, err error) AgentEvent {
	t := EventRunCompleted
	if skipped {
		t = EventRunSkipped
	}
	return AgentEvent{Type: t, Run: run, Node: node, Err: err}
}

func isTerminal(t EventType) bool {
	return t == EventRunCompleted || t == EventRunSkipped
}
