package agentgraph

import "context"

// FieldSchema describes one field of a node's declared input or output
// schema. Array marks a list-valued field (llmexec/schema renders it as a
// JSON Schema array); Bind does not read it: whether a bound field
// accumulates multiple values is decided by its Edge (FromProviders in
// provider.go). Label is the UI-facing display name for a field; schema validation
// itself is left to callers.
type FieldSchema struct {
	Label string
	Array bool
}

// Metadata is an AgentNode's stable descriptor.
type Metadata struct {
	ID          string
	Version     string
	Name        string
	Description string
	Input       map[string]FieldSchema
	Output      map[string]FieldSchema
}

// Input is the fully accumulated input handed to Execute.
type Input map[string]any

// PartialInput is whatever subset of Input has arrived so far, handed to
// OnInputEvent.
type PartialInput map[string]any

// Output is a partial (or, at the end, fully merged) output map. Keys must
// be a subset of the node's declared Output schema; the runtime does not
// enforce this, leaving it to node code.
type Output map[string]any

// Yield is one item produced by Execute's generator. A non-nil Err is a node
// execution failure: the runtime reads no further yields, and the node's
// terminal RunCompleted event and its Result both carry the error.
type Yield struct {
	Output Output
	Err    error
}

// AgentNode is the polymorphic unit every graph node implements.
type AgentNode interface {
	Metadata() Metadata
	Init(ctx *Context) error
	OnInputEvent(ctx *Context, partial PartialInput)
	Execute(ctx *Context, input Input) <-chan Yield
}

// RunHandle identifies one logical traversal of the graph.
type RunHandle struct {
	ID string
}

// NodeHandle identifies the GraphNode currently executing.
type NodeHandle struct {
	ID string
}

// Context is the per-invocation handle passed to node code.
type Context struct {
	Ctx    context.Context
	Run    RunHandle
	Node   NodeHandle
	Config any

	agent *GraphAgent
}

// SendOutput is the imperative equivalent of yielding output from Execute.
// Used by sink nodes whose OnInputEvent republishes partial input as output
// (see NewSinkNode) and by any node author who prefers push-style output.
func (c *Context) SendOutput(output Output) {
	c.agent.stream.SendOutput(c.Run.ID, c.Node.ID, output)
}

// RenderUpdater lets node code push subsequent updates to a render step it
// already created.
type RenderUpdater struct {
	ctx  *Context
	step string
}

// Update publishes another Render event for the same step.
func (r *RenderUpdater) Update(data any) {
	r.ctx.agent.stream.SendRenderUpdate(r.ctx.Run.ID, r.ctx.Node.ID, RenderPayload{Step: r.step, Data: data})
}

// Render publishes a Render event and returns an updater for subsequent
// updates to the same step. stepID is opaque to the core.
func (c *Context) Render(stepID string, data any) *RenderUpdater {
	c.agent.stream.SendRenderUpdate(c.Run.ID, c.Node.ID, RenderPayload{Step: stepID, Data: data})
	return &RenderUpdater{ctx: c, step: stepID}
}

// Resolve looks up a dependency-injected service by key, a plain
// string-keyed map since the core routing engine only needs to pass the
// lookup through, not perform the injection itself.
func (c *Context) Resolve(key string) (any, bool) {
	return c.agent.resolve(key)
}

// SetGlobalState records executor state under a well-known key, e.g. the
// core.llm.* keys the reference executor uses.
func (c *Context) SetGlobalState(key string, value any) {
	c.agent.setGlobalState(c.Run.ID, key, value)
}

// GlobalState reads back a value set by SetGlobalState for the current run.
func (c *Context) GlobalState(key string) (any, bool) {
	return c.agent.globalState(c.Run.ID, key)
}

// FuncNodeSpec builds an AgentNode from a plain struct literal instead of
// a hand-written type implementing the interface directly.
type FuncNodeSpec struct {
	ID          string
	Name        string
	Version     string
	Description string
	Input       map[string]FieldSchema
	Output      map[string]FieldSchema

	// Run implements Execute. It must close the returned channel when done.
	Run func(ctx *Context, input Input) <-chan Yield

	// OnInput, if set, implements OnInputEvent. Default is a no-op.
	OnInput func(ctx *Context, partial PartialInput)

	// OnInit, if set, implements Init. Default is a no-op.
	OnInit func(ctx *Context) error
}

type funcNode struct {
	spec FuncNodeSpec
}

// NewFuncNode builds an AgentNode from a FuncNodeSpec.
func NewFuncNode(spec FuncNodeSpec) AgentNode {
	return &funcNode{spec: spec}
}

func (f *funcNode) Metadata() Metadata {
	return Metadata{
		ID:          f.spec.ID,
		Version:     f.spec.Version,
		Name:        f.spec.Name,
		Description: f.spec.Description,
		Input:       f.spec.Input,
		Output:      f.spec.Output,
	}
}

func (f *funcNode) Init(ctx *Context) error {
	if f.spec.OnInit == nil {
		return nil
	}
	return f.spec.OnInit(ctx)
}

func (f *funcNode) OnInputEvent(ctx *Context, partial PartialInput) {
	if f.spec.OnInput != nil {
		f.spec.OnInput(ctx, partial)
	}
}

func (f *funcNode) Execute(ctx *Context, input Input) <-chan Yield {
	return f.spec.Run(ctx, input)
}

// NewSinkNode builds a sink node: its OnInputEvent republishes whatever
// subset of input has arrived as output,
// so downstream-of-the-sink consumers (or a direct caller awaiting its output
// provider) receive partial data without waiting for every bound field, and
// its Execute immediately completes with the full input once fired.
func NewSinkNode(id string, version string, input map[string]FieldSchema) AgentNode {
	output := make(map[string]FieldSchema, len(input))
	for k, v := range input {
		output[k] = v
	}
	return NewFuncNode(FuncNodeSpec{
		ID:      id,
		Name:    id,
		Version: version,
		Input:   input,
		Output:  output,
		OnInput: func(ctx *Context, partial PartialInput) {
			out := make(Output, len(partial))
			for k, v := range partial {
				out[k] = v
			}
			ctx.SendOutput(out)
		},
		Run: func(ctx *Context, input Input) <-chan Yield {
			ch := make(chan Yield, 1)
			out := make(Output, len(input))
			for k, v := range input {
				out[k] = v
			}
			ch <- Yield{Output: out}
			close(ch)
			return ch
		},
	})
}
