package agentgraph

import (
	"context"
	"fmt"
	"sync"

	"agentgraph/rlog"
)

type outputMapping struct {
	targetField string
	sourceField string
	producer    string
	isArray     bool
}

type schemaMapping struct {
	targetField string
	producer    string
	isArray     bool
}

type renderMapping struct {
	targetField string
	producer    string
	isArray     bool
}

// Result is delivered on the channel returned by GraphNode.Invoke.
type Result struct {
	Output Output
	Err    error
}

// runState is the per-(run, GraphNode) entry in the state-machine table:
// explicit bookkeeping in place of a reactive operator chain
// (take/takeUntil/groupBy/zip/share).
type runState struct {
	run string

	mu   sync.Mutex
	cond *sync.Cond

	acc *accumulator

	outputProducersRemaining map[string]bool
	outputProducersCompleted bool
	renderDelivered          int
	schemaProducerTerminal   map[string]bool

	fired            bool
	terminalPublished bool
	terminalSkipped  bool
	terminalErr      error

	collectedOutput map[string]any
	renderListeners []chan RenderPayload

	resultCh chan Result // non-nil only for runs started via direct Invoke on this node
}

func newRunState(run string) *runState {
	rs := &runState{
		run:                    run,
		acc:                    newAccumulator(),
		outputProducersRemaining: make(map[string]bool),
		schemaProducerTerminal: make(map[string]bool),
		collectedOutput:        make(map[string]any),
	}
	rs.cond = sync.NewCond(&rs.mu)
	return rs
}

// GraphNode is one instance per node added to a GraphAgent.
type GraphNode struct {
	id     string
	agent  *GraphAgent
	def    AgentNode
	meta   Metadata
	config any

	bound          bool
	literalEntries map[string]any
	outputSources  map[string]bool
	schemaSources  map[string]bool
	renderSources  map[string]bool
	outputMappings []outputMapping
	schemaMappings []schemaMapping
	renderMappings []renderMapping
	totalExpected  int

	cacheMu     sync.Mutex
	outputCache map[string]*OutputValueProvider
	schemaOnce  *OutputValueProvider
	renderOnce  *OutputValueProvider

	runsMu sync.Mutex
	runs   map[string]*runState
}

func newGraphNode(agent *GraphAgent, id string, def AgentNode, config any) *GraphNode {
	return &GraphNode{
		id:             id,
		agent:          agent,
		def:            def,
		meta:           def.Metadata(),
		config:         config,
		literalEntries: make(map[string]any),
		outputSources:  make(map[string]bool),
		schemaSources:  make(map[string]bool),
		renderSources:  make(map[string]bool),
		outputCache:    make(map[string]*OutputValueProvider),
		runs:           make(map[string]*runState),
	}
}

// Bind wires this node's input fields to upstream providers or literal
// values. It must be called at most once per node.
func (gn *GraphNode) Bind(edges map[string]Edge) error {
	if gn.bound {
		return ErrAlreadyBound
	}
	for targetField, edge := range edges {
		if edge.hasLiteral {
			gn.literalEntries[targetField] = edge.literal
			continue
		}
		for _, p := range edge.providers {
			if p.agent != gn.agent {
				return ErrUnknownProducer
			}
			switch p.kind {
			case providerOutput:
				gn.outputSources[p.nodeID] = true
				gn.outputMappings = append(gn.outputMappings, outputMapping{
					targetField: targetField, sourceField: p.sourceField, producer: p.nodeID, isArray: edge.isArray,
				})
			case providerSchema:
				gn.schemaSources[p.nodeID] = true
				gn.schemaMappings = append(gn.schemaMappings, schemaMapping{
					targetField: targetField, producer: p.nodeID, isArray: edge.isArray,
				})
			case providerRender:
				gn.renderSources[p.nodeID] = true
				gn.renderMappings = append(gn.renderMappings, renderMapping{
					targetField: targetField, producer: p.nodeID, isArray: edge.isArray,
				})
			}
		}
	}
	gn.bound = true
	gn.totalExpected = len(gn.outputSources) + len(gn.schemaSources) + len(gn.renderSources)
	return nil
}

func (gn *GraphNode) getOrCreateRun(run string) *runState {
	gn.runsMu.Lock()
	defer gn.runsMu.Unlock()
	rs, ok := gn.runs[run]
	if ok {
		return rs
	}
	rs = newRunState(run)
	gn.runs[run] = rs
	return rs
}

func (gn *GraphNode) dropRun(run string) {
	gn.runsMu.Lock()
	delete(gn.runs, run)
	gn.runsMu.Unlock()
}

func (gn *GraphNode) contextFor(run string) *Context {
	return &Context{Ctx: gn.agent.runContext(run), Run: RunHandle{run}, Node: NodeHandle{gn.id}, Config: gn.config, agent: gn.agent}
}

// handleEvent is the dispatcher's single entry point: every GraphNode
// subscribes to the whole EventStream and routes events into its own
// table keyed by (run, node).
func (gn *GraphNode) handleEvent(e AgentEvent) {
	switch e.Type {
	case EventRunInvoked:
		gn.onRunInvoked(e.Run)
	case EventOutput:
		if e.Node == gn.id {
			gn.recordOwnOutput(e.Run, e.Output)
		}
		if gn.bound && gn.outputSources[e.Node] {
			gn.onUpstreamOutput(e.Run, e.Node, e.Output)
		}
	case EventRender:
		if e.Node == gn.id {
			gn.forwardOwnRender(e.Run, e.Render)
		}
		if gn.bound && gn.renderSources[e.Node] {
			gn.onUpstreamRender(e.Run, e.Node, e.Render)
		}
	case EventRunCompleted, EventRunSkipped:
		if gn.bound {
			gn.onUpstreamTerminal(e.Run, e.Node, e.Type == EventRunSkipped)
		}
	}
}

// onRunInvoked seeds the run's literal entries and delivers the one-shot
// schema mappings: on the first RunInvoked for the run, each schema source
// emits exactly one mapped input event.
func (gn *GraphNode) onRunInvoked(run string) {
	if !gn.bound {
		return
	}
	rs := gn.getOrCreateRun(run)

	rs.mu.Lock()
	if len(gn.outputSources) == 0 {
		rs.outputProducersCompleted = true
	} else {
		for producer := range gn.outputSources {
			rs.outputProducersRemaining[producer] = true
		}
	}
	for field, v := range gn.literalEntries {
		rs.acc.input[field] = v
	}
	rs.mu.Unlock()

	ctx := gn.contextFor(run)
	for _, m := range gn.schemaMappings {
		producer, ok := gn.agent.nodes[m.producer]
		if !ok {
			continue
		}
		gn.acceptAndNotify(rs, ctx, m.targetField, m.isArray, producer.toolDescriptor())
	}

	rs.mu.Lock()
	gn.checkFireLocked(rs)
	rs.mu.Unlock()
}

func (gn *GraphNode) onUpstreamOutput(run, producer string, output Output) {
	if !gn.bound {
		return
	}
	rs := gn.getOrCreateRun(run)
	ctx := gn.contextFor(run)
	for _, m := range gn.outputMappings {
		if m.producer != producer {
			continue
		}
		v, ok := output[m.sourceField]
		if !ok {
			continue
		}
		gn.acceptAndNotify(rs, ctx, m.targetField, m.isArray, v)
	}
}

func (gn *GraphNode) onUpstreamRender(run, producer string, payload RenderPayload) {
	if !gn.bound {
		return
	}
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	if rs.renderDelivered >= len(gn.renderSources) {
		rs.mu.Unlock()
		return
	}
	rs.mu.Unlock()

	ctx := gn.contextFor(run)
	for _, m := range gn.renderMappings {
		if m.producer != producer {
			continue
		}
		rs.mu.Lock()
		if rs.renderDelivered >= len(gn.renderSources) {
			rs.mu.Unlock()
			return
		}
		rs.renderDelivered++
		rs.mu.Unlock()
		gn.acceptAndNotify(rs, ctx, m.targetField, m.isArray, payload)
		return
	}
}

func (gn *GraphNode) onUpstreamTerminal(run, producer string, skipped bool) {
	rs := gn.getOrCreateRun(run)

	rs.mu.Lock()
	if gn.schemaSources[producer] {
		rs.schemaProducerTerminal[producer] = true
	}
	fireNow := false
	if gn.outputSources[producer] {
		delete(rs.outputProducersRemaining, producer)
		if len(rs.outputProducersRemaining) == 0 {
			rs.outputProducersCompleted = true
			fireNow = true
		}
	}
	if fireNow {
		gn.checkFireLocked(rs)
	}
	rs.mu.Unlock()
}

// acceptAndNotify folds one delivery through the input reducer and, if
// accepted, calls OnInputEvent with the new partial snapshot.
func (gn *GraphNode) acceptAndNotify(rs *runState, ctx *Context, targetField string, isArray bool, value any) {
	rs.mu.Lock()
	err := rs.acc.accept(reducerEntry{run: rs.run, targetField: targetField, isArray: isArray, value: value})
	if err != nil {
		rs.mu.Unlock()
		gn.failRun(rs, err)
		return
	}
	snap := rs.acc.snapshot()
	rs.mu.Unlock()

	gn.def.OnInputEvent(ctx, PartialInput(snap))
}

// checkFireLocked implements the "zip" in 4.4's firing algorithm. Caller
// must hold rs.mu. It fires at most once per run.
func (gn *GraphNode) checkFireLocked(rs *runState) {
	if rs.fired || !rs.outputProducersCompleted {
		return
	}
	rs.fired = true
	full := rs.acc.count == gn.totalExpected
	snapshot := rs.acc.snapshot()
	go func() {
		if full {
			gn.invokeExecute(rs, snapshot)
		} else {
			gn.ensureTerminal(rs.run, true, nil)
		}
	}()
}

func (gn *GraphNode) failRun(rs *runState, err error) {
	rlog.Error("agentgraph: node %s run %s protocol violation: %v", gn.id, rs.run, err)
	gn.ensureTerminal(rs.run, false, err)
}

// invokeExecute runs AgentNode.Execute to completion, republishing each
// yield as an Output event and merging it into the run's collected output.
func (gn *GraphNode) invokeExecute(rs *runState, input map[string]any) {
	rlog.Debug("node %s run %s executing", gn.id, rs.run)
	ctx := gn.contextFor(rs.run)
	ch := gn.def.Execute(ctx, Input(input))
	merged := Output{}
	for y := range ch {
		if y.Err != nil {
			gn.failRun(rs, y.Err)
			return
		}
		if len(y.Output) == 0 {
			continue
		}
		for k, v := range y.Output {
			merged[k] = v
		}
		gn.agent.stream.SendOutput(rs.run, gn.id, y.Output)
		gn.recordOwnOutput(rs.run, y.Output)
	}
	rs.mu.Lock()
	for k, v := range merged {
		rs.collectedOutput[k] = v
	}
	rs.mu.Unlock()
	gn.ensureTerminal(rs.run, false, nil)
}

// recordOwnOutput makes this node's yields available to OutputValueProvider.Select
// without waiting for the terminal event.
func (gn *GraphNode) recordOwnOutput(run string, output Output) {
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	for k, v := range output {
		rs.collectedOutput[k] = v
	}
	rs.cond.Broadcast()
	rs.mu.Unlock()
}

func (gn *GraphNode) forwardOwnRender(run string, payload RenderPayload) {
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	listeners := append([]chan RenderPayload{}, rs.renderListeners...)
	rs.mu.Unlock()
	for _, l := range listeners {
		l <- payload
	}
}

// ensureTerminal publishes the terminal event for (run, gn) exactly once.
// Called both for this node's own completion and, from another GraphNode,
// to synthesize the skip of a schema-bound upstream that never ran.
func (gn *GraphNode) ensureTerminal(run string, skipped bool, err error) bool {
	rs := gn.getOrCreateRun(run)

	rs.mu.Lock()
	if rs.terminalPublished {
		rs.mu.Unlock()
		return false
	}
	rs.terminalPublished = true
	rs.terminalSkipped = skipped
	rs.terminalErr = err
	out := make(Output, len(rs.collectedOutput))
	for k, v := range rs.collectedOutput {
		out[k] = v
	}
	listeners := rs.renderListeners
	rs.renderListeners = nil
	resultCh := rs.resultCh
	rs.cond.Broadcast()
	rs.mu.Unlock()

	for _, l := range listeners {
		close(l)
	}

	// Schema-bound upstreams that never ran are skipped before this node's
	// own terminal event is published, so their RunSkipped is never later.
	if gn.bound {
		gn.propagateSchemaSkips(rs)
	}

	gn.agent.stream.Next(terminalEvent(run, gn.id, skipped, err))

	if resultCh != nil {
		resultCh <- Result{Output: out, Err: err}
		close(resultCh)
	}
	return true
}

// propagateSchemaSkips ensures that when this node itself completes, any
// schema-source node that did not run is issued a synthetic RunSkipped.
func (gn *GraphNode) propagateSchemaSkips(rs *runState) {
	rs.mu.Lock()
	pending := make([]string, 0, len(gn.schemaSources))
	for producer := range gn.schemaSources {
		if !rs.schemaProducerTerminal[producer] {
			pending = append(pending, producer)
		}
	}
	rs.mu.Unlock()

	for _, producerID := range pending {
		producer, ok := gn.agent.nodes[producerID]
		if !ok {
			continue
		}
		producer.ensureTerminal(rs.run, true, nil)
	}
}

func (gn *GraphNode) renderChannel(run string) <-chan RenderPayload {
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.terminalPublished {
		ch := make(chan RenderPayload)
		close(ch)
		return ch
	}
	ch := make(chan RenderPayload, subscriberBuffer)
	rs.renderListeners = append(rs.renderListeners, ch)
	return ch
}

func (gn *GraphNode) selectOutputField(run, field string) (any, error) {
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for {
		if v, ok := rs.collectedOutput[field]; ok {
			return v, nil
		}
		if rs.terminalPublished {
			return nil, fmt.Errorf("agentgraph: run %s node %s terminated before field %q was produced", run, gn.id, field)
		}
		rs.cond.Wait()
	}
}

func (gn *GraphNode) toolDescriptor() ToolDescriptor {
	return ToolDescriptor{
		ID:          gn.meta.ID,
		Name:        gn.meta.Name,
		Description: gn.meta.Description,
		Parameters:  gn.meta.Input,
		Node:        gn.id,
	}
}

// Output returns the memoized output provider for field.
func (gn *GraphNode) Output(field string) *OutputValueProvider {
	gn.cacheMu.Lock()
	defer gn.cacheMu.Unlock()
	if p, ok := gn.outputCache[field]; ok {
		return p
	}
	p := &OutputValueProvider{kind: providerOutput, agent: gn.agent, nodeID: gn.id, sourceField: field}
	gn.outputCache[field] = p
	return p
}

// Schema returns the memoized schema provider for this node.
func (gn *GraphNode) Schema() *OutputValueProvider {
	gn.cacheMu.Lock()
	defer gn.cacheMu.Unlock()
	if gn.schemaOnce == nil {
		gn.schemaOnce = &OutputValueProvider{kind: providerSchema, agent: gn.agent, nodeID: gn.id}
	}
	return gn.schemaOnce
}

// Render returns the memoized render provider for this node.
func (gn *GraphNode) Render() *OutputValueProvider {
	gn.cacheMu.Lock()
	defer gn.cacheMu.Unlock()
	if gn.renderOnce == nil {
		gn.renderOnce = &OutputValueProvider{kind: providerRender, agent: gn.agent, nodeID: gn.id}
	}
	return gn.renderOnce
}

// Invoke seeds a run at this node directly. If opts supplies WithRun, the
// caller is joining a run already seeded elsewhere and no RunInvoked event
// is emitted.
func (gn *GraphNode) Invoke(ctx context.Context, input Input, opts ...RunOption) (RunHandle, <-chan Result) {
	cfg := runConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	run := cfg.run
	joining := run != ""
	if !joining {
		run = newRunID()
	}

	gn.agent.setRunContext(run, ctx)
	rs := gn.getOrCreateRun(run)
	rs.mu.Lock()
	rs.fired = true
	rs.resultCh = make(chan Result, 1)
	resultCh := rs.resultCh
	rs.mu.Unlock()

	if !joining {
		gn.agent.stream.Next(AgentEvent{Type: EventRunInvoked, Run: run})
	}

	go gn.invokeExecute(rs, input)

	return RunHandle{ID: run}, resultCh
}
