package agentgraph

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RunOption configures a direct GraphNode.Invoke call.
type RunOption func(*runConfig)

type runConfig struct {
	run string
}

// WithRun joins an existing run instead of seeding a new one. No
// RunInvoked event is emitted in that case.
func WithRun(id string) RunOption {
	return func(c *runConfig) { c.run = id }
}

func newRunID() string {
	return uuid.New().String()
}

// GraphOption configures a GraphAgent at construction time.
type GraphOption func(*graphOptions)

type graphOptions struct {
	dependencies map[string]any
}

// WithDependency registers a value resolvable by node code via
// Context.Resolve(key) — a plain string-keyed lookup, since the core only
// needs to pass resolution through to external collaborators such as
// llmexec rather than perform injection itself.
func WithDependency(key string, value any) GraphOption {
	return func(o *graphOptions) { o.dependencies[key] = value }
}

// GraphAgent owns the EventStream and the GraphNode set keyed by
// graph-local node id.
type GraphAgent struct {
	stream *EventStream
	deps   map[string]any

	nodesMu sync.RWMutex
	nodes   map[string]*GraphNode

	ctxMu       sync.Mutex
	runContexts map[string]context.Context

	stateMu     sync.Mutex
	globalState map[string]map[string]any // run -> key -> value
}

// NewGraphAgent constructs an empty graph.
func NewGraphAgent(opts ...GraphOption) *GraphAgent {
	o := graphOptions{dependencies: make(map[string]any)}
	for _, opt := range opts {
		opt(&o)
	}
	return &GraphAgent{
		stream:      NewEventStream(),
		deps:        o.dependencies,
		nodes:       make(map[string]*GraphNode),
		runContexts: make(map[string]context.Context),
		globalState: make(map[string]map[string]any),
	}
}

// Stream exposes the underlying EventStream for callers that want to
// observe raw AgentEvents (e.g. an MCP bridge or a UI adapter).
func (g *GraphAgent) Stream() *EventStream {
	return g.stream
}

// Node looks up a previously added GraphNode by id.
func (g *GraphAgent) Node(id string) (*GraphNode, error) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	gn, ok := g.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return gn, nil
}

// AddNode registers node under nodeID, calls its Init hook with the
// synthetic node-init run id, and starts its event dispatcher. nodeID must
// be unique within the graph.
func (g *GraphAgent) AddNode(nodeID string, node AgentNode, config any) (*GraphNode, error) {
	g.nodesMu.Lock()
	if _, exists := g.nodes[nodeID]; exists {
		g.nodesMu.Unlock()
		return nil, ErrAlreadyBound
	}
	gn := newGraphNode(g, nodeID, node, config)
	g.nodes[nodeID] = gn
	g.nodesMu.Unlock()

	initCtx := &Context{Ctx: context.Background(), Run: RunHandle{initRunID}, Node: NodeHandle{nodeID}, Config: config, agent: g}
	if err := node.Init(initCtx); err != nil {
		return nil, err
	}

	_, evCh := g.stream.Subscribe()
	go func() {
		for e := range evCh {
			gn.handleEvent(e)
		}
	}()

	return gn, nil
}

func (g *GraphAgent) resolve(key string) (any, bool) {
	v, ok := g.deps[key]
	return v, ok
}

func (g *GraphAgent) setGlobalState(run, key string, value any) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	m, ok := g.globalState[run]
	if !ok {
		m = make(map[string]any)
		g.globalState[run] = m
	}
	m[key] = value
}

func (g *GraphAgent) globalStateLookup(run, key string) (any, bool) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	m, ok := g.globalState[run]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func (g *GraphAgent) globalState(run, key string) (any, bool) {
	return g.globalStateLookup(run, key)
}

func (g *GraphAgent) runContext(run string) context.Context {
	g.ctxMu.Lock()
	defer g.ctxMu.Unlock()
	if c, ok := g.runContexts[run]; ok {
		return c
	}
	return context.Background()
}

func (g *GraphAgent) setRunContext(run string, ctx context.Context) {
	g.ctxMu.Lock()
	defer g.ctxMu.Unlock()
	g.runContexts[run] = ctx
}
