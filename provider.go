package agentgraph

import "fmt"

// providerKind classifies what an OutputValueProvider exposes, used by
// GraphNode.Bind to sort edges into output/schema/render source sets.
type providerKind int

const (
	providerOutput providerKind = iota
	providerSchema
	providerRender
)

// ToolDescriptor is the tool-callable-node descriptor a schema provider
// resolves to; it is what a consumer node sees when it binds a field to
// another node's Schema() provider.
type ToolDescriptor struct {
	ID          string
	Name        string
	Description string
	Parameters  map[string]FieldSchema
	Node        string
}

// OutputValueProvider is the typed handle a GraphNode exposes for one of
// its outputs, its schema, or its render stream. It is both an observable
// (via Select) and a metadata tag GraphNode reads during Bind. The
// provider holds the producing node's id and the owning GraphAgent rather
// than a direct pointer to the GraphNode, so ownership stays acyclic and
// resolvable through the GraphAgent's node table.
type OutputValueProvider struct {
	kind        providerKind
	agent       *GraphAgent
	nodeID      string
	sourceField string // meaningful only for providerOutput

	// mergedSources is set only for the provider returned by
	// MergeRenderStreams; when non-nil, RenderChannel fans in each source's
	// channel instead of resolving nodeID.
	mergedSources []*OutputValueProvider
}

func (p *OutputValueProvider) node() *GraphNode {
	gn, ok := p.agent.nodes[p.nodeID]
	if !ok {
		panic(fmt.Sprintf("agentgraph: provider references unregistered node %q", p.nodeID))
	}
	return gn
}

// Select blocks until the first Output event for the given run carried this
// provider's field, or the owning node's terminal event for that run arrives
// first, in which case it returns an error. Only meaningful for output
// providers; schema/render providers have their own accessors.
func (p *OutputValueProvider) Select(runID string) (any, error) {
	if p.kind != providerOutput {
		return nil, fmt.Errorf("agentgraph: Select is only defined for output providers")
	}
	return p.node().selectOutputField(runID, p.sourceField)
}

// Descriptor returns the cached ToolDescriptor for a schema provider.
func (p *OutputValueProvider) Descriptor() ToolDescriptor {
	if p.kind != providerSchema {
		panic("agentgraph: Descriptor is only defined for schema providers")
	}
	return p.node().toolDescriptor()
}

// RenderChannel returns the channel of Render events for a run, cut off at
// the owning node's terminal event for that run. Only meaningful for render
// providers.
func (p *OutputValueProvider) RenderChannel(runID string) <-chan RenderPayload {
	if p.kind != providerRender {
		panic("agentgraph: RenderChannel is only defined for render providers")
	}
	if p.mergedSources != nil {
		return fanInRender(runID, p.mergedSources)
	}
	return p.node().renderChannel(runID)
}

// fanInRender merges each source's inner render stream in arrival order,
// closing the merged channel once every source has closed its own. Sources
// are drained concurrently, so events of different sources may interleave;
// they are not concatenated source by source.
func fanInRender(runID string, sources []*OutputValueProvider) <-chan RenderPayload {
	out := make(chan RenderPayload, subscriberBuffer)
	remaining := len(sources)
	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		src := src
		go func() {
			for p := range src.RenderChannel(runID) {
				out <- p
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for range done {
			remaining--
			if remaining == 0 {
				close(out)
				return
			}
		}
	}()
	return out
}

// Edge is one entry of a Bind() map: either a single provider, a slice of
// providers forming an array binding, or a literal value.
type Edge struct {
	providers  []*OutputValueProvider
	literal    any
	hasLiteral bool
	isArray    bool
}

// FromProvider builds a scalar edge bound to a single provider.
func FromProvider(p *OutputValueProvider) Edge {
	return Edge{providers: []*OutputValueProvider{p}}
}

// FromProviders builds an array edge bound to multiple providers of the
// same logical source kind.
func FromProviders(ps ...*OutputValueProvider) Edge {
	return Edge{providers: ps, isArray: true}
}

// Literal builds an edge that is satisfied immediately with a constant
// value, never waiting on the event stream.
func Literal(v any) Edge {
	return Edge{literal: v, hasLiteral: true}
}

// MergeRenderStreams merges multiple render providers into a single render
// provider by run id. Used when a sink node must show UI fragments from
// multiple tool nodes.
func MergeRenderStreams(providers ...*OutputValueProvider) *OutputValueProvider {
	if len(providers) == 0 {
		panic("agentgraph: MergeRenderStreams requires at least one provider")
	}
	agent := providers[0].agent
	return &OutputValueProvider{
		kind:          providerRender,
		agent:         agent,
		mergedSources: providers,
	}
}
