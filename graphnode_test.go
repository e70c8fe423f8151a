package agentgraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constNode emits a fixed output map the moment it fires.
func constNode(id string, output Output) AgentNode {
	outSchema := make(map[string]FieldSchema, len(output))
	for k := range output {
		outSchema[k] = FieldSchema{}
	}
	return NewFuncNode(FuncNodeSpec{
		ID: id, Name: id, Version: "v1", Output: outSchema,
		Run: func(ctx *Context, input Input) <-chan Yield {
			ch := make(chan Yield, 1)
			ch <- Yield{Output: output}
			close(ch)
			return ch
		},
	})
}

func awaitResult(t *testing.T, res <-chan Result) Result {
	t.Helper()
	select {
	case r := <-res:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run result")
		return Result{}
	}
}

// Scenario A — straight pipe.
func TestStraightPipe(t *testing.T) {
	agent := NewGraphAgent()
	a, err := agent.AddNode("A", constNode("A", Output{"x": 1}), nil)
	require.NoError(t, err)

	b, err := agent.AddNode("B", NewSinkNode("B", "v1", map[string]FieldSchema{"v": {}}), nil)
	require.NoError(t, err)
	require.NoError(t, b.Bind(map[string]Edge{"v": FromProvider(a.Output("x"))}))

	run, resCh := a.Invoke(context.Background(), Input{})
	res := awaitResult(t, resCh)
	require.NoError(t, res.Err)
	assert.EqualValues(t, 1, res.Output["x"])

	v, err := b.Output("v").Select(run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

// Scenario B — array binding: two producers feed one array-bound field, in
// publication order.
func TestArrayBinding(t *testing.T) {
	agent := NewGraphAgent()
	a1, err := agent.AddNode("A1", constNode("A1", Output{"y": "p"}), nil)
	require.NoError(t, err)
	a2, err := agent.AddNode("A2", constNode("A2", Output{"y": "q"}), nil)
	require.NoError(t, err)

	c, err := agent.AddNode("C", NewSinkNode("C", "v1", map[string]FieldSchema{"items": {Array: true}}), nil)
	require.NoError(t, err)
	require.NoError(t, c.Bind(map[string]Edge{
		"items": FromProviders(a1.Output("y"), a2.Output("y")),
	}))

	run, resCh := a1.Invoke(context.Background(), Input{})
	_ = awaitResult(t, resCh)
	_, resCh2 := a2.Invoke(context.Background(), Input{}, WithRun(run.ID))
	_ = awaitResult(t, resCh2)

	v, err := c.Output("items").Select(run.ID)
	require.NoError(t, err)
	items, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "p", items[0])
	assert.Equal(t, "q", items[1])
}

// Scenario D — duplicate scalar: two output sources mapped to the same
// scalar target field must surface a protocol violation, not a hang.
func TestDuplicateScalarIsProtocolViolation(t *testing.T) {
	agent := NewGraphAgent()
	a1, err := agent.AddNode("A1", constNode("A1", Output{"y": "p"}), nil)
	require.NoError(t, err)
	a2, err := agent.AddNode("A2", constNode("A2", Output{"y": "q"}), nil)
	require.NoError(t, err)

	c, err := agent.AddNode("C", NewSinkNode("C", "v1", map[string]FieldSchema{"v": {}}), nil)
	require.NoError(t, err)
	require.NoError(t, c.Bind(map[string]Edge{
		"v": FromProvider(a1.Output("y")),
	}))
	// Manually add a second mapping to the same scalar field to trigger the
	// violation without exposing an array/scalar mismatch through Bind twice.
	c.outputMappings = append(c.outputMappings, outputMapping{targetField: "v", sourceField: "y", producer: "A2", isArray: false})
	c.outputSources["A2"] = true
	c.totalExpected = len(c.outputSources) + len(c.schemaSources) + len(c.renderSources)

	run, resCh := a1.Invoke(context.Background(), Input{})
	_ = awaitResult(t, resCh)
	_, resCh2 := a2.Invoke(context.Background(), Input{}, WithRun(run.ID))
	_ = awaitResult(t, resCh2)

	// The sink has already republished the first value, so the violation
	// surfaces on C's terminal event rather than through Select.
	cRun := c.getOrCreateRun(run.ID)
	deadline := time.Now().Add(time.Second)
	for {
		cRun.mu.Lock()
		published := cRun.terminalPublished
		terminalErr := cRun.terminalErr
		cRun.mu.Unlock()
		if published {
			assert.ErrorIs(t, terminalErr, ErrDuplicateScalar)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("C never reached a terminal state")
		}
		time.Sleep(time.Millisecond)
	}
}

// Scenario E — partial input via OnInputEvent: the sink sees each field as
// it arrives and emits without waiting for a field that never comes.
func TestPartialInputViaOnInputEvent(t *testing.T) {
	agent := NewGraphAgent()
	md, err := agent.AddNode("markdownSrc", constNode("markdownSrc", Output{"markdown": "hello"}), nil)
	require.NoError(t, err)

	user, err := agent.AddNode("User", NewSinkNode("User", "v1", map[string]FieldSchema{
		"markdown": {}, "ui": {},
	}), nil)
	require.NoError(t, err)

	// ui is declared as a possible input but never bound: User must still
	// complete using only markdown.
	require.NoError(t, user.Bind(map[string]Edge{
		"markdown": FromProvider(md.Output("markdown")),
	}))

	run, resCh := md.Invoke(context.Background(), Input{})
	res := awaitResult(t, resCh)
	require.NoError(t, res.Err)

	v, err := user.Output("markdown").Select(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

// Scenario C — skip propagation: a schema-bound tool that is never actually
// invoked receives a synthetic RunSkipped no later than the consumer's
// terminal event.
func TestSchemaSkipPropagation(t *testing.T) {
	agent := NewGraphAgent()
	w, err := agent.AddNode("W", NewFuncNode(FuncNodeSpec{
		ID: "W", Name: "tool-w", Version: "v1",
		Output: map[string]FieldSchema{"result": {}},
		Run: func(ctx *Context, input Input) <-chan Yield {
			ch := make(chan Yield, 1)
			ch <- Yield{Output: Output{"result": "never reached"}}
			close(ch)
			return ch
		},
	}), nil)
	require.NoError(t, err)

	chat, err := agent.AddNode("Chat", NewSinkNode("Chat", "v1", map[string]FieldSchema{"tools": {Array: true}}), nil)
	require.NoError(t, err)
	require.NoError(t, chat.Bind(map[string]Edge{
		"tools": FromProviders(w.Schema()),
	}))

	run, resCh := chat.Invoke(context.Background(), Input{})
	res := awaitResult(t, resCh)
	require.NoError(t, res.Err)

	wRun := w.getOrCreateRun(run.ID)
	deadline := time.Now().Add(time.Second)
	for {
		wRun.mu.Lock()
		published := wRun.terminalPublished
		skipped := wRun.terminalSkipped
		wRun.mu.Unlock()
		if published {
			assert.True(t, skipped, "W should have been skipped, not run")
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("W never received a terminal event")
		}
		time.Sleep(time.Millisecond)
	}
}

// Invariant 6, no-value case: the only producer completes without emitting
// the bound field, so nothing is delivered and the node emits RunSkipped.
func TestUpstreamWithoutValuePropagatesSkip(t *testing.T) {
	agent := NewGraphAgent()
	upstream, err := agent.AddNode("Up", NewFuncNode(FuncNodeSpec{
		ID: "Up", Name: "Up", Version: "v1",
		Output: map[string]FieldSchema{"x": {}},
		Run: func(ctx *Context, input Input) <-chan Yield {
			ch := make(chan Yield)
			close(ch) // completes with no output at all; downstream field never arrives
			return ch
		},
	}), nil)
	require.NoError(t, err)

	down, err := agent.AddNode("Down", NewSinkNode("Down", "v1", map[string]FieldSchema{"x": {}}), nil)
	require.NoError(t, err)
	require.NoError(t, down.Bind(map[string]Edge{"x": FromProvider(upstream.Output("x"))}))

	run, resCh := upstream.Invoke(context.Background(), Input{})
	_ = awaitResult(t, resCh)

	downRun := down.getOrCreateRun(run.ID)
	deadline := time.Now().Add(time.Second)
	for {
		downRun.mu.Lock()
		published := downRun.terminalPublished
		skipped := downRun.terminalSkipped
		downRun.mu.Unlock()
		if published {
			assert.True(t, skipped)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Down never reached a terminal state")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInputReducerRejectsDuplicateScalar(t *testing.T) {
	acc := newAccumulator()
	require.NoError(t, acc.accept(reducerEntry{run: "r1", targetField: "v", value: 1}))
	err := acc.accept(reducerEntry{run: "r1", targetField: "v", value: 2})
	assert.ErrorIs(t, err, ErrDuplicateScalar)
}

func TestInputReducerRejectsRunMismatch(t *testing.T) {
	acc := newAccumulator()
	require.NoError(t, acc.accept(reducerEntry{run: "r1", targetField: "v", value: 1}))
	err := acc.accept(reducerEntry{run: "r2", targetField: "w", value: 2})
	assert.ErrorIs(t, err, ErrRunMismatch)
}

func TestInputReducerDropsUndefined(t *testing.T) {
	acc := newAccumulator()
	require.NoError(t, acc.accept(reducerEntry{run: "r1", targetField: "v", value: nil}))
	assert.Equal(t, 0, acc.count)
}

// Scenario F — streaming LLM: Execute yields multiple partial outputs
// before closing, each one republished as its own Output event and merged
// into the final collected output.
func TestStreamingExecuteYieldsMultiplePartials(t *testing.T) {
	agent := NewGraphAgent()
	stream, err := agent.AddNode("Stream", NewFuncNode(FuncNodeSpec{
		ID: "Stream", Name: "Stream", Version: "v1",
		Output: map[string]FieldSchema{"delta": {}, "text": {}},
		Run: func(ctx *Context, input Input) <-chan Yield {
			ch := make(chan Yield)
			go func() {
				defer close(ch)
				ch <- Yield{Output: Output{"delta": "Hel"}}
				ch <- Yield{Output: Output{"delta": "lo"}}
				ch <- Yield{Output: Output{"text": "Hello"}}
			}()
			return ch
		},
	}), nil)
	require.NoError(t, err)

	var deltas []string
	var mu sync.Mutex
	unsub, evCh := agent.Stream().Subscribe()
	defer agent.Stream().Unsubscribe(unsub)
	done := make(chan struct{})
	go func() {
		for e := range evCh {
			if e.Type == EventOutput && e.Node == "Stream" {
				if d, ok := e.Output["delta"]; ok {
					mu.Lock()
					deltas = append(deltas, d.(string))
					mu.Unlock()
				}
			}
			if e.Type == EventRunCompleted && e.Node == "Stream" {
				close(done)
				return
			}
		}
	}()

	run, resCh := stream.Invoke(context.Background(), Input{})
	res := awaitResult(t, resCh)
	require.NoError(t, res.Err)
	assert.Equal(t, "Hello", res.Output["text"])

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("never saw RunCompleted for Stream")
	}
	mu.Lock()
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	mu.Unlock()
	_ = run
}

func TestInputReducerArrayAppends(t *testing.T) {
	acc := newAccumulator()
	require.NoError(t, acc.accept(reducerEntry{run: "r1", targetField: "items", isArray: true, value: "a"}))
	require.NoError(t, acc.accept(reducerEntry{run: "r1", targetField: "items", isArray: true, value: "b"}))
	assert.Equal(t, []any{"a", "b"}, acc.input["items"])
	assert.Equal(t, 2, acc.count)
}
