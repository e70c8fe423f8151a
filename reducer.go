package agentgraph

// reducerEntry is one accepted-or-rejected delivery folded by the input
// reducer.
type reducerEntry struct {
	run         string
	targetField string
	isArray     bool
	value       any
}

// accumulator is the fold target: {run, input, count}, plus a record of
// which fields were stored as scalars. Duplicate scalars are rejected by
// the field's presence in input.
type accumulator struct {
	run        string
	runSet     bool
	input      map[string]any
	count      int
	scalarSeen map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		input:      make(map[string]any),
		scalarSeen: make(map[string]bool),
	}
}

// accept folds one entry into the accumulator. It is the Go rendition of
// the input reducer contract: drop undefined values, enforce run stability,
// enforce the scalar/array discipline, and increment count on every
// accepted entry.
func (a *accumulator) accept(e reducerEntry) error {
	if isUndefined(e.value) {
		return nil
	}
	if a.runSet && e.run != "" && a.run != e.run {
		return ErrRunMismatch
	}
	if !a.runSet && e.run != "" {
		a.run = e.run
		a.runSet = true
	}

	existing, present := a.input[e.targetField]
	switch {
	case !present:
		if e.isArray {
			a.input[e.targetField] = []any{e.value}
		} else {
			a.input[e.targetField] = e.value
			a.scalarSeen[e.targetField] = true
		}
	case present && !e.isArray:
		return ErrDuplicateScalar
	case present && e.isArray:
		a.input[e.targetField] = append(existing.([]any), e.value)
	}
	a.count++
	return nil
}

// snapshot returns a shallow copy of the accumulated input, safe to hand to
// OnInputEvent without aliasing future mutation.
func (a *accumulator) snapshot() map[string]any {
	out := make(map[string]any, len(a.input))
	for k, v := range a.input {
		if arr, ok := v.([]any); ok {
			cp := make([]any, len(arr))
			copy(cp, arr)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
