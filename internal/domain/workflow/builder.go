package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// GuardFunc decides at fire time whether a guarded edge may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder assembles the transition table of one approval chain.
// Level states come from company configuration, so invalid states are collected and
// reported by Build instead of panicking.
type StateMachineBuilder interface {
	// Configure returns the edge set leaving state
	Configure(state State) StateConfiguration

	// ConfigureLevels calls fn once per approval level, in order, with the edge set of PENDING_APPROVAL_Lk
	ConfigureLevels(levels int, fn func(level int, c StateConfiguration))

	// Build snapshots the table into a machine positioned at initialState
	Build(initialState State) (StateMachine, error)
}

// StateConfiguration adds edges leaving one state
type StateConfiguration interface {
	// Permit adds an unconditional edge
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf adds an edge taken only when guard passes. Edges for one trigger are tried in the order added.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type edge struct {
	to    State
	guard GuardFunc
}

// edgeTable maps a source state to its outgoing edges per trigger
type edgeTable map[State]map[Trigger][]edge

func (t edgeTable) clone() edgeTable {
	out := make(edgeTable, len(t))
	for from, byTrigger := range t {
		copied := make(map[Trigger][]edge, len(byTrigger))
		for trigger, edges := range byTrigger {
			copied[trigger] = append([]edge(nil), edges...)
		}
		out[from] = copied
	}
	return out
}

type builder struct {
	table edgeTable
	errs  []error
}

type stateEdges struct {
	b    *builder
	from State
}

type machine struct {
	current State
	table   edgeTable
}

// NewBuilder creates an empty transition table builder
func NewBuilder() StateMachineBuilder {
	return &builder{table: make(edgeTable)}
}

func (b *builder) invalid(format string, args ...interface{}) {
	b.errs = append(b.errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidState}, args...)...))
}

func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		b.invalid("cannot configure %q", state)
	} else if _, ok := b.table[state]; !ok {
		b.table[state] = make(map[Trigger][]edge)
	}
	return &stateEdges{b: b, from: state}
}

func (b *builder) ConfigureLevels(levels int, fn func(level int, c StateConfiguration)) {
	if levels < 1 {
		b.invalid("an approval chain needs at least one level, got %d", levels)
		return
	}
	for k := 1; k <= levels; k++ {
		fn(k, b.Configure(PendingState(k)))
	}
}

func (b *builder) Build(initialState State) (StateMachine, error) {
	if !initialState.IsValid() {
		b.invalid("cannot start in %q", initialState)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return &machine{current: initialState, table: b.table.clone()}, nil
}

func (c *stateEdges) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateEdges) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		c.b.invalid("%s from %s targets %q", trigger, c.from, toState)
		return c
	}
	edges, ok := c.b.table[c.from]
	if !ok {
		// source state was rejected by Configure
		return c
	}
	edges[trigger] = append(edges[trigger], edge{to: toState, guard: guard})
	return c
}

func (m *machine) State() State {
	return m.current
}

// CanFire only checks that an edge exists; guards need a context and run in Fire
func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.table[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	edges := m.table[m.current][trigger]
	if len(edges) == 0 {
		return fmt.Errorf("%w: %s is not allowed in %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s", ErrGuardFailed, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	byTrigger := m.table[m.current]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger, edges := range byTrigger {
		if len(edges) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
