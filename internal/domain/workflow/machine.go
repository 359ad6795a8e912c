package workflow

import "fmt"

// Machine tracks an expense's current lifecycle state and validates
// transitions against a configured transition table.
type Machine struct {
	current     State
	transitions map[State]map[Trigger]State
}

// Builder accumulates a transition table for Machine instances.
type Builder struct {
	transitions map[State]map[Trigger]State
}

// NewBuilder creates an empty transition-table builder.
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger]State)}
}

// Permit allows trigger to move from state to a target state.
func (b *Builder) Permit(from State, trigger Trigger, to State) *Builder {
	if !from.IsValid() || !to.IsValid() {
		panic(fmt.Sprintf("workflow: invalid transition %s -[%s]-> %s", from, trigger, to))
	}
	row, ok := b.transitions[from]
	if !ok {
		row = make(map[Trigger]State)
		b.transitions[from] = row
	}
	row[trigger] = to
	return b
}

// Build creates a machine starting in initial. The transition table is
// copied so later builder mutation cannot affect built machines.
func (b *Builder) Build(initial State) (*Machine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initial)
	}
	table := make(map[State]map[Trigger]State, len(b.transitions))
	for from, row := range b.transitions {
		rowCopy := make(map[Trigger]State, len(row))
		for trig, to := range row {
			rowCopy[trig] = to
		}
		table[from] = rowCopy
	}
	return &Machine{current: initial, transitions: table}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// CanFire reports whether trigger is permitted in the current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := m.transitions[m.current][trigger]
	return ok
}

// Fire executes the trigger, moving to the configured target state.
func (m *Machine) Fire(trigger Trigger) error {
	to, ok := m.transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}

// PermittedTriggers returns the triggers that can fire in the current state.
func (m *Machine) PermittedTriggers() []Trigger {
	row := m.transitions[m.current]
	triggers := make([]Trigger, 0, len(row))
	for trig := range row {
		triggers = append(triggers, trig)
	}
	return triggers
}
