package model

import "slices"

// StatusMachine is a closed set of states with an explicit table of allowed
// transitions. A machine value is immutable after construction.
type StatusMachine struct {
	Name        string
	Initial     string
	terminal    []string
	transitions map[string][]string
}

// NewStatusMachine builds a machine. Every state mentioned as a key or a
// destination in transitions, plus the terminal states, is a member.
func NewStatusMachine(name, initial string, terminal []string, transitions map[string][]string) *StatusMachine {
	return &StatusMachine{
		Name:        name,
		Initial:     initial,
		terminal:    terminal,
		transitions: transitions,
	}
}

// Valid reports whether s is a member of the machine.
func (m *StatusMachine) Valid(s string) bool {
	if s == m.Initial || slices.Contains(m.terminal, s) {
		return true
	}
	for from, to := range m.transitions {
		if from == s || slices.Contains(to, s) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a terminal state.
func (m *StatusMachine) IsTerminal(s string) bool {
	return slices.Contains(m.terminal, s)
}

// Terminal returns a copy of the terminal states.
func (m *StatusMachine) Terminal() []string {
	return slices.Clone(m.terminal)
}

// CanTransition reports whether the table allows from → to.
func (m *StatusMachine) CanTransition(from, to string) bool {
	return slices.Contains(m.transitions[from], to)
}

// Next returns the states reachable from s.
func (m *StatusMachine) Next(s string) []string {
	return slices.Clone(m.transitions[s])
}
