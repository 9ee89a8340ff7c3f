package agent

import "fmt"

// Registry holds exactly one implementation per agent ID.
type Registry struct {
	agents map[ID]SpecialistAgent
}

func NewRegistry(agents ...SpecialistAgent) (*Registry, error) {
	m := make(map[ID]SpecialistAgent, len(agents))
	for _, a := range agents {
		id, ok := ParseID(string(a.ID()))
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, a.ID())
		}
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("agent %s registered twice", id)
		}
		m[id] = a
	}
	for _, id := range IDs {
		if _, ok := m[id]; !ok {
			return nil, fmt.Errorf("agent %s not registered", id)
		}
	}
	return &Registry{agents: m}, nil
}

func (r *Registry) Get(id ID) (SpecialistAgent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	return a, nil
}

// Descriptors lists the agents in IDs order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(IDs))
	for _, id := range IDs {
		out = append(out, r.agents[id].Descriptor())
	}
	return out
}
