package capability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Snapshot is one immutable version of the catalogue.
type Snapshot struct {
	generation uint64
	byRef      map[Ref]Capability
	ordered    []Capability
	schemas    map[Ref]*paramSchema
}

func newSnapshot(generation uint64, caps []Capability) (*Snapshot, error) {
	s := &Snapshot{
		generation: generation,
		byRef:      make(map[Ref]Capability, len(caps)),
		ordered:    make([]Capability, 0, len(caps)),
		schemas:    make(map[Ref]*paramSchema, len(caps)),
	}
	for _, c := range caps {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		ref := c.Ref()
		if _, exists := s.byRef[ref]; exists {
			return nil, &RefError{Ref: ref, Err: ErrDuplicateCapability}
		}
		schema, err := compileParamSchema(c)
		if err != nil {
			return nil, &RefError{Ref: ref, Err: err}
		}
		cp := c.clone()
		s.byRef[ref] = cp
		s.ordered = append(s.ordered, cp)
		s.schemas[ref] = schema
	}
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return s.ordered[i].Ref().Less(s.ordered[j].Ref())
	})
	return s, nil
}

// Generation identifies the snapshot; it increases with every change.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Len returns the number of capabilities in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// Lookup returns the capability for (agentID, function).
func (s *Snapshot) Lookup(agentID, function string) (Capability, error) {
	ref := Ref{AgentID: agentID, Function: function}
	c, ok := s.byRef[ref]
	if !ok {
		return Capability{}, &RefError{Ref: ref, Err: ErrUnknownCapability}
	}
	return c.clone(), nil
}

// Contains reports whether ref is registered.
func (s *Snapshot) Contains(ref Ref) bool {
	_, ok := s.byRef[ref]
	return ok
}

// List returns all capabilities ordered by (agent, function).
func (s *Snapshot) List() []Capability {
	out := make([]Capability, len(s.ordered))
	for i, c := range s.ordered {
		out[i] = c.clone()
	}
	return out
}

// Agents returns the distinct agent IDs in lexical order.
func (s *Snapshot) Agents() []string {
	var agents []string
	for _, c := range s.ordered {
		if len(agents) == 0 || agents[len(agents)-1] != c.AgentID {
			agents = append(agents, c.AgentID)
		}
	}
	return agents
}

// ValidateParams checks params against the capability's parameter schema.
func (s *Snapshot) ValidateParams(ref Ref, params map[string]any) error {
	schema, ok := s.schemas[ref]
	if !ok {
		return &RefError{Ref: ref, Err: ErrUnknownCapability}
	}
	if err := schema.validate(params); err != nil {
		return &RefError{Ref: ref, Err: err}
	}
	return nil
}

// Registry is the shared, read-mostly capability catalogue.
type Registry struct {
	// mu serializes writers; readers only load the current snapshot.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty, _ := newSnapshot(0, nil)
	r.current.Store(empty)
	return r
}

// NewRegistryFrom builds a registry from caps, failing on the first invalid or
// duplicate entry.
func NewRegistryFrom(caps []Capability) (*Registry, error) {
	r := NewRegistry()
	if err := r.Reload(caps); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns the current snapshot. Callers that perform several reads
// that must agree with each other should hold on to one snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Generation returns the current snapshot generation.
func (r *Registry) Generation() uint64 {
	return r.Snapshot().Generation()
}

// Register adds one capability.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if cur.Contains(c.Ref()) {
		return &RefError{Ref: c.Ref(), Err: ErrDuplicateCapability}
	}
	next, err := newSnapshot(cur.generation+1, append(cur.List(), c))
	if err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

// Reload replaces the whole catalogue. On error the current snapshot is kept.
func (r *Registry) Reload(caps []Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := newSnapshot(r.current.Load().generation+1, caps)
	if err != nil {
		return fmt.Errorf("reload capabilities: %w", err)
	}
	r.current.Store(next)
	return nil
}

// Lookup returns the capability for (agentID, function).
func (r *Registry) Lookup(agentID, function string) (Capability, error) {
	return r.Snapshot().Lookup(agentID, function)
}

// List returns all capabilities ordered by (agent, function).
func (r *Registry) List() []Capability {
	return r.Snapshot().List()
}

// FindCandidates ranks capabilities against a free-text hint.
func (r *Registry) FindCandidates(hint string) []Capability {
	return r.Snapshot().FindCandidates(hint)
}

// ValidateParams checks params against the capability's schema.
func (r *Registry) ValidateParams(ref Ref, params map[string]any) error {
	return r.Snapshot().ValidateParams(ref, params)
}
