package clusterctx

import (
	"fmt"
	"strings"
	"sync"
)

// Descriptor holds what is needed to reach a cluster.
type Descriptor struct {
	// Kubeconfig is the kubeconfig file; empty means the default loading rules.
	Kubeconfig string `json:"kubeconfig,omitempty" yaml:"kubeconfig,omitempty"`
	// KubeContext selects a context inside the kubeconfig.
	KubeContext string `json:"kube_context,omitempty" yaml:"kube_context,omitempty"`
	// Server overrides the API server URL.
	Server string `json:"server,omitempty" yaml:"server,omitempty"`
	// InCluster uses the pod service account.
	InCluster bool `json:"in_cluster,omitempty" yaml:"in_cluster,omitempty"`
}

// Context is one target cluster.
type Context struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Descriptor  Descriptor `json:"descriptor"`
	Active      bool       `json:"active"`
}

// Name returns the display name, falling back to the ID.
func (c Context) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}

// Selector is the cluster view a session works with.
type Selector interface {
	ListClusters() []Context
	ActiveCluster() (Context, error)
	SwitchTo(clusterID string) (Context, error)
	ResolveTarget(hint string) (string, error)
}

// Manager holds the known clusters in registration order and the default
// active cluster.
type Manager struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]Context
	active string
}

var _ Selector = (*Manager)(nil)

// NewManager registers contexts in order. The first context flagged Active
// becomes the default; otherwise the first registered one does.
func NewManager(contexts ...Context) (*Manager, error) {
	m := &Manager{byID: make(map[string]Context)}
	for _, c := range contexts {
		if err := m.Register(c); err != nil {
			return nil, err
		}
	}
	for _, c := range contexts {
		if c.Active {
			m.active = c.ID
			break
		}
	}
	return m, nil
}

// Register adds a cluster. The first cluster registered becomes active.
func (m *Manager) Register(c Context) error {
	if c.ID == "" {
		return fmt.Errorf("register cluster: empty id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[c.ID]; exists {
		return &ClusterError{Cluster: c.ID, Err: ErrDuplicateCluster}
	}
	c.Active = false
	m.byID[c.ID] = c
	m.order = append(m.order, c.ID)
	if m.active == "" {
		m.active = c.ID
	}
	return nil
}

// ListClusters returns every cluster in registration order, with Active set
// on the default cluster only.
func (m *Manager) ListClusters() []Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(m.active)
}

func (m *Manager) listLocked(active string) []Context {
	out := make([]Context, 0, len(m.order))
	for _, id := range m.order {
		c := m.byID[id]
		c.Active = id == active
		out = append(out, c)
	}
	return out
}

// ActiveCluster returns the default active cluster.
func (m *Manager) ActiveCluster() (Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(m.active)
}

func (m *Manager) getLocked(active string) (Context, error) {
	if len(m.order) == 0 {
		return Context{}, ErrNoActiveCluster
	}
	c, ok := m.byID[active]
	if !ok {
		c = m.byID[m.active]
	}
	c.Active = true
	return c, nil
}

// SwitchTo changes the default active cluster.
func (m *Manager) SwitchTo(clusterID string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.lookupLocked(clusterID)
	if err != nil {
		return Context{}, err
	}
	m.active = id
	c := m.byID[id]
	c.Active = true
	return c, nil
}

// ResolveTarget returns the cluster named by hint, or the default active
// cluster when hint is empty.
func (m *Manager) ResolveTarget(hint string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(hint, m.active)
}

func (m *Manager) resolveLocked(hint, active string) (string, error) {
	if strings.TrimSpace(hint) != "" {
		return m.lookupLocked(hint)
	}
	c, err := m.getLocked(active)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Get returns the cluster with the given ID or display name.
func (m *Manager) Get(nameOrID string) (Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, err := m.lookupLocked(nameOrID)
	if err != nil {
		return Context{}, err
	}
	c := m.byID[id]
	c.Active = id == m.active
	return c, nil
}

// Names returns the IDs and display names of all clusters, lowercased,
// for matching against free text.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, 2*len(m.order))
	for _, id := range m.order {
		names = append(names, strings.ToLower(id))
		if dn := m.byID[id].DisplayName; dn != "" && !strings.EqualFold(dn, id) {
			names = append(names, strings.ToLower(dn))
		}
	}
	return names
}

// lookupLocked matches an ID exactly, then ID or display name case-insensitively.
func (m *Manager) lookupLocked(nameOrID string) (string, error) {
	key := strings.TrimSpace(nameOrID)
	if _, ok := m.byID[key]; ok {
		return key, nil
	}
	for _, id := range m.order {
		if strings.EqualFold(id, key) || strings.EqualFold(m.byID[id].DisplayName, key) {
			return id, nil
		}
	}
	return "", &ClusterError{Cluster: key, Err: ErrUnknownCluster}
}

// NewView returns a per-session view starting at the current default cluster.
func (m *Manager) NewView() *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &View{manager: m, active: m.active}
}
