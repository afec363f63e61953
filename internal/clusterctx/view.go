package clusterctx

import "sync"

// View is one session's perspective on the shared Manager. Switching a
// view's cluster does not affect the Manager or any other view.
type View struct {
	manager *Manager

	mu     sync.Mutex
	active string
}

var _ Selector = (*View)(nil)

// ListClusters returns every cluster with Active set on the view's cluster.
func (v *View) ListClusters() []Context {
	active := v.activeID()

	v.manager.mu.RLock()
	defer v.manager.mu.RUnlock()
	if _, ok := v.manager.byID[active]; !ok {
		active = v.manager.active
	}
	return v.manager.listLocked(active)
}

// ActiveCluster returns the view's active cluster.
func (v *View) ActiveCluster() (Context, error) {
	active := v.activeID()

	v.manager.mu.RLock()
	defer v.manager.mu.RUnlock()
	return v.manager.getLocked(active)
}

// SwitchTo changes the view's active cluster.
func (v *View) SwitchTo(clusterID string) (Context, error) {
	v.manager.mu.RLock()
	id, err := v.manager.lookupLocked(clusterID)
	var c Context
	if err == nil {
		c = v.manager.byID[id]
	}
	v.manager.mu.RUnlock()
	if err != nil {
		return Context{}, err
	}

	v.mu.Lock()
	v.active = id
	v.mu.Unlock()

	c.Active = true
	return c, nil
}

// ResolveTarget returns the cluster named by hint, or the view's active cluster.
func (v *View) ResolveTarget(hint string) (string, error) {
	active := v.activeID()

	v.manager.mu.RLock()
	defer v.manager.mu.RUnlock()
	return v.manager.resolveLocked(hint, active)
}

// Names returns the matchable cluster names.
func (v *View) Names() []string {
	return v.manager.Names()
}

// Get returns a cluster by ID or display name, with Active relative to the view.
func (v *View) Get(nameOrID string) (Context, error) {
	c, err := v.manager.Get(nameOrID)
	if err != nil {
		return Context{}, err
	}
	c.Active = c.ID == v.activeID()
	return c, nil
}

func (v *View) activeID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}
