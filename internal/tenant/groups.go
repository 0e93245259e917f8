package tenant

import (
	"sort"
	"sync"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/google/uuid"
)

// Groups holds the live group population. Membership is stored as
// tenant ids (weak references); dangling ids are swept against the
// Registry's live set on every load and edit, per spec.md §9.
type Groups struct {
	mu     sync.RWMutex
	groups map[string]*model.Group
}

func NewGroups() *Groups {
	return &Groups{groups: make(map[string]*model.Group)}
}

// Load replaces the in-memory population and sweeps dangling tenant ids
// against live, matching the "filtered on every load" invariant.
func (g *Groups) Load(groups []*model.Group, live map[string]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = make(map[string]*model.Group, len(groups))
	for _, grp := range groups {
		grp.SweepTenants(live)
		g.groups[grp.ID] = grp
	}
}

// Snapshot returns every group for persistence, ordered by name for a
// stable on-disk diff.
func (g *Groups) Snapshot() []*model.Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.Group, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns a live-set view (by id) for access-scope checks.
func (g *Groups) All() map[string]*model.Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*model.Group, len(g.groups))
	for k, v := range g.groups {
		out[k] = v
	}
	return out
}

func (g *Groups) Get(id string) (*model.Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[id]
	return grp, ok
}

// Add creates a group, sweeping its initial membership against live.
func (g *Groups) Add(name, remark string, tenantIDs []string, live map[string]struct{}) *model.Group {
	grp := &model.Group{ID: uuid.New().String(), Name: name, Remark: remark, TenantIDs: tenantIDs}
	grp.SweepTenants(live)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[grp.ID] = grp
	return grp
}

// UpdateMembership replaces a group's tenant membership, swept against live.
func (g *Groups) UpdateMembership(id string, tenantIDs []string, live map[string]struct{}) (*model.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "group not found")
	}
	grp.TenantIDs = tenantIDs
	grp.SweepTenants(live)
	return grp, nil
}

func (g *Groups) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[id]; !ok {
		return apierr.New(apierr.NotFound, "group not found")
	}
	delete(g.groups, id)
	return nil
}
