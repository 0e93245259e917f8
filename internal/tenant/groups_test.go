package tenant

import (
	"testing"

	"github.com/disconnec/FeiSync/internal/model"
)

func TestAddSweepsMembershipAgainstLive(t *testing.T) {
	g := NewGroups()
	live := map[string]struct{}{"t1": {}}

	grp := g.Add("ops", "", []string{"t1", "dangling"}, live)
	if len(grp.TenantIDs) != 1 || grp.TenantIDs[0] != "t1" {
		t.Fatalf("expected only t1 to survive the sweep, got %v", grp.TenantIDs)
	}
}

func TestUpdateMembershipSweepsNewSet(t *testing.T) {
	g := NewGroups()
	live := map[string]struct{}{"t1": {}, "t2": {}}
	grp := g.Add("ops", "", []string{"t1"}, live)

	updated, err := g.UpdateMembership(grp.ID, []string{"t2", "gone"}, live)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.TenantIDs) != 1 || updated.TenantIDs[0] != "t2" {
		t.Fatalf("expected only t2 to survive, got %v", updated.TenantIDs)
	}
}

func TestLoadSweepsDanglingMembership(t *testing.T) {
	g := NewGroups()
	live := map[string]struct{}{"t1": {}}
	groupsToLoad := []*model.Group{{ID: "g1", TenantIDs: []string{"t1", "t2"}}}
	g.Load(groupsToLoad, live)

	grp, ok := g.Get("g1")
	if !ok {
		t.Fatalf("expected g1 to be loaded")
	}
	if len(grp.TenantIDs) != 1 || grp.TenantIDs[0] != "t1" {
		t.Fatalf("expected dangling t2 swept on load, got %v", grp.TenantIDs)
	}
}

func TestRemoveUnknownGroupErrors(t *testing.T) {
	g := NewGroups()
	if err := g.Remove("missing"); err == nil {
		t.Fatalf("expected not_found removing an unknown group")
	}
}
