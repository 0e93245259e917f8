package state

import (
	"context"
	"sync"

	"github.com/disconnec/FeiSync/internal/access"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
	"golang.org/x/sync/errgroup"
)

// rootListingFanout bounds how many tenants' root listings are fetched
// concurrently during an aggregated list_root_entries call, per the
// "prefer a worker pool" note in spec.md §9.
const rootListingFanout = 5

func (s *State) cmdListRootEntries(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	tenantID, _ := stringField(fields, "tenant_id")
	aggregate := boolField(fields, "aggregate", false)

	if aggregate && tenantID == "" {
		return s.aggregateRootEntries(ctx, scope)
	}

	selected := tenantID
	if selected == "" {
		t, err := s.pickTenantForScope(scope, true)
		if err != nil {
			return nil, err
		}
		selected = t.ID
	} else if err := access.AssertForTenant(scope, selected, s.GroupsByID()); err != nil {
		return nil, err
	}

	client, err := s.clientFactory(ctx, selected)
	if err != nil {
		return nil, err
	}
	root, err := client.RootFolder(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "root_folder meta", err)
	}
	s.Index.Register(root.Token, selected)
	entries, err := s.listFolderRegistered(ctx, client, selected, root.Token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"root_token": root.Token, "entries": entries}, nil
}

// aggregateRootEntries fans out a root listing across every active tenant
// visible to scope, bounded to rootListingFanout concurrent requests,
// mirroring the original list_root_entries aggregate mode.
func (s *State) aggregateRootEntries(ctx context.Context, scope access.Scope) (any, error) {
	var tenants []*model.Tenant
	for _, t := range s.tenantsForScope(scope) {
		if t.Active {
			tenants = append(tenants, t)
		}
	}
	if len(tenants) == 0 {
		return nil, apierr.New(apierr.NotFound, "no active tenants available")
	}

	results := make(map[string]any, len(tenants))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rootListingFanout)
	for _, t := range tenants {
		g.Go(func() error {
			client, err := s.clientFactory(gctx, t.ID)
			if err != nil {
				return err
			}
			root, err := client.RootFolder(gctx)
			if err != nil {
				return apierr.Wrap(apierr.Upstream, "root_folder meta", err)
			}
			s.Index.Register(root.Token, t.ID)
			entries, err := s.listFolderRegistered(gctx, client, t.ID, root.Token)
			if err != nil {
				return err
			}
			mu.Lock()
			results[t.ID] = map[string]any{"root_token": root.Token, "entries": entries}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return map[string]any{"aggregate": true, "entries": results}, nil
}

func (s *State) cmdListFolderEntries(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	folderToken, _ := stringField(fields, "folder_token")
	tenantID, err := access.AssertForToken(scope, folderToken, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	client, err := s.clientFactory(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.listFolderRegistered(ctx, client, tenantID, folderToken)
}

// listFolderRegistered lists one folder's immediate children and
// registers every returned token under tenantID, so a later move/delete/
// download against any of them can resolve through the ResourceIndex.
func (s *State) listFolderRegistered(ctx context.Context, client *cloudapi.Client, tenantID, folderToken string) ([]cloudapi.FileEntry, error) {
	resp, err := client.ListFolder(ctx, folderToken, "")
	if err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "list_folder", err)
	}
	tokens := make([]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		tokens = append(tokens, f.Token)
	}
	s.Index.RegisterMany(tokens, tenantID)
	return resp.Files, nil
}

// tenantsForScope returns every tenant scope may act on: all of them for
// Admin, only group members for a group scope.
func (s *State) tenantsForScope(scope access.Scope) []*model.Tenant {
	all := s.Tenants.Snapshot()
	if scope.IsAdmin() {
		return all
	}
	g, ok := s.GroupsByID()[scope.GroupID]
	if !ok {
		return nil
	}
	out := make([]*model.Tenant, 0, len(all))
	for _, t := range all {
		if g.Contains(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// pickTenantForScope implements the same best-active selection
// Tenants.PickBestActive uses, narrowed to the tenants scope can see.
func (s *State) pickTenantForScope(scope access.Scope, writable bool) (*model.Tenant, error) {
	var best *model.Tenant
	for _, t := range s.tenantsForScope(scope) {
		if !t.Active {
			continue
		}
		if writable && t.Permission == model.PermissionReadOnly {
			continue
		}
		if best == nil || t.Order < best.Order || (t.Order == best.Order && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, apierr.New(apierr.NotFound, "no active tenant available")
	}
	return best, nil
}
