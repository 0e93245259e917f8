// Package tenant implements the tenant population's CRUD lifecycle,
// token refresh, and the pick_best_active selection algorithm described
// in spec.md §4.1.
package tenant

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry holds the live tenant population under a single
// reader-writer lock, matching the "one long-lived state object" design
// note: reads never hold the lock across an outbound HTTP call.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*model.Tenant
}

func New() *Registry {
	return &Registry{tenants: make(map[string]*model.Tenant)}
}

// Load replaces the in-memory population wholesale, used at startup.
func (r *Registry) Load(tenants []*model.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = make(map[string]*model.Tenant, len(tenants))
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
}

// Snapshot returns every tenant, for persistence.
func (r *Registry) Snapshot() []*model.Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Get returns the tenant for id, if it exists.
func (r *Registry) Get(id string) (*model.Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	return t, ok
}

// LiveIDs returns the set of tenant ids currently known, used to sweep
// dangling group membership on load/edit.
func (r *Registry) LiveIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{}, len(r.tenants))
	for id := range r.tenants {
		out[id] = struct{}{}
	}
	return out
}

// Add creates a tenant, assigns order = count+1, and fetches its first
// token before returning.
func (r *Registry) Add(ctx context.Context, fetch TokenFetcher, name, appID, appSecret string, platform model.Platform, permission model.AccessPermission) (*model.Tenant, error) {
	r.mu.Lock()
	order := len(r.tenants) + 1
	t := &model.Tenant{
		ID:         uuid.New().String(),
		Name:       name,
		AppID:      appID,
		AppSecret:  appSecret,
		Platform:   platform,
		Active:     true,
		Permission: permission,
		Order:      order,
	}
	r.tenants[t.ID] = t
	r.mu.Unlock()

	if err := r.refreshLocked(ctx, fetch, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateMeta patches the display/credential fields of a tenant. A
// change to platform, app id, or app secret forces an immediate token
// refresh, since the cached token can no longer be trusted to match the
// new identity.
func (r *Registry) UpdateMeta(ctx context.Context, fetch TokenFetcher, id string, name *string, appID, appSecret *string, platform *model.Platform, permission *model.AccessPermission, active *bool) (*model.Tenant, error) {
	r.mu.Lock()
	t, ok := r.tenants[id]
	if !ok {
		r.mu.Unlock()
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	forceRefresh := false
	if name != nil {
		t.Name = *name
	}
	if appID != nil && *appID != t.AppID {
		t.AppID = *appID
		forceRefresh = true
	}
	if appSecret != nil && *appSecret != t.AppSecret {
		t.AppSecret = *appSecret
		forceRefresh = true
	}
	if platform != nil && *platform != t.Platform {
		t.Platform = *platform
		forceRefresh = true
	}
	if permission != nil {
		t.Permission = *permission
	}
	if active != nil {
		t.Active = *active
	}
	r.mu.Unlock()

	if forceRefresh {
		if err := r.refreshLocked(ctx, fetch, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Remove deletes a tenant outright.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[id]; !ok {
		return apierr.New(apierr.NotFound, "tenant not found")
	}
	delete(r.tenants, id)
	return nil
}

// Reorder assigns Order = index+1 for each id in the given order.
func (r *Registry) Reorder(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.tenants[id]; !ok {
			return apierr.New(apierr.NotFound, "tenant not found: "+id)
		}
	}
	for i, id := range ids {
		r.tenants[id].Order = i + 1
	}
	return nil
}

// PickBestActive implements the selection algorithm: scan active
// tenants, restrict to writable ones if requested, choose the minimum
// Order (ties broken by id for stability).
func (r *Registry) PickBestActive(writable bool) (*model.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *model.Tenant
	for _, t := range r.tenants {
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
		if writable {
			return nil, apierr.New(apierr.NotFound, "no writable tenant")
		}
		return nil, apierr.New(apierr.NotFound, "no active tenant")
	}
	return best, nil
}

// TokenFetcher performs the token exchange HTTP call; abstracted so the
// registry is testable without a real cloud endpoint.
type TokenFetcher func(ctx context.Context, baseURL, appID, appSecret string) (*cloudapi.TokenExchangeResponse, error)

// EnsureToken lazily refreshes the cached token when NeedsRefresh is
// true.
func (r *Registry) EnsureToken(ctx context.Context, fetch TokenFetcher, id string) (string, error) {
	r.mu.Lock()
	t, ok := r.tenants[id]
	if !ok {
		r.mu.Unlock()
		return "", apierr.New(apierr.NotFound, "tenant not found")
	}
	needs := t.NeedsRefresh()
	r.mu.Unlock()

	if needs {
		if err := r.refreshLocked(ctx, fetch, t); err != nil {
			return "", err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return t.AccessToken, nil
}

// RefreshToken forces a refresh regardless of staleness.
func (r *Registry) RefreshToken(ctx context.Context, fetch TokenFetcher, id string) error {
	r.mu.Lock()
	t, ok := r.tenants[id]
	r.mu.Unlock()
	if !ok {
		return apierr.New(apierr.NotFound, "tenant not found")
	}
	return r.refreshLocked(ctx, fetch, t)
}

// refreshLocked performs the token exchange outside the registry lock
// (it is an HTTP suspension point) and writes the result back under a
// short-lived lock, per the "don't hold reads across awaits" rule.
func (r *Registry) refreshLocked(ctx context.Context, fetch TokenFetcher, t *model.Tenant) error {
	resp, err := fetch(ctx, t.Platform.BaseURL(), t.AppID, t.AppSecret)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", t.ID).Msg("token refresh failed")
		return apierr.Wrap(apierr.Upstream, "refresh tenant token", err)
	}

	r.mu.Lock()
	t.AccessToken = resp.TenantAccessToken
	t.TokenExpiresAt = time.Now().Add(time.Duration(resp.Expire) * time.Second)
	r.mu.Unlock()

	log.Info().Str("tenant_id", t.ID).Time("expires_at", t.TokenExpiresAt).Msg("refreshed tenant token")
	return nil
}
