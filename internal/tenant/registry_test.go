package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
)

var errTokenExchangeFailed = errors.New("token exchange failed")

func fakeFetch(ctx context.Context, baseURL, appID, appSecret string) (*cloudapi.TokenExchangeResponse, error) {
	return &cloudapi.TokenExchangeResponse{TenantAccessToken: "tok-" + appID, Expire: 7200}, nil
}

func TestAddFetchesFirstToken(t *testing.T) {
	r := New()
	tnt, err := r.Add(context.Background(), fakeFetch, "acme", "app-1", "secret", model.PlatformOpen, model.PermissionReadWrite)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tnt.AccessToken != "tok-app-1" {
		t.Fatalf("expected first token to be fetched, got %q", tnt.AccessToken)
	}
	if tnt.Order != 1 {
		t.Fatalf("expected first tenant to get order 1, got %d", tnt.Order)
	}
}

func TestPickBestActiveSkipsInactiveAndReadOnly(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{
		{ID: "t1", Active: false, Permission: model.PermissionReadWrite, Order: 1},
		{ID: "t2", Active: true, Permission: model.PermissionReadOnly, Order: 2},
		{ID: "t3", Active: true, Permission: model.PermissionReadWrite, Order: 3},
	})

	best, err := r.PickBestActive(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.ID != "t3" {
		t.Fatalf("expected t3 (only active+writable), got %s", best.ID)
	}
}

func TestPickBestActiveNoneAvailable(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1", Active: false}})

	if _, err := r.PickBestActive(false); err == nil {
		t.Fatalf("expected not_found when no tenant is active")
	}
}

func TestUpdateMetaForcesRefreshOnCredentialChange(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1", AppID: "old", AccessToken: "stale"}})

	newAppID := "new-app"
	updated, err := r.UpdateMeta(context.Background(), fakeFetch, "t1", nil, &newAppID, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AccessToken != "tok-new-app" {
		t.Fatalf("expected refreshed token after app id change, got %q", updated.AccessToken)
	}
}

func TestEnsureTokenSkipsRefreshWhenFresh(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1", AccessToken: "fresh", TokenExpiresAt: time.Now().Add(time.Hour)}})

	calls := 0
	fetch := func(ctx context.Context, baseURL, appID, appSecret string) (*cloudapi.TokenExchangeResponse, error) {
		calls++
		return &cloudapi.TokenExchangeResponse{TenantAccessToken: "new", Expire: 7200}, nil
	}

	tok, err := r.EnsureToken(context.Background(), fetch, "t1")
	if err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if tok != "fresh" {
		t.Fatalf("expected cached token preserved, got %q", tok)
	}
	if calls != 0 {
		t.Fatalf("expected no fetch for a fresh token, got %d calls", calls)
	}
}

func TestEnsureTokenRefreshesWhenStaleOrAbsent(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1"}})

	tok, err := r.EnsureToken(context.Background(), fakeFetch, "t1")
	if err != nil {
		t.Fatalf("ensure token: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected a freshly fetched token")
	}
}

func TestEnsureTokenUnknownTenantIsNotFound(t *testing.T) {
	r := New()
	if _, err := r.EnsureToken(context.Background(), fakeFetch, "ghost"); err == nil {
		t.Fatalf("expected not_found for an unregistered tenant")
	}
}

func TestRefreshTokenForcesRefreshEvenWhenFresh(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1", AccessToken: "fresh", TokenExpiresAt: time.Now().Add(time.Hour)}})

	if err := r.RefreshToken(context.Background(), fakeFetch, "t1"); err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	got, _ := r.Get("t1")
	if got.AccessToken == "fresh" {
		t.Fatalf("expected RefreshToken to overwrite an otherwise-fresh token")
	}
}

func TestRefreshTokenPropagatesFetchError(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "t1"}})

	failing := func(ctx context.Context, baseURL, appID, appSecret string) (*cloudapi.TokenExchangeResponse, error) {
		return nil, errTokenExchangeFailed
	}
	if err := r.RefreshToken(context.Background(), failing, "t1"); err == nil {
		t.Fatalf("expected the fetch error to propagate")
	}
}

func TestReorderAssignsSequentialOrder(t *testing.T) {
	r := New()
	r.Load([]*model.Tenant{{ID: "a", Order: 1}, {ID: "b", Order: 2}})

	if err := r.Reorder([]string{"b", "a"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	b, _ := r.Get("b")
	a, _ := r.Get("a")
	if b.Order != 1 || a.Order != 2 {
		t.Fatalf("expected b=1, a=2, got b=%d a=%d", b.Order, a.Order)
	}
}
