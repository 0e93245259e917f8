package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return s
}

func dispatchJSON(t *testing.T, s *State, name, apiKey string, payload map[string]any) (any, error) {
	t.Helper()
	d := s.NewDispatcher()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = b
	}
	return d.Dispatch(context.Background(), name, apiKey, raw)
}

// Before any admin key is ever configured, bootstrap mode promotes any
// caller (including an empty key) to Admin, per spec.md's auth design.
func TestBootstrapModeAllowsAdminOperations(t *testing.T) {
	s := newTestState(t)

	result, err := dispatchJSON(t, s, "add_group", "", map[string]any{"name": "ops"})
	if err != nil {
		t.Fatalf("expected bootstrap caller to act as admin, got %v", err)
	}
	if result == nil {
		t.Fatalf("expected a created group")
	}
}

func TestGenerateAdminKeyEndsBootstrapMode(t *testing.T) {
	s := newTestState(t)

	result, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]any)
	adminKey := m["api_key"].(string)
	if adminKey == "" {
		t.Fatalf("expected a non-empty generated key")
	}

	if _, err := dispatchJSON(t, s, "add_group", "", map[string]any{"name": "ops"}); err == nil {
		t.Fatalf("expected empty key to be denied once an admin key is configured")
	}

	if _, err := dispatchJSON(t, s, "add_group", adminKey, map[string]any{"name": "ops"}); err != nil {
		t.Fatalf("expected the freshly generated admin key to work, got %v", err)
	}
}

func TestGroupCRUDRoundTrip(t *testing.T) {
	s := newTestState(t)

	added, err := dispatchJSON(t, s, "add_group", "", map[string]any{"name": "ops", "tenant_ids": []string{}})
	if err != nil {
		t.Fatalf("add_group: %v", err)
	}
	b, _ := json.Marshal(added)
	var addedFields map[string]any
	json.Unmarshal(b, &addedFields)
	groupID := addedFields["id"].(string)

	if _, err := dispatchJSON(t, s, "update_group_membership", "", map[string]any{"id": groupID, "tenant_ids": []string{}}); err != nil {
		t.Fatalf("update_group_membership: %v", err)
	}

	if _, err := dispatchJSON(t, s, "remove_group", "", map[string]any{"id": groupID}); err != nil {
		t.Fatalf("remove_group: %v", err)
	}

	if _, err := dispatchJSON(t, s, "remove_group", "", map[string]any{"id": groupID}); err == nil {
		t.Fatalf("expected removing an already-removed group to fail")
	}
}

func TestGroupScopeCannotGenerateGroupKey(t *testing.T) {
	s := newTestState(t)

	// Mint an admin key first so bootstrap mode no longer promotes every
	// caller to Admin, letting the group key below carry real restrictions.
	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	added, err := dispatchJSON(t, s, "add_group", adminKey, map[string]any{"name": "ops"})
	if err != nil {
		t.Fatalf("add_group: %v", err)
	}
	b, _ := json.Marshal(added)
	var addedFields map[string]any
	json.Unmarshal(b, &addedFields)
	groupID := addedFields["id"].(string)

	keyResult, err := dispatchJSON(t, s, "generate_group_key", adminKey, map[string]any{"group_id": groupID})
	if err != nil {
		t.Fatalf("generate_group_key: %v", err)
	}
	groupKey := keyResult.(map[string]any)["api_key"].(string)

	_, err = dispatchJSON(t, s, "add_group", groupKey, map[string]any{"name": "should-fail"})
	if err == nil {
		t.Fatalf("expected a group-scoped key to be denied an admin-only operation")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.AuthDenied {
		t.Fatalf("expected AuthDenied, got %v", err)
	}
}

func TestSyncTaskCRUDDefaultsAndScopeCheck(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	added, err := dispatchJSON(t, s, "add_group", adminKey, map[string]any{"name": "ops", "tenant_ids": []string{}})
	if err != nil {
		t.Fatalf("add_group: %v", err)
	}
	b, _ := json.Marshal(added)
	var groupFields map[string]any
	json.Unmarshal(b, &groupFields)
	groupID := groupFields["id"].(string)

	keyResult, err := dispatchJSON(t, s, "generate_group_key", adminKey, map[string]any{"group_id": groupID})
	if err != nil {
		t.Fatalf("generate_group_key: %v", err)
	}
	groupKey := keyResult.(map[string]any)["api_key"].(string)

	created, err := dispatchJSON(t, s, "add_sync_task", adminKey, map[string]any{
		"name":                 "laptop-docs",
		"tenant_id":            "some-tenant",
		"local_path":           "/tmp/docs",
		"remote_folder_token":  "root",
		"direction":            "local_to_cloud",
	})
	if err != nil {
		t.Fatalf("add_sync_task: %v", err)
	}
	cb, _ := json.Marshal(created)
	var createdFields map[string]any
	json.Unmarshal(cb, &createdFields)
	if createdFields["conflict"] != "newest" {
		t.Fatalf("expected default conflict strategy 'newest', got %v", createdFields["conflict"])
	}
	if createdFields["detection"] != "metadata" {
		t.Fatalf("expected default detection mode 'metadata', got %v", createdFields["detection"])
	}
	taskID := createdFields["id"].(string)

	// The sync task's tenant ("some-tenant") is not a member of the
	// group the freshly minted key belongs to, so the group-scoped
	// caller must be denied access to it.
	if _, err := dispatchJSON(t, s, "update_sync_task", groupKey, map[string]any{"id": taskID, "enabled": false}); err == nil {
		t.Fatalf("expected group scope without tenant membership to be denied")
	}

	if _, err := dispatchJSON(t, s, "remove_sync_task", adminKey, map[string]any{"id": taskID}); err != nil {
		t.Fatalf("remove_sync_task: %v", err)
	}
}

func TestMoveResourceRejectsCrossTenant(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	s.Index.Register("file-a", "tenant-a")
	s.Index.Register("folder-b", "tenant-b")

	_, err = dispatchJSON(t, s, "move_resource", adminKey, map[string]any{
		"token":             "file-a",
		"dest_folder_token": "folder-b",
	})
	if err == nil {
		t.Fatalf("expected cross-tenant move to be rejected")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}

	if _, ok := s.Index.Lookup("file-a"); !ok {
		t.Fatalf("expected no state change after a rejected cross-tenant move")
	}
}

func TestMoveResourceUnknownTokenIsNotFound(t *testing.T) {
	s := newTestState(t)

	_, err := dispatchJSON(t, s, "move_resource", "", map[string]any{
		"token":             "ghost",
		"dest_folder_token": "also-ghost",
	})
	if err == nil {
		t.Fatalf("expected not_found for an unregistered token")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteResourceResolvesTenantAndAttemptsCall(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	// Loaded directly (bypassing add_tenant) since add_tenant performs a
	// real token-exchange HTTP call this offline test can't make.
	s.Tenants.Load([]*model.Tenant{{ID: "tenant-x", AppID: "app-1", AppSecret: "secret", Platform: model.PlatformOpen, Permission: model.PermissionReadWrite, Active: true}})
	s.Index.Register("file-x", "tenant-x")

	// The tenant's real cloud endpoint can't be reached in this test, so
	// the delete call is expected to fail upstream while still proving
	// the handler resolved the token's tenant and attempted the call
	// rather than silently no-op'ing.
	_, err = dispatchJSON(t, s, "delete_resource", adminKey, map[string]any{
		"token": "file-x", "resource_type": "file",
	})
	if err == nil {
		t.Fatalf("expected an upstream error since no real cloud endpoint is reachable")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.Upstream {
		t.Fatalf("expected Upstream, got %v", err)
	}
}

func TestGetTenantDetailExposesCredentialsToAdminOnly(t *testing.T) {
	s := newTestState(t)
	s.Tenants.Load([]*model.Tenant{{ID: "tenant-x", Name: "Acme", AppID: "app-1", AppSecret: "top-secret", Platform: model.PlatformOpen, Permission: model.PermissionReadWrite, Active: true}})

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	result, err := dispatchJSON(t, s, "get_tenant_detail", adminKey, map[string]any{"id": "tenant-x"})
	if err != nil {
		t.Fatalf("get_tenant_detail: %v", err)
	}
	detail := result.(model.Detail)
	if detail.AppSecret != "top-secret" {
		t.Fatalf("expected admin detail view to include app_secret, got %q", detail.AppSecret)
	}

	if _, err := dispatchJSON(t, s, "get_tenant_detail", "", map[string]any{"id": "tenant-x"}); err == nil {
		t.Fatalf("expected a non-admin caller to be denied once an admin key is configured")
	}
}

func TestRefreshTenantTokenIsAdminOnlyAndReturnsPublicView(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	s.Tenants.Load([]*model.Tenant{{ID: "tenant-x", AppID: "app-1", AppSecret: "secret", Platform: model.PlatformOpen, Permission: model.PermissionReadWrite, Active: true}})

	if _, err := dispatchJSON(t, s, "refresh_tenant_token", adminKey, map[string]any{"id": "tenant-x"}); err == nil {
		t.Fatalf("expected an upstream error since no real cloud endpoint is reachable")
	} else if e, ok := apierr.As(err); !ok || e.Kind != apierr.Upstream {
		t.Fatalf("expected Upstream, got %v", err)
	}

	if _, err := dispatchJSON(t, s, "refresh_tenant_token", "", map[string]any{"id": "tenant-x"}); err == nil {
		t.Fatalf("expected a non-admin caller to be denied")
	}
}

func TestCopyResourceRejectsCrossTenant(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	s.Index.Register("file-a", "tenant-a")
	s.Index.Register("folder-b", "tenant-b")

	_, err = dispatchJSON(t, s, "copy_resource", adminKey, map[string]any{
		"token": "file-a", "dest_folder_token": "folder-b", "name": "copy.txt",
	})
	if err == nil {
		t.Fatalf("expected cross-tenant copy to be rejected")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestRenameResourceUnknownTokenIsNotFound(t *testing.T) {
	s := newTestState(t)

	_, err := dispatchJSON(t, s, "rename_resource", "", map[string]any{
		"token": "ghost", "resource_type": "file", "name": "new-name.txt",
	})
	if err == nil {
		t.Fatalf("expected not_found for an unregistered token")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListRootEntriesRequiresAnActiveTenant(t *testing.T) {
	s := newTestState(t)

	_, err := dispatchJSON(t, s, "list_root_entries", "", nil)
	if err == nil {
		t.Fatalf("expected not_found with no tenants configured")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListFolderEntriesUnknownTokenIsNotFound(t *testing.T) {
	s := newTestState(t)

	_, err := dispatchJSON(t, s, "list_folder_entries", "", map[string]any{"folder_token": "ghost"})
	if err == nil {
		t.Fatalf("expected not_found for an unregistered folder token")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListSyncLogsIsAdminOnlyAndFiltersByTask(t *testing.T) {
	s := newTestState(t)

	adminResult, err := dispatchJSON(t, s, "generate_admin_key", "", nil)
	if err != nil {
		t.Fatalf("generate_admin_key: %v", err)
	}
	adminKey := adminResult.(map[string]any)["api_key"].(string)

	if _, err := dispatchJSON(t, s, "list_sync_logs", "", map[string]any{"task_id": "t1"}); err == nil {
		t.Fatalf("expected a non-admin caller to be denied")
	}

	result, err := dispatchJSON(t, s, "list_sync_logs", adminKey, map[string]any{"task_id": "t1"})
	if err != nil {
		t.Fatalf("list_sync_logs: %v", err)
	}
	logs := result.([]model.SyncLogEntry)
	if len(logs) != 0 {
		t.Fatalf("expected no logs for a task with no runs, got %v", logs)
	}
}

func TestLogConfigRoundTripClampsOnSet(t *testing.T) {
	s := newTestState(t)

	result, err := dispatchJSON(t, s, "set_log_config", "", map[string]any{"max_size_mb": 1})
	if err != nil {
		t.Fatalf("set_log_config: %v", err)
	}
	b, _ := json.Marshal(result)
	var fields map[string]any
	json.Unmarshal(b, &fields)
	if fields["max_size_mb"].(float64) != 5 {
		t.Fatalf("expected clamp to floor of 5, got %v", fields["max_size_mb"])
	}

	got, err := dispatchJSON(t, s, "get_log_config", "", nil)
	if err != nil {
		t.Fatalf("get_log_config: %v", err)
	}
	gb, _ := json.Marshal(got)
	var gotFields map[string]any
	json.Unmarshal(gb, &gotFields)
	if gotFields["max_size_mb"].(float64) != 5 {
		t.Fatalf("expected get_log_config to reflect the clamped value, got %v", gotFields["max_size_mb"])
	}
}
