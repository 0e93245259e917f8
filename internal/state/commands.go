package state

import (
	"context"

	"github.com/disconnec/FeiSync/internal/access"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/dispatch"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/google/uuid"
)

// registerCommands populates the dispatcher's command table. Every
// handler is a thin adapter over the registry/engine methods already
// built in the lower packages — the dispatcher's job is auth, payload
// shape, logging, and metrics, never business logic itself.
func registerCommands(d *dispatch.Dispatcher, s *State) {
	d.Register(dispatch.Command{Name: "list_tenants", Handler: s.cmdListTenants})
	d.Register(dispatch.Command{Name: "add_tenant", Required: []string{"name", "app_id", "app_secret"}, Handler: s.cmdAddTenant})
	d.Register(dispatch.Command{Name: "update_tenant", Required: []string{"id"}, Handler: s.cmdUpdateTenant})
	d.Register(dispatch.Command{Name: "remove_tenant", Required: []string{"id"}, Handler: s.cmdRemoveTenant})
	d.Register(dispatch.Command{Name: "reorder_tenants", Required: []string{"ids"}, Handler: s.cmdReorderTenants})
	d.Register(dispatch.Command{Name: "get_tenant_detail", Required: []string{"id"}, Handler: s.cmdGetTenantDetail})
	d.Register(dispatch.Command{Name: "refresh_tenant_token", Required: []string{"id"}, Handler: s.cmdRefreshTenantToken})

	d.Register(dispatch.Command{Name: "list_groups", Handler: s.cmdListGroups})
	d.Register(dispatch.Command{Name: "add_group", Required: []string{"name"}, Handler: s.cmdAddGroup})
	d.Register(dispatch.Command{Name: "update_group_membership", Required: []string{"id", "tenant_ids"}, Handler: s.cmdUpdateGroupMembership})
	d.Register(dispatch.Command{Name: "remove_group", Required: []string{"id"}, Handler: s.cmdRemoveGroup})

	d.Register(dispatch.Command{Name: "generate_admin_key", Handler: s.cmdGenerateAdminKey})
	d.Register(dispatch.Command{Name: "generate_group_key", Required: []string{"group_id"}, Handler: s.cmdGenerateGroupKey})

	d.Register(dispatch.Command{Name: "upload_file", Required: []string{"tenant_id", "local_path", "parent_token"}, Handler: s.cmdUploadFile})
	d.Register(dispatch.Command{Name: "upload_folder", Required: []string{"tenant_id", "local_path", "parent_token"}, Handler: s.cmdUploadFolder})
	d.Register(dispatch.Command{Name: "download_file", Required: []string{"token", "local_dir", "file_name"}, Handler: s.cmdDownloadFile})
	d.Register(dispatch.Command{Name: "download_folder", Required: []string{"token", "local_dir"}, Handler: s.cmdDownloadFolder})
	d.Register(dispatch.Command{Name: "move_resource", Required: []string{"token", "dest_folder_token"}, Handler: s.cmdMoveResource})
	d.Register(dispatch.Command{Name: "copy_resource", Required: []string{"token", "dest_folder_token", "name"}, Handler: s.cmdCopyResource})
	d.Register(dispatch.Command{Name: "rename_resource", Required: []string{"token", "resource_type", "name"}, Handler: s.cmdRenameResource})
	d.Register(dispatch.Command{Name: "delete_resource", Required: []string{"token", "resource_type"}, Handler: s.cmdDeleteResource})
	d.Register(dispatch.Command{Name: "list_root_entries", Handler: s.cmdListRootEntries})
	d.Register(dispatch.Command{Name: "list_folder_entries", Required: []string{"folder_token"}, Handler: s.cmdListFolderEntries})
	d.Register(dispatch.Command{Name: "pause_transfer", Required: []string{"id"}, Handler: s.cmdPauseTransfer})
	d.Register(dispatch.Command{Name: "cancel_transfer", Required: []string{"id"}, Handler: s.cmdCancelTransfer})
	d.Register(dispatch.Command{Name: "resume_transfer", Required: []string{"id"}, Handler: s.cmdResumeTransfer})
	d.Register(dispatch.Command{Name: "list_transfers", Handler: s.cmdListTransfers})
	d.Register(dispatch.Command{Name: "get_transfer", Required: []string{"id"}, Handler: s.cmdGetTransfer})

	d.Register(dispatch.Command{Name: "add_sync_task", Required: []string{"name", "tenant_id", "local_path", "remote_folder_token", "direction"}, Handler: s.cmdAddSyncTask})
	d.Register(dispatch.Command{Name: "update_sync_task", Required: []string{"id"}, Handler: s.cmdUpdateSyncTask})
	d.Register(dispatch.Command{Name: "remove_sync_task", Required: []string{"id"}, Handler: s.cmdRemoveSyncTask})
	d.Register(dispatch.Command{Name: "list_sync_tasks", Handler: s.cmdListSyncTasks})
	d.Register(dispatch.Command{Name: "trigger_sync_task", Required: []string{"id"}, Handler: s.cmdTriggerSyncTask})
	d.Register(dispatch.Command{Name: "list_sync_logs", Required: []string{"task_id"}, Handler: s.cmdListSyncLogs})

	d.Register(dispatch.Command{Name: "get_log_config", Handler: s.cmdGetLogConfig})
	d.Register(dispatch.Command{Name: "set_log_config", Handler: s.cmdSetLogConfig})
	d.Register(dispatch.Command{Name: "get_server_config", Handler: s.cmdGetServerConfig})
	d.Register(dispatch.Command{Name: "set_server_config", Handler: s.cmdSetServerConfig})
}

func (s *State) cmdListTenants(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	all := s.Tenants.Snapshot()
	if scope.IsAdmin() {
		out := make([]model.Public, 0, len(all))
		for _, t := range all {
			out = append(out, t.ToPublic())
		}
		return out, nil
	}
	groups := s.GroupsByID()
	g, ok := groups[scope.GroupID]
	if !ok {
		return nil, apierr.New(apierr.Conflict, "group no longer exists")
	}
	out := make([]model.Public, 0)
	for _, t := range all {
		if g.Contains(t.ID) {
			out = append(out, t.ToPublic())
		}
	}
	return out, nil
}

func (s *State) cmdAddTenant(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may add tenants")
	}
	name, _ := stringField(fields, "name")
	appID, _ := stringField(fields, "app_id")
	appSecret, _ := stringField(fields, "app_secret")
	platform := model.PlatformOpen
	if p, _ := stringField(fields, "platform"); p != "" {
		platform = model.Platform(p)
	}
	permission := model.PermissionReadWrite
	if p, _ := stringField(fields, "permission"); p != "" {
		permission = model.AccessPermission(p)
	}

	t, err := s.Tenants.Add(ctx, fetchToken, name, appID, appSecret, platform, permission)
	if err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return t.ToPublic(), nil
}

func (s *State) cmdUpdateTenant(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may update tenants")
	}
	id, _ := stringField(fields, "id")

	var namePtr, appIDPtr, appSecretPtr *string
	var platformPtr *model.Platform
	var permissionPtr *model.AccessPermission
	var activePtr *bool

	if name, err := stringField(fields, "name"); err == nil {
		if _, ok := fields["name"]; ok {
			namePtr = &name
		}
	}
	if appID, err := stringField(fields, "app_id"); err == nil {
		if _, ok := fields["app_id"]; ok {
			appIDPtr = &appID
		}
	}
	if appSecret, err := stringField(fields, "app_secret"); err == nil {
		if _, ok := fields["app_secret"]; ok {
			appSecretPtr = &appSecret
		}
	}
	if p, err := stringField(fields, "platform"); err == nil && p != "" {
		pv := model.Platform(p)
		platformPtr = &pv
	}
	if p, err := stringField(fields, "permission"); err == nil && p != "" {
		pv := model.AccessPermission(p)
		permissionPtr = &pv
	}
	if v, ok := fields["active"]; ok {
		if b, ok := v.(bool); ok {
			activePtr = &b
		}
	}

	t, err := s.Tenants.UpdateMeta(ctx, fetchToken, id, namePtr, appIDPtr, appSecretPtr, platformPtr, permissionPtr, activePtr)
	if err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return t.ToPublic(), nil
}

func (s *State) cmdRemoveTenant(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may remove tenants")
	}
	id, _ := stringField(fields, "id")
	if err := s.Tenants.Remove(id); err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return map[string]any{"removed": id}, nil
}

func (s *State) cmdReorderTenants(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may reorder tenants")
	}
	ids := stringSliceField(fields, "ids")
	if err := s.Tenants.Reorder(ids); err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return map[string]any{"reordered": len(ids)}, nil
}

func (s *State) cmdGetTenantDetail(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may view tenant detail")
	}
	id, _ := stringField(fields, "id")
	t, ok := s.Tenants.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	return t.ToDetail(), nil
}

func (s *State) cmdRefreshTenantToken(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may refresh a tenant token")
	}
	id, _ := stringField(fields, "id")
	if err := s.Tenants.RefreshToken(ctx, fetchToken, id); err != nil {
		return nil, err
	}
	t, ok := s.Tenants.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	return t.ToPublic(), nil
}

func (s *State) cmdListGroups(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may list groups")
	}
	return s.Groups.Snapshot(), nil
}

func (s *State) cmdAddGroup(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may add groups")
	}
	name, _ := stringField(fields, "name")
	remark, _ := stringField(fields, "remark")
	tenantIDs := stringSliceField(fields, "tenant_ids")
	g := s.Groups.Add(name, remark, tenantIDs, s.Tenants.LiveIDs())
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *State) cmdUpdateGroupMembership(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may update group membership")
	}
	id, _ := stringField(fields, "id")
	tenantIDs := stringSliceField(fields, "tenant_ids")
	g, err := s.Groups.UpdateMembership(id, tenantIDs, s.Tenants.LiveIDs())
	if err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *State) cmdRemoveGroup(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may remove groups")
	}
	id, _ := stringField(fields, "id")
	if err := s.Groups.Remove(id); err != nil {
		return nil, err
	}
	if err := s.SaveTenants(); err != nil {
		return nil, err
	}
	return map[string]any{"removed": id}, nil
}

func (s *State) cmdGenerateAdminKey(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may rotate the admin key")
	}
	plain, hash, err := access.GenerateKey()
	if err != nil {
		return nil, apierr.Wrap(apierr.IO, "generate admin key", err)
	}
	sec := s.Security()
	sec.Plain = plain
	sec.Hash = hash
	if err := s.SetSecurity(sec); err != nil {
		return nil, err
	}
	return map[string]any{"api_key": plain}, nil
}

func (s *State) cmdGenerateGroupKey(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may mint group keys")
	}
	groupID, _ := stringField(fields, "group_id")
	if _, ok := s.Groups.Get(groupID); !ok {
		return nil, apierr.New(apierr.NotFound, "group not found")
	}
	plain, hash, err := access.GenerateKey()
	if err != nil {
		return nil, apierr.Wrap(apierr.IO, "generate group key", err)
	}
	sec := s.Security()
	replaced := false
	for i, gk := range sec.GroupKeys {
		if gk.GroupID == groupID {
			sec.GroupKeys[i] = model.GroupKey{GroupID: groupID, Hash: hash, Plain: plain}
			replaced = true
			break
		}
	}
	if !replaced {
		sec.GroupKeys = append(sec.GroupKeys, model.GroupKey{GroupID: groupID, Hash: hash, Plain: plain})
	}
	if err := s.SetSecurity(sec); err != nil {
		return nil, err
	}
	return map[string]any{"api_key": plain}, nil
}

func (s *State) resolveTenantForWrite(scope access.Scope, tenantID string) error {
	t, ok := s.Tenants.Get(tenantID)
	if !ok {
		return apierr.New(apierr.NotFound, "tenant not found")
	}
	if !t.Writable() {
		return apierr.New(apierr.Conflict, "tenant is read-only or inactive")
	}
	return access.AssertForTenant(scope, tenantID, s.GroupsByID())
}

func (s *State) cmdUploadFile(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	tenantID, _ := stringField(fields, "tenant_id")
	if err := s.resolveTenantForWrite(scope, tenantID); err != nil {
		return nil, err
	}
	localPath, _ := stringField(fields, "local_path")
	parentToken, _ := stringField(fields, "parent_token")
	t, err := s.Transfer.StartUploadFile(ctx, tenantID, localPath, parentToken)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *State) cmdUploadFolder(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	tenantID, _ := stringField(fields, "tenant_id")
	if err := s.resolveTenantForWrite(scope, tenantID); err != nil {
		return nil, err
	}
	localPath, _ := stringField(fields, "local_path")
	parentToken, _ := stringField(fields, "parent_token")
	t, err := s.Transfer.StartUploadFolder(ctx, tenantID, localPath, parentToken)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *State) cmdDownloadFile(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	tenantID, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	localDir, _ := stringField(fields, "local_dir")
	fileName, _ := stringField(fields, "file_name")
	size := int64Field(fields, "size")
	t, err := s.Transfer.StartDownloadFile(ctx, tenantID, token, fileName, localDir, size)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *State) cmdDownloadFolder(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	tenantID, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	localDir, _ := stringField(fields, "local_dir")
	t, err := s.Transfer.StartDownloadFolder(ctx, tenantID, token, localDir)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *State) cmdMoveResource(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	destFolderToken, _ := stringField(fields, "dest_folder_token")

	srcTenant, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	destTenant, err := access.AssertForToken(scope, destFolderToken, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	if srcTenant != destTenant {
		return nil, apierr.New(apierr.Conflict, "cross-tenant move not supported")
	}
	if t, ok := s.Tenants.Get(srcTenant); !ok || !t.Writable() {
		return nil, apierr.New(apierr.Conflict, "tenant is read-only or inactive")
	}

	client, err := s.clientFactory(ctx, srcTenant)
	if err != nil {
		return nil, err
	}
	if err := client.MoveResource(ctx, token, destFolderToken); err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "move", err)
	}
	return map[string]any{"token": token, "moved_to": destFolderToken}, nil
}

func (s *State) cmdCopyResource(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	destFolderToken, _ := stringField(fields, "dest_folder_token")
	name, _ := stringField(fields, "name")

	srcTenant, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	destTenant, err := access.AssertForToken(scope, destFolderToken, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	if srcTenant != destTenant {
		return nil, apierr.New(apierr.Conflict, "cross-tenant copy not supported")
	}
	if t, ok := s.Tenants.Get(srcTenant); !ok || !t.Writable() {
		return nil, apierr.New(apierr.Conflict, "tenant is read-only or inactive")
	}

	client, err := s.clientFactory(ctx, srcTenant)
	if err != nil {
		return nil, err
	}
	newToken, err := client.CopyResource(ctx, token, destFolderToken, name)
	if err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "copy", err)
	}
	// The copy result is itself a newly minted token a later move/delete/
	// download call must be able to resolve, per spec.md §4.2.
	s.Index.Register(newToken, srcTenant)
	return map[string]any{"token": newToken, "copied_from": token}, nil
}

func (s *State) cmdRenameResource(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	resourceType, _ := stringField(fields, "resource_type")
	name, _ := stringField(fields, "name")

	tenantID, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	if t, ok := s.Tenants.Get(tenantID); !ok || !t.Writable() {
		return nil, apierr.New(apierr.Conflict, "tenant is read-only or inactive")
	}
	client, err := s.clientFactory(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := client.Rename(ctx, resourceType, token, name); err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "rename", err)
	}
	return map[string]any{"token": token, "name": name}, nil
}

func (s *State) cmdDeleteResource(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	token, _ := stringField(fields, "token")
	resourceType, _ := stringField(fields, "resource_type")

	tenantID, err := access.AssertForToken(scope, token, s.Index, s.GroupsByID())
	if err != nil {
		return nil, err
	}
	if t, ok := s.Tenants.Get(tenantID); !ok || !t.Writable() {
		return nil, apierr.New(apierr.Conflict, "tenant is read-only or inactive")
	}
	client, err := s.clientFactory(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := client.DeleteResource(ctx, token, resourceType); err != nil {
		return nil, apierr.Wrap(apierr.Upstream, "delete", err)
	}
	s.Index.Remove(token)
	return map[string]any{"removed": token}, nil
}

func (s *State) cmdPauseTransfer(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	if err := s.requireTransferAccess(scope, id); err != nil {
		return nil, err
	}
	if err := s.Transfer.Pause(id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "status": "paused"}, nil
}

func (s *State) cmdCancelTransfer(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	if err := s.requireTransferAccess(scope, id); err != nil {
		return nil, err
	}
	if err := s.Transfer.CancelTask(id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "status": "cancelling"}, nil
}

func (s *State) cmdResumeTransfer(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	if err := s.requireTransferAccess(scope, id); err != nil {
		return nil, err
	}
	if err := s.Transfer.ResumeTransferTask(id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "status": "resumed"}, nil
}

func (s *State) requireTransferAccess(scope access.Scope, id string) error {
	t, ok := s.Transfer.Get(id)
	if !ok {
		return apierr.New(apierr.NotFound, "transfer task not found")
	}
	return access.AssertForTenant(scope, t.TenantID, s.GroupsByID())
}

func (s *State) cmdListTransfers(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	all := s.Transfer.Snapshot()
	if scope.IsAdmin() {
		return all, nil
	}
	groups := s.GroupsByID()
	g, ok := groups[scope.GroupID]
	if !ok {
		return nil, apierr.New(apierr.Conflict, "group no longer exists")
	}
	out := make([]any, 0)
	for _, t := range all {
		if g.Contains(t.TenantID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *State) cmdGetTransfer(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	t, ok := s.Transfer.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "transfer task not found")
	}
	if err := access.AssertForTenant(scope, t.TenantID, s.GroupsByID()); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *State) cmdAddSyncTask(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	tenantID, _ := stringField(fields, "tenant_id")
	if err := access.AssertForTenant(scope, tenantID, s.GroupsByID()); err != nil {
		return nil, err
	}
	name, _ := stringField(fields, "name")
	localPath, _ := stringField(fields, "local_path")
	remoteFolderToken, _ := stringField(fields, "remote_folder_token")
	direction, _ := stringField(fields, "direction")
	conflict, _ := stringField(fields, "conflict")
	detection, _ := stringField(fields, "detection")
	schedule, _ := stringField(fields, "schedule")

	t := &model.SyncTask{
		ID:                uuid.New().String(),
		Name:              name,
		Direction:         model.SyncDirection(direction),
		TenantID:          tenantID,
		RemoteFolderToken: remoteFolderToken,
		LocalPath:         localPath,
		Schedule:          schedule,
		Enabled:           boolField(fields, "enabled", true),
		Detection:         model.DetectionMode(detection),
		Conflict:          model.ConflictStrategy(conflict),
		PropagateDelete:   boolField(fields, "propagate_delete", false),
		Include:           stringSliceField(fields, "include"),
		Exclude:           stringSliceField(fields, "exclude"),
	}
	if t.Conflict == "" {
		t.Conflict = model.ConflictNewest
	}
	if t.Detection == "" {
		t.Detection = model.DetectionMetadata
	}
	s.Sync.Add(t)
	return t, nil
}

func (s *State) cmdUpdateSyncTask(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	existing, ok := s.Sync.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "sync task not found")
	}
	if err := access.AssertForTenant(scope, existing.TenantID, s.GroupsByID()); err != nil {
		return nil, err
	}

	err := s.Sync.UpdateRetarget(id, func(t *model.SyncTask) {
		if v, ok := fields["local_path"]; ok {
			if sv, ok := v.(string); ok {
				t.LocalPath = sv
			}
		}
		if v, ok := fields["remote_folder_token"]; ok {
			if sv, ok := v.(string); ok {
				t.RemoteFolderToken = sv
			}
		}
		if v, ok := fields["direction"]; ok {
			if sv, ok := v.(string); ok {
				t.Direction = model.SyncDirection(sv)
			}
		}
		if v, ok := fields["enabled"]; ok {
			if bv, ok := v.(bool); ok {
				t.Enabled = bv
			}
		}
		if v, ok := fields["conflict"]; ok {
			if sv, ok := v.(string); ok {
				t.Conflict = model.ConflictStrategy(sv)
			}
		}
		if v, ok := fields["propagate_delete"]; ok {
			if bv, ok := v.(bool); ok {
				t.PropagateDelete = bv
			}
		}
		if _, ok := fields["include"]; ok {
			t.Include = stringSliceField(fields, "include")
		}
		if _, ok := fields["exclude"]; ok {
			t.Exclude = stringSliceField(fields, "exclude")
		}
	})
	if err != nil {
		return nil, err
	}
	t, _ := s.Sync.Get(id)
	return t, nil
}

func (s *State) cmdRemoveSyncTask(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	t, ok := s.Sync.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "sync task not found")
	}
	if err := access.AssertForTenant(scope, t.TenantID, s.GroupsByID()); err != nil {
		return nil, err
	}
	s.Sync.Remove(id)
	return map[string]any{"removed": id}, nil
}

func (s *State) cmdListSyncTasks(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	all := s.Sync.Snapshot()
	if scope.IsAdmin() {
		return all, nil
	}
	groups := s.GroupsByID()
	g, ok := groups[scope.GroupID]
	if !ok {
		return nil, apierr.New(apierr.Conflict, "group no longer exists")
	}
	out := make([]any, 0)
	for _, t := range all {
		if g.Contains(t.TenantID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *State) cmdTriggerSyncTask(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	id, _ := stringField(fields, "id")
	t, ok := s.Sync.Get(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "sync task not found")
	}
	if err := access.AssertForTenant(scope, t.TenantID, s.GroupsByID()); err != nil {
		return nil, err
	}
	if err := s.Sync.Trigger(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "status": "success"}, nil
}

func (s *State) cmdListSyncLogs(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may view sync logs")
	}
	taskID, _ := stringField(fields, "task_id")
	limit := int(int64Field(fields, "limit"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.Sync.LogsForTask(taskID, limit), nil
}

func (s *State) cmdGetLogConfig(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may view log config")
	}
	return s.LogConfig(), nil
}

func (s *State) cmdSetLogConfig(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may set log config")
	}
	dir, _ := stringField(fields, "directory")
	cfg := model.LogConfig{
		Enabled:   boolField(fields, "enabled", false),
		Directory: dir,
		MaxSizeMB: int(int64Field(fields, "max_size_mb")),
	}
	if err := s.SetLogConfig(cfg); err != nil {
		return nil, err
	}
	return s.LogConfig(), nil
}

func (s *State) cmdGetServerConfig(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may view server config")
	}
	return s.ServerConfig(), nil
}

func (s *State) cmdSetServerConfig(ctx context.Context, scope access.Scope, fields map[string]any) (any, error) {
	if !scope.IsAdmin() {
		return nil, apierr.New(apierr.AuthDenied, "only admin may set server config")
	}
	host, _ := stringField(fields, "listen_host")
	cfg := model.ServerConfig{
		ListenHost:  host,
		Port:        int(int64Field(fields, "port")),
		TimeoutSecs: int(int64Field(fields, "timeout_secs")),
	}
	if err := s.SetServerConfig(cfg); err != nil {
		return nil, err
	}
	return s.ServerConfig(), nil
}
