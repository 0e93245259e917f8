package state

import (
	"context"
	"sync"

	"github.com/disconnec/FeiSync/internal/access"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/dispatch"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/disconnec/FeiSync/internal/resourceindex"
	"github.com/disconnec/FeiSync/internal/store"
	syncengine "github.com/disconnec/FeiSync/internal/sync"
	"github.com/disconnec/FeiSync/internal/tenant"
	"github.com/disconnec/FeiSync/internal/transfer"
	"github.com/rs/zerolog/log"
)

// State is the single long-lived object threaded through the dispatcher
// and HTTP server: every in-memory registry plus the stores that persist
// them. Nothing outside this package reaches into a store directly.
type State struct {
	Paths store.Paths

	Tenants  *tenant.Registry
	Groups   *tenant.Groups
	Index    *resourceindex.Index
	Transfer *transfer.Engine
	Sync     *syncengine.Engine
	APILogs  *store.APILogStore

	mu       sync.RWMutex
	security model.Security
	logCfg   model.LogConfig
	srvCfg   model.ServerConfig
}

// Load builds a State from every persisted file under dir, applying the
// abnormal-termination recovery rule to transfer tasks and the dangling-
// membership sweep to groups.
func Load(dir string) (*State, error) {
	paths := store.Paths{Dir: dir}

	var tenantsDoc store.TenantsDocument
	if err := store.LoadOrDefault(paths.Tenants(), &tenantsDoc); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load tenants.json", err)
	}
	var idxDoc store.ResourceIndexDocument
	if err := store.LoadOrDefault(paths.ResourceIndex(), &idxDoc); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load resource-index.json", err)
	}
	var sec model.Security
	if err := store.LoadOrDefault(paths.Security(), &sec); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load security.json", err)
	}
	var transfersDoc store.TransfersDocument
	if err := store.LoadOrDefault(paths.Transfers(), &transfersDoc); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load transfers.json", err)
	}
	var syncTasksDoc store.SyncTasksDocument
	if err := store.LoadOrDefault(paths.SyncTasks(), &syncTasksDoc); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load sync_tasks.json", err)
	}
	var syncLogsDoc store.SyncLogsDocument
	if err := store.LoadOrDefault(paths.SyncLogs(), &syncLogsDoc); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load sync_logs.json", err)
	}
	var logCfg model.LogConfig
	if err := store.LoadOrDefault(paths.LogConfig(), &logCfg); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load log_config.json", err)
	}
	logCfg.Clamp()
	var srvCfg model.ServerConfig
	if err := store.LoadOrDefault(paths.APIServerConfig(), &srvCfg); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load api_server.json", err)
	}
	srvCfg.Clamp()

	s := &State{
		Paths:    paths,
		Tenants:  tenant.New(),
		Groups:   tenant.NewGroups(),
		Index:    resourceindex.New(),
		security: sec,
		logCfg:   logCfg,
		srvCfg:   srvCfg,
	}

	s.Tenants.Load(tenantsDoc.Tenants)
	s.Groups.Load(tenantsDoc.Groups, s.Tenants.LiveIDs())
	s.Index.Load(idxDoc)

	s.APILogs = store.NewAPILogStore(paths.APILogs())
	if err := s.APILogs.Load(logCfg); err != nil {
		return nil, apierr.Wrap(apierr.IO, "load api_logs.json", err)
	}

	s.Transfer = transfer.NewEngine(s.clientFactory, s.Index, transferStore{paths}, transfer.NopSink{})
	s.Transfer.Load(transfersDoc.Tasks)

	s.Sync = syncengine.NewEngine(s.clientFactory, s.Index, syncTaskStore{paths}, syncLogStoreAdapter{paths})
	s.Sync.Load(syncTasksDoc.Tasks, syncLogsDoc.Logs)

	log.Info().Str("dir", dir).Int("tenants", len(tenantsDoc.Tenants)).Msg("state loaded")
	return s, nil
}

// Verify implements dispatch.Verifier by delegating to access.Verify
// against the currently configured Security record.
func (s *State) Verify(apiKey string) (access.Scope, error) {
	s.mu.RLock()
	sec := s.security
	s.mu.RUnlock()
	return access.Verify(apiKey, &sec)
}

// Groups map for access-scope checks (AssertForTenant/AssertForToken).
func (s *State) GroupsByID() map[string]*model.Group {
	return s.Groups.All()
}

func (s *State) LogConfig() model.LogConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logCfg
}

func (s *State) SetLogConfig(cfg model.LogConfig) error {
	cfg.Clamp()
	s.mu.Lock()
	s.logCfg = cfg
	s.mu.Unlock()
	if err := store.Save(s.Paths.LogConfig(), cfg); err != nil {
		return apierr.Wrap(apierr.IO, "save log_config.json", err)
	}
	return nil
}

func (s *State) ServerConfig() model.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srvCfg
}

func (s *State) SetServerConfig(cfg model.ServerConfig) error {
	cfg.Clamp()
	s.mu.Lock()
	s.srvCfg = cfg
	s.mu.Unlock()
	if err := store.Save(s.Paths.APIServerConfig(), cfg); err != nil {
		return apierr.Wrap(apierr.IO, "save api_server.json", err)
	}
	return nil
}

func (s *State) Security() model.Security {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.security
}

func (s *State) SetSecurity(sec model.Security) error {
	s.mu.Lock()
	s.security = sec
	s.mu.Unlock()
	if err := store.Save(s.Paths.Security(), sec); err != nil {
		return apierr.Wrap(apierr.IO, "save security.json", err)
	}
	return nil
}

// SaveTenants persists tenants + groups together, matching tenants.json's
// combined shape.
func (s *State) SaveTenants() error {
	doc := store.TenantsDocument{
		Tenants: s.Tenants.Snapshot(),
		Groups:  s.Groups.Snapshot(),
	}
	if err := store.Save(s.Paths.Tenants(), doc); err != nil {
		return apierr.Wrap(apierr.IO, "save tenants.json", err)
	}
	return nil
}

func (s *State) SaveResourceIndex() error {
	if err := store.Save(s.Paths.ResourceIndex(), store.ResourceIndexDocument(s.Index.Snapshot())); err != nil {
		return apierr.Wrap(apierr.IO, "save resource-index.json", err)
	}
	return nil
}

// fetchToken is the tenant.TokenFetcher wired to the real cloud token
// exchange endpoint.
func fetchToken(ctx context.Context, baseURL, appID, appSecret string) (*cloudapi.TokenExchangeResponse, error) {
	client := cloudapi.New(baseURL, nil)
	return cloudapi.FetchToken(ctx, client, appID, appSecret)
}

// tenantTokenSource implements cloudapi.TokenSource by routing every
// call back through the Registry's lazy-refresh path, so a Client built
// from clientFactory always presents a fresh token.
type tenantTokenSource struct {
	registry *tenant.Registry
	tenantID string
}

func (ts tenantTokenSource) Token(ctx context.Context) (string, error) {
	return ts.registry.EnsureToken(ctx, fetchToken, ts.tenantID)
}

// clientFactory resolves a ready-to-use Client for a tenant, the seam
// both transfer.Engine and sync.Engine are constructed with.
func (s *State) clientFactory(ctx context.Context, tenantID string) (*cloudapi.Client, error) {
	t, ok := s.Tenants.Get(tenantID)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "tenant not found")
	}
	return cloudapi.New(t.Platform.BaseURL(), tenantTokenSource{registry: s.Tenants, tenantID: t.ID}), nil
}

// NewDispatcher builds a dispatcher with every command registered
// against this State, wired as the in-process and HTTP entry point.
func (s *State) NewDispatcher() *dispatch.Dispatcher {
	d := dispatch.New(s, dispatchLogAdapter{s})
	registerCommands(d, s)
	return d
}

// dispatchLogAdapter adapts State.APILogs to dispatch.LogStore.
type dispatchLogAdapter struct{ s *State }

func (a dispatchLogAdapter) Append(entry model.ApiLogEntry) {
	a.s.APILogs.Append(entry)
}
