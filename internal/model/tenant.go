package model

import "time"

// Platform selects which cloud-drive host a Tenant talks to. The open
// platform and the internal platform expose the same API shape under
// different base URLs.
type Platform string

const (
	PlatformOpen     Platform = "open"
	PlatformInternal Platform = "internal"
)

// BaseURL resolves the platform selector to the host used to build every
// open-apis request for a Tenant.
func (p Platform) BaseURL() string {
	switch p {
	case PlatformInternal:
		return "https://internal-api.feishu.cn"
	default:
		return "https://open.feishu.cn"
	}
}

// AccessPermission is the write posture granted to a Tenant.
type AccessPermission string

const (
	PermissionReadWrite AccessPermission = "read_write"
	PermissionReadOnly  AccessPermission = "read_only"
)

// tokenStaleWindow is how long before expiry a cached token is treated as
// unusable, so a refresh has time to land before the upstream actually
// rejects it.
const tokenStaleWindow = 30 * time.Minute

// Tenant is one configured cloud-drive application identity.
type Tenant struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	AppID      string           `json:"app_id"`
	AppSecret  string           `json:"app_secret"`
	Platform   Platform         `json:"platform"`
	QuotaBytes int64            `json:"quota_bytes"`
	UsedBytes  int64            `json:"used_bytes"`
	Active     bool             `json:"active"`
	Permission AccessPermission `json:"permission"`
	Order      int              `json:"order"`

	AccessToken    string    `json:"access_token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
}

// NeedsRefresh reports whether the cached token is absent or within the
// stale window of its expiry.
func (t *Tenant) NeedsRefresh() bool {
	if t.AccessToken == "" {
		return true
	}
	return time.Until(t.TokenExpiresAt) < tokenStaleWindow
}

// Writable reports whether the tenant currently accepts mutating ops.
func (t *Tenant) Writable() bool {
	return t.Active && t.Permission != PermissionReadOnly
}

// Public is the subset of Tenant exposed to non-admin callers and to any
// listing that need not carry credentials.
type Public struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Platform   Platform         `json:"platform"`
	QuotaBytes int64            `json:"quota_bytes"`
	UsedBytes  int64            `json:"used_bytes"`
	Active     bool             `json:"active"`
	Permission AccessPermission `json:"permission"`
	Order      int              `json:"order"`
}

// ToPublic strips credentials and the cached token for external display.
func (t *Tenant) ToPublic() Public {
	return Public{
		ID:         t.ID,
		Name:       t.Name,
		Platform:   t.Platform,
		QuotaBytes: t.QuotaBytes,
		UsedBytes:  t.UsedBytes,
		Active:     t.Active,
		Permission: t.Permission,
		Order:      t.Order,
	}
}

// Detail is the richer admin-only view of a Tenant returned by
// get_tenant_detail: unlike Public, it carries AppID/AppSecret so an
// operator can verify or copy the credentials currently on file.
type Detail struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	AppID      string           `json:"app_id"`
	AppSecret  string           `json:"app_secret"`
	Platform   Platform         `json:"platform"`
	QuotaBytes int64            `json:"quota_bytes"`
	UsedBytes  int64            `json:"used_bytes"`
	Active     bool             `json:"active"`
	Permission AccessPermission `json:"permission"`
	Order      int              `json:"order"`
}

// ToDetail builds the admin-only detail view.
func (t *Tenant) ToDetail() Detail {
	return Detail{
		ID:         t.ID,
		Name:       t.Name,
		AppID:      t.AppID,
		AppSecret:  t.AppSecret,
		Platform:   t.Platform,
		QuotaBytes: t.QuotaBytes,
		UsedBytes:  t.UsedBytes,
		Active:     t.Active,
		Permission: t.Permission,
		Order:      t.Order,
	}
}
