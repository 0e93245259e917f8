package access

import (
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
)

// Verify derives a Scope from a presented API key and the persisted
// Security record. Bootstrap mode (§4.2): if no admin key has ever been
// configured, every caller is promoted to Admin so a fresh install can
// be administered before an operator sets one.
func Verify(apiKey string, sec *model.Security) (Scope, error) {
	if apiKey == "" {
		if adminConfigured(sec) {
			return Scope{}, apierr.New(apierr.AuthRequired, "missing API key")
		}
		return Admin(), nil
	}

	if adminConfigured(sec) {
		if MatchesKey(apiKey, sec.Hash, sec.Plain) {
			return Admin(), nil
		}
	} else {
		// No admin key configured at all: bootstrap mode promotes every
		// caller, including ones presenting an unrecognized key.
		return Admin(), nil
	}

	for _, gk := range sec.GroupKeys {
		if MatchesKey(apiKey, gk.Hash, gk.Plain) {
			return ForGroup(gk.GroupID), nil
		}
	}

	return Scope{}, apierr.New(apierr.AuthDenied, "invalid API key")
}

func adminConfigured(sec *model.Security) bool {
	return sec != nil && (sec.Hash != "" || sec.Plain != "")
}

// AssertForTenant enforces that a Group scope only touches tenants in
// its membership; Admin always passes.
func AssertForTenant(scope Scope, tenantID string, groups map[string]*model.Group) error {
	if scope.IsAdmin() {
		return nil
	}
	g, ok := groups[scope.GroupID]
	if !ok || !g.Contains(tenantID) {
		return apierr.New(apierr.Conflict, "no access to target tenant")
	}
	return nil
}

// TokenResolver resolves a previously-observed resource token to its
// owning tenant id, per the ResourceIndex contract.
type TokenResolver interface {
	Lookup(token string) (tenantID string, ok bool)
}

// AssertForToken routes a token through the ResourceIndex and then
// through AssertForTenant, per §4.2's "token checks route through
// ResourceIndex" rule.
func AssertForToken(scope Scope, token string, idx TokenResolver, groups map[string]*model.Group) (string, error) {
	tenantID, ok := idx.Lookup(token)
	if !ok {
		return "", apierr.New(apierr.NotFound, "unknown resource token; discover it via a listing first")
	}
	if err := AssertForTenant(scope, tenantID, groups); err != nil {
		return "", err
	}
	return tenantID, nil
}
