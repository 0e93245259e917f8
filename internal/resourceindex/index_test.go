package resourceindex

import "testing"

func TestRegisterThenLookup(t *testing.T) {
	idx := New()
	idx.Register("tok-1", "tenant-a")

	tenantID, ok := idx.Lookup("tok-1")
	if !ok || tenantID != "tenant-a" {
		t.Fatalf("expected tok-1 -> tenant-a, got %q, %v", tenantID, ok)
	}
}

func TestLookupUnknownTokenFails(t *testing.T) {
	idx := New()
	if _, ok := idx.Lookup("missing"); ok {
		t.Fatalf("expected lookup of an unregistered token to fail")
	}
}

func TestRegisterManySkipsEmptyTokens(t *testing.T) {
	idx := New()
	idx.RegisterMany([]string{"a", "", "b"}, "tenant-x")

	for _, tok := range []string{"a", "b"} {
		if _, ok := idx.Lookup(tok); !ok {
			t.Fatalf("expected %s to be registered", tok)
		}
	}
	if _, ok := idx.Lookup(""); ok {
		t.Fatalf("empty token should never be registered")
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	idx := New()
	idx.Register("tok", "tenant-a")
	idx.Remove("tok")
	if _, ok := idx.Lookup("tok"); ok {
		t.Fatalf("expected tok to be removed")
	}
}

func TestSnapshotAndLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Register("tok", "tenant-a")
	snap := idx.Snapshot()

	fresh := New()
	fresh.Load(snap)

	tenantID, ok := fresh.Lookup("tok")
	if !ok || tenantID != "tenant-a" {
		t.Fatalf("expected loaded index to preserve tok -> tenant-a")
	}
}
