package sync

import (
	"time"

	"github.com/disconnec/FeiSync/internal/model"
)

// mtimeSkew is the tolerance window for two timestamps to be treated as
// equal, absorbing filesystem and cloud-API clock rounding.
const mtimeSkew = 2 * time.Second

// equal implements the spec's snapshot equality: either side's size
// unknown, or sizes match; and either side's mtime unknown, or the two
// differ by no more than mtimeSkew.
func equal(a, b model.SnapshotEntry) bool {
	if a.Size != nil && b.Size != nil && *a.Size != *b.Size {
		return false
	}
	if a.ModifiedAt != nil && b.ModifiedAt != nil {
		delta := a.ModifiedAt.Sub(*b.ModifiedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > mtimeSkew {
			return false
		}
	}
	return true
}

// changed reports whether an entry differs from its previous-run
// counterpart: existence flips either way count as a change, and a
// present-both-sides comparison falls back to equal().
func changed(curr, prev *model.SnapshotEntry) bool {
	if curr == nil && prev == nil {
		return false
	}
	if (curr == nil) != (prev == nil) {
		return true
	}
	return !equal(*curr, *prev)
}

// prevAgreed reports whether the previous run's two snapshots recorded
// the same state for a path: both absent (never tracked, e.g. a first
// run where the current sides just happen to already match), or both
// present and equal to each other.
func prevAgreed(prevL, prevR *model.SnapshotEntry) bool {
	if prevL == nil && prevR == nil {
		return true
	}
	if prevL == nil || prevR == nil {
		return false
	}
	return equal(*prevL, *prevR)
}

// effectiveModTime resolves the mtime to compare for conflict resolution:
// the current entry's if present, else the previous snapshot's, so a
// deleted side still has a usable timestamp for the "newest wins" rule.
func effectiveModTime(curr, prev *model.SnapshotEntry) (time.Time, bool) {
	if curr != nil && curr.ModifiedAt != nil {
		return *curr.ModifiedAt, true
	}
	if prev != nil && prev.ModifiedAt != nil {
		return *prev.ModifiedAt, true
	}
	return time.Time{}, false
}

func effectiveSize(curr, prev *model.SnapshotEntry) (int64, bool) {
	if curr != nil && curr.Size != nil {
		return *curr.Size, true
	}
	if prev != nil && prev.Size != nil {
		return *prev.Size, true
	}
	return 0, false
}

func entryPtr(m map[string]model.SnapshotEntry, path string) *model.SnapshotEntry {
	if e, ok := m[path]; ok {
		cp := e
		return &cp
	}
	return nil
}

// unionPaths returns the set union of every path key across the given
// maps, used to iterate local ∪ remote ∪ prev_local ∪ prev_remote once.
func unionPaths(maps ...map[string]model.SnapshotEntry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range maps {
		for p := range m {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out
}
