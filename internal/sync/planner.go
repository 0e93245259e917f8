package sync

import (
	"fmt"

	"github.com/disconnec/FeiSync/internal/model"
)

// Plan is what a directional planner produces: a complete description of
// the work for one run, executed by the engine in the fixed order
// uploads, downloads, remote deletes, local deletes.
type Plan struct {
	Uploads        []string
	Downloads      []string
	RemoteRemovals []string
	LocalRemovals  []string
	ConflictLogs   []string
}

func (p *Plan) logf(format string, args ...any) {
	p.ConflictLogs = append(p.ConflictLogs, fmt.Sprintf(format, args...))
}

// planLocalToCloud uploads anything local that is new or changed relative
// to remote, and — only once a baseline exists — deletes remote paths no
// longer present locally.
func planLocalToCloud(local, remote map[string]model.SnapshotEntry, hasSnapshots, propagateDelete bool) Plan {
	var p Plan
	for path, le := range local {
		re, ok := remote[path]
		if !ok || !equal(le, re) {
			p.Uploads = append(p.Uploads, path)
		}
	}
	if hasSnapshots && propagateDelete {
		for path := range remote {
			if _, ok := local[path]; !ok {
				p.RemoteRemovals = append(p.RemoteRemovals, path)
			}
		}
	}
	return p
}

// planCloudToLocal is the symmetric mirror of planLocalToCloud.
func planCloudToLocal(local, remote map[string]model.SnapshotEntry, hasSnapshots, propagateDelete bool) Plan {
	var p Plan
	for path, re := range remote {
		le, ok := local[path]
		if !ok || !equal(le, re) {
			p.Downloads = append(p.Downloads, path)
		}
	}
	if hasSnapshots && propagateDelete {
		for path := range local {
			if _, ok := remote[path]; !ok {
				p.LocalRemovals = append(p.LocalRemovals, path)
			}
		}
	}
	return p
}

// planBidirectional is the four-way comparison against both current
// snapshots and the previous run's agreed state, resolving paths that
// changed on both sides via the task's configured conflict strategy.
func planBidirectional(local, remote, prevLocal, prevRemote map[string]model.SnapshotEntry, conflict model.ConflictStrategy, propagateDelete bool) Plan {
	var p Plan
	for _, path := range unionPaths(local, remote, prevLocal, prevRemote) {
		curLocal := entryPtr(local, path)
		curRemote := entryPtr(remote, path)
		prevL := entryPtr(prevLocal, path)
		prevR := entryPtr(prevRemote, path)

		if curLocal != nil && curRemote != nil && equal(*curLocal, *curRemote) && prevAgreed(prevL, prevR) {
			continue
		}

		localChanged := changed(curLocal, prevL)
		remoteChanged := changed(curRemote, prevR)

		switch {
		case localChanged && !remoteChanged:
			propagateOneSided(&p, path, curLocal, curRemote, true, propagateDelete)
		case remoteChanged && !localChanged:
			propagateOneSided(&p, path, curLocal, curRemote, false, propagateDelete)
		case localChanged && remoteChanged:
			resolveConflict(&p, path, curLocal, curRemote, prevL, prevR, conflict, propagateDelete)
		default:
			// Neither side changed since the last agreed snapshot, but the
			// two current sides disagree (a stale/never-synced entry with
			// no previous baseline on one side). Treat as a one-sided
			// propagation favoring whichever side currently has data.
			if curLocal != nil && curRemote == nil {
				p.Uploads = append(p.Uploads, path)
			} else if curRemote != nil && curLocal == nil {
				p.Downloads = append(p.Downloads, path)
			} else if curLocal != nil && curRemote != nil {
				p.Uploads = append(p.Uploads, path)
			}
		}
	}
	return p
}

// propagateOneSided pushes the side that changed: upload/download on a
// modification, delete the other side on a disappearance (gated by
// propagateDelete), matching the Local<->Cloud one-directional rules.
func propagateOneSided(p *Plan, path string, curLocal, curRemote *model.SnapshotEntry, localSideChanged, propagateDelete bool) {
	if localSideChanged {
		if curLocal != nil {
			p.Uploads = append(p.Uploads, path)
		} else if propagateDelete {
			p.RemoteRemovals = append(p.RemoteRemovals, path)
		}
		return
	}
	if curRemote != nil {
		p.Downloads = append(p.Downloads, path)
	} else if propagateDelete {
		p.LocalRemovals = append(p.LocalRemovals, path)
	}
}

// conflictOutcome is the action a conflict resolution settles on, kept
// distinct from the narrower local/remote current-vs-previous plumbing
// above so describeConflictAction can render it uniformly regardless of
// which strategy produced it.
type conflictOutcome int

const (
	outcomeUpload conflictOutcome = iota
	outcomeDownload
	outcomeDeleteLocal
	outcomeDeleteRemote
	outcomeSkip
)

// describeConflictAction renders the exact narrative text a conflict
// resolution logs, matching the original implementation's
// describe_conflict_action so an operator reading sync_logs sees the
// same outcome strings regardless of the configured conflict strategy.
func describeConflictAction(o conflictOutcome) string {
	switch o {
	case outcomeUpload:
		return "以本地版本覆盖云端"
	case outcomeDownload:
		return "以云端版本覆盖本地"
	case outcomeDeleteLocal:
		return "按云端删除同步删除本地"
	case outcomeDeleteRemote:
		return "按本地删除同步删除云端"
	default:
		return "冲突暂不处理"
	}
}

func resolveConflict(p *Plan, path string, curLocal, curRemote, prevL, prevR *model.SnapshotEntry, conflict model.ConflictStrategy, propagateDelete bool) {
	switch conflict {
	case model.ConflictPreferLocal:
		if curLocal != nil {
			p.Uploads = append(p.Uploads, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeUpload))
		} else if propagateDelete {
			p.RemoteRemovals = append(p.RemoteRemovals, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeDeleteRemote))
		} else {
			p.logf("%s -> %s", path, describeConflictAction(outcomeSkip))
		}
	case model.ConflictPreferRemote:
		if curRemote != nil {
			p.Downloads = append(p.Downloads, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeDownload))
		} else if propagateDelete {
			p.LocalRemovals = append(p.LocalRemovals, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeDeleteLocal))
		} else {
			p.logf("%s -> %s", path, describeConflictAction(outcomeSkip))
		}
	default: // model.ConflictNewest
		resolveNewest(p, path, curLocal, curRemote, prevL, prevR, propagateDelete)
	}
}

func resolveNewest(p *Plan, path string, curLocal, curRemote, prevL, prevR *model.SnapshotEntry, propagateDelete bool) {
	localTime, localOK := effectiveModTime(curLocal, prevL)
	remoteTime, remoteOK := effectiveModTime(curRemote, prevR)

	localWins := false
	switch {
	case localOK && remoteOK && !localTime.Equal(remoteTime):
		localWins = localTime.After(remoteTime)
	case localOK && remoteOK:
		// Exact tie on mtime: fall through to size comparison below.
		localSize, _ := effectiveSize(curLocal, prevL)
		remoteSize, _ := effectiveSize(curRemote, prevR)
		localWins = localSize >= remoteSize
	default:
		// Unknown mtime on at least one side: larger size wins.
		localSize, _ := effectiveSize(curLocal, prevL)
		remoteSize, _ := effectiveSize(curRemote, prevR)
		localWins = localSize >= remoteSize
	}

	if localWins {
		if curLocal != nil {
			p.Uploads = append(p.Uploads, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeUpload))
		} else if propagateDelete {
			p.RemoteRemovals = append(p.RemoteRemovals, path)
			p.logf("%s -> %s", path, describeConflictAction(outcomeDeleteRemote))
		} else {
			p.logf("%s -> %s", path, describeConflictAction(outcomeSkip))
		}
		return
	}
	if curRemote != nil {
		p.Downloads = append(p.Downloads, path)
		p.logf("%s -> %s", path, describeConflictAction(outcomeDownload))
	} else if propagateDelete {
		p.LocalRemovals = append(p.LocalRemovals, path)
		p.logf("%s -> %s", path, describeConflictAction(outcomeDeleteLocal))
	} else {
		p.logf("%s -> %s", path, describeConflictAction(outcomeSkip))
	}
}
