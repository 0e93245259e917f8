// Package sync implements the three-way directory synchronization engine:
// scanning local and remote trees into comparable snapshots, diffing them
// against the previous run, planning a set of transfers/deletions per
// direction, and executing that plan with this package's own upload,
// download and delete helpers (execute.go), not the transfer engine.
package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
)

// filterSet bundles a sync task's include/exclude globs for one scan.
type filterSet struct {
	include []string
	exclude []string
}

func (f filterSet) allows(relPath string) bool {
	if len(f.include) > 0 {
		matched := false
		for _, pat := range f.include {
			if ok, _ := doublestar.Match(pat, relPath); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range f.exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	return true
}

// scanLocal walks root, returning one SnapshotEntry per regular file that
// passes the filter set. Paths are normalized to forward slashes so they
// compare directly against remote paths regardless of host OS.
func scanLocal(root string, filters filterSet) ([]model.SnapshotEntry, error) {
	var out []model.SnapshotEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !filters.allows(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size := info.Size()
		mtime := info.ModTime().UTC()
		out = append(out, model.SnapshotEntry{
			Path:       rel,
			Size:       &size,
			ModifiedAt: &mtime,
			EntryType:  model.EntryFile,
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []model.SnapshotEntry{}, nil
		}
		return nil, apierr.Wrap(apierr.IO, "scan local directory", err)
	}
	return out, nil
}

// remoteClient is the narrow cloudapi surface the scanner needs, so it can
// be faked in tests without a real HTTP server.
type remoteClient interface {
	ListFolder(ctx context.Context, folderToken, pageToken string) (*cloudapi.ListFolderResponse, error)
	BatchQueryMetas(ctx context.Context, tokens []string) ([]cloudapi.FileMeta, error)
}

// scanRemote BFS-walks the remote tree rooted at folderToken, returning
// filtered file entries plus a path -> folder_token map seeded with ""
// (the root itself), so planners can resolve or create parent folders
// without re-walking.
func scanRemote(ctx context.Context, client remoteClient, folderToken string, filters filterSet) ([]model.SnapshotEntry, map[string]string, error) {
	type queued struct {
		token string
		path  string
	}
	folderTokens := map[string]string{"": folderToken}
	queue := []queued{{token: folderToken, path: ""}}

	type fileRef struct {
		rel   string
		entry cloudapi.FileEntry
	}
	var fileRefs []fileRef

	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]

		pageToken := ""
		for {
			resp, err := client.ListFolder(ctx, job.token, pageToken)
			if err != nil {
				return nil, nil, apierr.Wrap(apierr.Upstream, "list remote folder", err)
			}
			for _, entry := range resp.Files {
				rel := entry.Name
				if job.path != "" {
					rel = job.path + "/" + entry.Name
				}
				if entry.Type == "folder" {
					folderTokens[rel] = entry.Token
					queue = append(queue, queued{token: entry.Token, path: rel})
					continue
				}
				if !filters.allows(rel) {
					continue
				}
				fileRefs = append(fileRefs, fileRef{rel: rel, entry: entry})
			}
			if !resp.HasMore || resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
	}

	tokens := make([]string, len(fileRefs))
	for i, fr := range fileRefs {
		tokens[i] = fr.entry.Token
	}
	metas, err := client.BatchQueryMetas(ctx, tokens)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.Upstream, "batch query metas", err)
	}
	metaByToken := make(map[string]cloudapi.FileMeta, len(metas))
	for _, m := range metas {
		metaByToken[m.Token] = m
	}

	out := make([]model.SnapshotEntry, 0, len(fileRefs))
	for _, fr := range fileRefs {
		entry := model.SnapshotEntry{
			Path:      fr.rel,
			Token:     fr.entry.Token,
			EntryType: model.EntryFile,
		}
		if m, ok := metaByToken[fr.entry.Token]; ok {
			size := m.Size
			entry.Size = &size
			if m.ModifiedAt > 0 {
				mt := time.Unix(m.ModifiedAt, 0).UTC()
				entry.ModifiedAt = &mt
			}
		}
		out = append(out, entry)
	}
	return out, folderTokens, nil
}

func indexByPath(entries []model.SnapshotEntry) map[string]model.SnapshotEntry {
	m := make(map[string]model.SnapshotEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// parentDirs returns every ancestor directory of rel, shallowest first,
// e.g. "a/b/c.txt" -> ["a", "a/b"].
func parentDirs(rel string) []string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	var out []string
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}
