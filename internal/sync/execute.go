package sync

import (
	"bytes"
	"context"
	"hash/adler32"
	"io"
	"os"
	"path/filepath"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/cloudapi"
)

// syncClient is the cloudapi surface a sync run needs. Narrowed to an
// interface so planning/execution can be exercised against a fake in
// tests, the same reasoning as transfer.clientLike.
type syncClient interface {
	remoteClient
	CreateFolder(ctx context.Context, name, parentToken string) (string, error)
	UploadAll(ctx context.Context, fileName, parentNode string, size int64, content io.Reader) (*cloudapi.UploadAllResponse, error)
	UploadPrepare(ctx context.Context, fileName, parentNode string, size int64) (*cloudapi.UploadPrepareResponse, error)
	UploadPart(ctx context.Context, uploadID string, seq int, size int64, checksum uint32, chunk io.Reader) error
	UploadFinish(ctx context.Context, uploadID string, blockNum int) (*cloudapi.UploadFinishResponse, error)
	DownloadFile(ctx context.Context, token string, offset int64) (io.ReadCloser, int64, error)
	DeleteResource(ctx context.Context, token, resourceType string) error
}

const (
	smallFileThreshold = 20 * 1024 * 1024
	defaultBlockSize   = 4 * 1024 * 1024
	partSuffix         = ".feisync.part"
)

// ensureRemoteParent walks rel's ancestor directories shallowest-first,
// consulting folderTokens and creating any that don't yet exist, so the
// planner's folder cache only ever grows during a run.
func ensureRemoteParent(ctx context.Context, client syncClient, folderTokens map[string]string, rel string) (string, error) {
	parent := ""
	for _, dir := range parentDirs(rel) {
		if _, ok := folderTokens[dir]; ok {
			parent = dir
			continue
		}
		parentTok := folderTokens[parent]
		name := filepath.Base(dir)
		tok, err := client.CreateFolder(ctx, name, parentTok)
		if err != nil {
			return "", apierr.Wrap(apierr.Upstream, "create remote directory", err)
		}
		folderTokens[dir] = tok
		parent = dir
	}
	if parent == "" {
		return folderTokens[""], nil
	}
	return folderTokens[parent], nil
}

// uploadFile runs the single/chunked upload pipeline for one path and
// returns its new remote token and size, for the caller to fold into the
// next remote snapshot.
func uploadFile(ctx context.Context, client syncClient, localRoot, rel, parentToken string) (token string, size int64, err error) {
	full := filepath.Join(localRoot, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return "", 0, apierr.Wrap(apierr.IO, "stat local file", err)
	}
	size = info.Size()

	f, err := os.Open(full)
	if err != nil {
		return "", 0, apierr.Wrap(apierr.IO, "open local file", err)
	}
	defer f.Close()

	name := filepath.Base(rel)
	if size <= smallFileThreshold {
		resp, err := client.UploadAll(ctx, name, parentToken, size, f)
		if err != nil {
			return "", 0, apierr.Wrap(apierr.Upstream, "upload_all", err)
		}
		return resp.FileToken, size, nil
	}

	prep, err := client.UploadPrepare(ctx, name, parentToken, size)
	if err != nil {
		return "", 0, apierr.Wrap(apierr.Upstream, "upload_prepare", err)
	}
	blockSize := prep.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	blockNum := int((size + blockSize - 1) / blockSize)
	buf := make([]byte, blockSize)
	for seq := 0; seq < blockNum; seq++ {
		remaining := size - int64(seq)*blockSize
		chunkLen := blockSize
		if remaining < chunkLen {
			chunkLen = remaining
		}
		n, rerr := io.ReadFull(f, buf[:chunkLen])
		if rerr != nil && rerr != io.ErrUnexpectedEOF && n == 0 {
			return "", 0, apierr.Wrap(apierr.IO, "read chunk", rerr)
		}
		sum := adler32.Checksum(buf[:n])
		if err := client.UploadPart(ctx, prep.UploadID, seq, int64(n), sum, bytes.NewReader(buf[:n])); err != nil {
			return "", 0, apierr.Wrap(apierr.Upstream, "upload_part", err)
		}
	}
	finish, err := client.UploadFinish(ctx, prep.UploadID, blockNum)
	if err != nil {
		return "", 0, apierr.Wrap(apierr.Upstream, "upload_finish", err)
	}
	return finish.FileToken, size, nil
}

// downloadFile streams token to localRoot/rel via a temp file, renaming
// into place on success; it pre-creates rel's parent directory.
func downloadFile(ctx context.Context, client syncClient, localRoot, rel, token string) (int64, error) {
	full := filepath.Join(localRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, apierr.Wrap(apierr.IO, "create local directory", err)
	}

	body, _, err := client.DownloadFile(ctx, token, 0)
	if err != nil {
		return 0, apierr.Wrap(apierr.Upstream, "download", err)
	}
	defer body.Close()

	tmp := full + partSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return 0, apierr.Wrap(apierr.IO, "create temp file", err)
	}
	n, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return 0, apierr.Wrap(apierr.IO, "stream file", copyErr)
	}
	if closeErr != nil {
		return 0, apierr.Wrap(apierr.IO, "close temp file", closeErr)
	}
	if err := os.Rename(tmp, full); err != nil {
		return 0, apierr.Wrap(apierr.IO, "rename into place", err)
	}
	return n, nil
}

func deleteRemoteFile(ctx context.Context, client syncClient, token string) error {
	if err := client.DeleteResource(ctx, token, "file"); err != nil {
		return apierr.Wrap(apierr.Upstream, "delete remote file", err)
	}
	return nil
}

func deleteLocalFile(localRoot, rel string) error {
	full := filepath.Join(localRoot, filepath.FromSlash(rel))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.IO, "delete local file", err)
	}
	return nil
}
