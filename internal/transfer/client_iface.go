package transfer

import (
	"bytes"
	"context"
	"io"

	"github.com/disconnec/FeiSync/internal/cloudapi"
)

// clientLike is the subset of *cloudapi.Client the transfer engine
// needs, narrowed so upload/download pipelines can be unit tested
// against a fake without a real HTTP server.
type clientLike interface {
	UploadAll(ctx context.Context, fileName, parentNode string, size int64, content io.Reader) (*cloudapi.UploadAllResponse, error)
	UploadPrepare(ctx context.Context, fileName, parentNode string, size int64) (*cloudapi.UploadPrepareResponse, error)
	UploadPart(ctx context.Context, uploadID string, seq int, size int64, checksum uint32, chunk io.Reader) error
	UploadFinish(ctx context.Context, uploadID string, blockNum int) (*cloudapi.UploadFinishResponse, error)
	DownloadFile(ctx context.Context, token string, offset int64) (io.ReadCloser, int64, error)
	CreateFolder(ctx context.Context, name, parentToken string) (string, error)
	ListFolder(ctx context.Context, folderToken, pageToken string) (*cloudapi.ListFolderResponse, error)
	DeleteResource(ctx context.Context, token, resourceType string) error
}

// newByteReader wraps a chunk buffer for a single multipart part body.
func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
