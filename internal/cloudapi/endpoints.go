package cloudapi

import (
	"context"
	"io"
	"net/url"
	"strconv"
)

// TokenExchangeResponse is the token-fetch result from
// auth/v3/tenant_access_token/internal.
type TokenExchangeResponse struct {
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

// FetchToken exchanges app credentials for a tenant access token. There
// is no tenant token yet, so it replaces c.Tokens with an empty-token
// source before issuing the request; c is left holding that source.
func FetchToken(ctx context.Context, c *Client, appID, appSecret string) (*TokenExchangeResponse, error) {
	var out TokenExchangeResponse
	// Token exchange has no bearer token yet; route it through a
	// TokenSource that returns empty so doJSON's bearer value is blank.
	// doJSON rejects a code != 0 envelope and decodes its data into out.
	c.Tokens = staticToken("")
	err := c.doJSON(ctx, "POST", "/open-apis/auth/v3/tenant_access_token/internal", nil, map[string]string{
		"app_id":     appID,
		"app_secret": appSecret,
	}, &out)
	return &out, err
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// RootFolderMeta is the response from drive/explorer/v2/root_folder/meta.
type RootFolderMeta struct {
	Token string `json:"token"`
}

func (c *Client) RootFolder(ctx context.Context) (*RootFolderMeta, error) {
	var out RootFolderMeta
	err := c.doJSON(ctx, "GET", "/open-apis/drive/explorer/v2/root_folder/meta", nil, nil, &out)
	return &out, err
}

// FileEntry is one row of a folder listing.
type FileEntry struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Type  string `json:"type"` // "file" or "folder"
}

// ListFolderResponse is the response from drive/v1/files.
type ListFolderResponse struct {
	Files     []FileEntry `json:"files"`
	NextPageToken string  `json:"next_page_token"`
	HasMore   bool        `json:"has_more"`
}

func (c *Client) ListFolder(ctx context.Context, folderToken, pageToken string) (*ListFolderResponse, error) {
	q := url.Values{"folder_token": {folderToken}}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	var out ListFolderResponse
	err := c.doJSON(ctx, "GET", "/open-apis/drive/v1/files", q, nil, &out)
	return &out, err
}

// FileMeta is one row of a batch_query response: size and modified time
// for a resource token.
type FileMeta struct {
	Token      string `json:"token"`
	Size       int64  `json:"size"`
	ModifiedAt int64  `json:"latest_modify_time"` // unix seconds, UTC
}

// BatchQueryMetas enriches up to 200 tokens at a time with size/mtime,
// per the documented batch cap.
func (c *Client) BatchQueryMetas(ctx context.Context, tokens []string) ([]FileMeta, error) {
	const batchSize = 200
	var out []FileMeta
	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		var resp struct {
			Metas []FileMeta `json:"metas"`
		}
		err := c.doJSON(ctx, "POST", "/open-apis/drive/v1/metas/batch_query", nil, map[string]any{
			"request_docs": tokens[start:end],
		}, &resp)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Metas...)
	}
	return out, nil
}

// UploadAllResponse is the response from upload_all (small-file path).
type UploadAllResponse struct {
	FileToken string `json:"file_token"`
}

// UploadAll performs the single multipart POST used for files <= 20 MiB.
func (c *Client) UploadAll(ctx context.Context, fileName, parentNode string, size int64, content io.Reader) (*UploadAllResponse, error) {
	var out UploadAllResponse
	err := c.doMultipart(ctx, "/open-apis/drive/v1/files/upload_all", []multipartField{
		{Name: "file_name", Value: fileName},
		{Name: "parent_type", Value: "explorer"},
		{Name: "parent_node", Value: parentNode},
		{Name: "size", Value: strconv.FormatInt(size, 10)},
		{Name: "file", Reader: content, Filename: fileName},
	}, &out)
	return &out, err
}

// UploadPrepareResponse is the response from upload_prepare.
type UploadPrepareResponse struct {
	UploadID  string `json:"upload_id"`
	BlockSize int64  `json:"block_size"`
	BlockNum  int    `json:"block_num"`
}

func (c *Client) UploadPrepare(ctx context.Context, fileName, parentNode string, size int64) (*UploadPrepareResponse, error) {
	var out UploadPrepareResponse
	err := c.doJSON(ctx, "POST", "/open-apis/drive/v1/files/upload_prepare", nil, map[string]any{
		"file_name":   fileName,
		"parent_type": "explorer",
		"parent_node": parentNode,
		"size":        size,
	}, &out)
	return &out, err
}

// UploadPart POSTs one chunk, checksummed by the caller (Adler-32 per
// spec §4.3), for seq in [0, block_num).
func (c *Client) UploadPart(ctx context.Context, uploadID string, seq int, size int64, checksum uint32, chunk io.Reader) error {
	return c.doMultipart(ctx, "/open-apis/drive/v1/files/upload_part", []multipartField{
		{Name: "upload_id", Value: uploadID},
		{Name: "seq", Value: strconv.Itoa(seq)},
		{Name: "size", Value: strconv.FormatInt(size, 10)},
		{Name: "checksum", Value: strconv.FormatUint(uint64(checksum), 10)},
		{Name: "file", Reader: chunk, Filename: "chunk"},
	}, nil)
}

// UploadFinishResponse is the response from upload_finish, carrying the
// newly minted file token.
type UploadFinishResponse struct {
	FileToken string `json:"file_token"`
}

func (c *Client) UploadFinish(ctx context.Context, uploadID string, blockNum int) (*UploadFinishResponse, error) {
	var out UploadFinishResponse
	err := c.doJSON(ctx, "POST", "/open-apis/drive/v1/files/upload_finish", nil, map[string]any{
		"upload_id": uploadID,
		"block_num": blockNum,
	}, &out)
	return &out, err
}

// DownloadFile issues the raw GET for a file's bytes, honoring a Range
// header when offset > 0 (resume). The caller is responsible for
// streaming resp.Body to disk and closing it.
func (c *Client) DownloadFile(ctx context.Context, token string, offset int64) (body io.ReadCloser, contentLength int64, err error) {
	tok, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}
	return c.rawDownload(ctx, tok, "/open-apis/drive/v1/files/"+token+"/download", offset)
}

func (c *Client) CreateFolder(ctx context.Context, name, parentToken string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.doJSON(ctx, "POST", "/open-apis/drive/v1/files/create_folder", nil, map[string]string{
		"name":        name,
		"folder_token": parentToken,
	}, &out)
	return out.Token, err
}

func (c *Client) DeleteResource(ctx context.Context, token, resourceType string) error {
	q := url.Values{"type": {resourceType}}
	return c.doJSON(ctx, "DELETE", "/open-apis/drive/v1/files/"+token, q, nil, nil)
}

func (c *Client) MoveResource(ctx context.Context, token, destFolderToken string) error {
	return c.doJSON(ctx, "POST", "/open-apis/drive/v1/files/"+token+"/move", nil, map[string]string{
		"folder_token": destFolderToken,
	}, nil)
}

func (c *Client) CopyResource(ctx context.Context, token, destFolderToken, name string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.doJSON(ctx, "POST", "/open-apis/drive/v1/files/"+token+"/copy", nil, map[string]string{
		"folder_token": destFolderToken,
		"name":         name,
	}, &out)
	return out.Token, err
}

func (c *Client) Rename(ctx context.Context, kind, token, name string) error {
	return c.doJSON(ctx, "PATCH", "/open-apis/drive/explorer/v2/"+kind+"/"+token, nil, map[string]string{
		"name": name,
	}, nil)
}
