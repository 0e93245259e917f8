package cloudapi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/disconnec/FeiSync/internal/apierr"
)

// rawDownload issues the streaming GET used by DownloadFile. It is kept
// separate from doJSON because the response body is the file's bytes,
// not an {code,msg,data} envelope, and must be streamed rather than
// buffered.
func (c *Client) rawDownload(ctx context.Context, token, path string, offset int64) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.Upstream, "download request failed", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, 0, apierr.New(apierr.Upstream, fmt.Sprintf("download returned %d", resp.StatusCode))
	}

	total := resp.ContentLength
	if offset > 0 {
		// Content-Length on a 206 response is the remaining bytes; the
		// caller (engine) adds offset back to learn the full size when
		// it was previously unknown.
		if total < 0 {
			if cr := resp.Header.Get("Content-Range"); cr != "" {
				if n, err := parseContentRangeTotal(cr); err == nil {
					total = n - offset
				}
			}
		}
	}
	return resp.Body, total, nil
}

func parseContentRangeTotal(cr string) (int64, error) {
	// Format: "bytes start-end/total"
	var start, end, total int64
	_, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
