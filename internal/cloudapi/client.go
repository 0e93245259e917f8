package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/rs/zerolog/log"
)

// TokenSource supplies the bearer token for the tenant a Client is
// scoped to, refreshing it lazily the way the Tenant Registry does.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is a per-tenant HTTP client: fixed base URL, bearer injection,
// and a retryable request builder wrapping cenkalti/backoff. One Client
// is constructed per cloud API call site (or cached per tenant) rather
// than shared globally, since the base URL and token source differ by
// tenant.
type Client struct {
	BaseURL string
	Tokens  TokenSource
	HTTP    *http.Client
}

// New constructs a Client for one tenant's platform base URL.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL: baseURL,
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// retryPolicy builds the exponential backoff used by every outbound
// call: up to 3 attempts, capped at 10s total elapsed time. Only
// transport errors and 5xx responses are retried; the caller signals a
// non-retryable failure by returning a *backoff.PermanentError.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

// doJSON issues a JSON request (GET if body is nil, POST otherwise) to
// path relative to BaseURL, retrying transport/5xx failures, and
// decodes the envelope's Data into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apierr.Wrap(apierr.BadInput, "encode request body", err)
		}
		bodyBytes = b
	}

	var env Envelope
	op := func() error {
		token, err := c.Tokens.Token(ctx)
		if err != nil {
			return backoff.Permanent(apierr.Wrap(apierr.Upstream, "resolve tenant token", err))
		}

		u := c.BaseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("cloud api transport error, retrying")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("cloud api %s returned %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(apierr.New(apierr.Upstream, fmt.Sprintf("cloud api %s returned %d", path, resp.StatusCode)))
		}

		var e Envelope
		if err := json.Unmarshal(data, &e); err != nil {
			return backoff.Permanent(apierr.Wrap(apierr.Upstream, "decode cloud api response", err))
		}
		if e.Err() != nil {
			// A non-zero code is a credential/validation failure, not a
			// transient one: don't retry it.
			return backoff.Permanent(apierr.Wrap(apierr.Upstream, "cloud api", e.Err()))
		}
		env = e
		return nil
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		if ae, ok := apierr.As(err); ok {
			return ae
		}
		return apierr.Wrap(apierr.Upstream, "cloud api request failed", err)
	}

	if out != nil {
		return env.Decode(out)
	}
	return nil
}

// multipartField is one field of a multipart upload request; Value
// holds either a plain string or (when Reader is set) a file part.
type multipartField struct {
	Name   string
	Value  string
	Reader io.Reader
	Filename string
}

// doMultipart issues a multipart/form-data POST, used by upload_all and
// upload_part. It is not retried: a chunk upload that partially lands on
// a dropped connection must not be silently re-sent (the resume flow
// handles reattachment via a new seq, per the engine's ordering rule).
func (c *Client) doMultipart(ctx context.Context, path string, fields []multipartField, out any) error {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, "resolve tenant token", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.Reader != nil {
			part, err := w.CreateFormFile(f.Name, f.Filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f.Reader); err != nil {
				return apierr.Wrap(apierr.IO, "stream multipart chunk", err)
			}
			continue
		}
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, "cloud api multipart request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return apierr.New(apierr.Upstream, fmt.Sprintf("cloud api %s returned %d", path, resp.StatusCode))
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return apierr.Wrap(apierr.Upstream, "decode cloud api response", err)
	}
	if out != nil {
		return e.Decode(out)
	}
	return e.Err()
}
