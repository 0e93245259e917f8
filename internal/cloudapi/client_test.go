package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/disconnec/FeiSync/internal/apierr"
)

func TestDoJSONDecodesSuccessEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token header, got %q", got)
		}
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"name":"ada"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	var out struct {
		Name string `json:"name"`
	}
	if err := c.doJSON(context.Background(), http.MethodGet, "/whoami", nil, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "ada" {
		t.Fatalf("expected decoded data, got %+v", out)
	}
}

func TestDoJSONNonZeroCodeIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"code":403,"msg":"forbidden"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), http.MethodGet, "/thing", nil, nil, nil)
	if err == nil {
		t.Fatalf("expected error from non-zero envelope code")
	}
	if e, ok := apierr.As(err); !ok || e.Kind != apierr.Upstream {
		t.Fatalf("expected Upstream kind, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable envelope error, got %d", hits)
	}
}

func TestDoJSONHTTP4xxIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), http.MethodGet, "/thing", nil, nil, nil)
	if err == nil {
		t.Fatalf("expected error from 404")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one attempt for a 4xx, got %d", hits)
	}
}

func TestDoJSONRetriesOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"code":0,"msg":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	if err := c.doJSON(context.Background(), http.MethodGet, "/thing", nil, nil, nil); err != nil {
		t.Fatalf("expected eventual success after retry, got %v", err)
	}
	if atomic.LoadInt32(&hits) < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", hits)
	}
}

func TestDoJSONEncodesRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["folder_id"] != "root" {
			t.Errorf("expected request body to carry folder_id, got %+v", body)
		}
		w.Write([]byte(`{"code":0,"msg":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	err := c.doJSON(context.Background(), http.MethodPost, "/list", nil, map[string]any{"folder_id": "root"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDoMultipartUploadsFieldsAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token header, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("seq") != "0" {
			t.Errorf("expected seq field, got %q", r.FormValue("seq"))
		}
		w.Write([]byte(`{"code":0,"msg":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	err := c.doMultipart(context.Background(), "/upload_part", []multipartField{
		{Name: "seq", Value: "0"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDoMultipartEnvelopeErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":500,"msg":"broken"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticToken("tok"))
	err := c.doMultipart(context.Background(), "/upload_part", nil, nil)
	if err == nil {
		t.Fatalf("expected envelope error to propagate")
	}
}
