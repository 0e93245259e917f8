package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/disconnec/FeiSync/internal/resourceindex"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestRunDownloadFileFreshRunStreamsWholeFile(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			t.Errorf("fresh run should not send a Range header, got %q", r.Header.Get("Range"))
		}
		w.Write(content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "fox.txt")

	e := NewEngine(func(ctx context.Context, tenantID string) (*cloudapi.Client, error) {
		return cloudapi.New(srv.URL, staticToken("tok")), nil
	}, resourceindex.New(), nil, nil)

	task := e.newTask(model.DirectionDownload, model.KindDownloadFile, "tenant-1", "fox.txt", target, int64(len(content)))
	task.ResourceToken = "file-tok"
	control := e.registerControl(task.ID)

	if err := e.runDownloadFile(context.Background(), task, control); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := e.Get(task.ID)
	if got.Status != model.StatusSuccess {
		t.Fatalf("expected success, got %s", got.Status)
	}
	if got.Transferred != got.Size {
		t.Fatalf("expected transferred == size on success, got %d/%d", got.Transferred, got.Size)
	}
	if got.Resume != nil {
		t.Fatalf("expected resume state cleared on success")
	}

	body, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(body) != string(content) {
		t.Fatalf("expected downloaded content to match, got %q", body)
	}
}

func TestRunDownloadFileResumesWithRangeHeader(t *testing.T) {
	full := []byte("0123456789ABCDEF")
	alreadyHave := full[:8]
	remaining := full[8:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=8-" {
			t.Errorf("expected resume Range header, got %q", r.Header.Get("Range"))
		}
		w.Write(remaining)
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "hex.txt")
	tempPath := target + partSuffix
	if err := os.WriteFile(tempPath, alreadyHave, 0o644); err != nil {
		t.Fatalf("seed partial temp file: %v", err)
	}

	e := NewEngine(func(ctx context.Context, tenantID string) (*cloudapi.Client, error) {
		return cloudapi.New(srv.URL, staticToken("tok")), nil
	}, resourceindex.New(), nil, nil)

	task := e.newTask(model.DirectionDownload, model.KindDownloadFile, "tenant-1", "hex.txt", target, int64(len(full)))
	task.ResourceToken = "file-tok"
	task.Resume = &model.TransferResume{
		DownloadFile: &model.DownloadFileResume{
			TempPath:   tempPath,
			TargetPath: target,
			Downloaded: int64(len(alreadyHave)),
			Token:      "file-tok",
			FileName:   "hex.txt",
		},
	}
	control := e.registerControl(task.ID)

	if err := e.runDownloadFile(context.Background(), task, control); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(body) != string(full) {
		t.Fatalf("expected resumed download to reassemble the full file, got %q", body)
	}
}
