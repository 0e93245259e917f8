package transfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disconnec/FeiSync/internal/cloudapi"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/disconnec/FeiSync/internal/resourceindex"
)

// fakeCloudDriveServer answers create_folder/upload_all with distinct
// tokens so the directory walk can be asserted against.
func fakeCloudDriveServer(t *testing.T) *httptest.Server {
	t.Helper()
	var folderSeq, fileSeq int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/create_folder"):
			folderSeq++
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "ok", "data": map[string]string{"token": "folder-tok-" + itoa(folderSeq)}})
		case strings.HasSuffix(r.URL.Path, "/upload_all"):
			fileSeq++
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "ok", "data": map[string]string{"file_token": "file-tok-" + itoa(fileSeq)}})
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
		}
	}))
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func TestRunUploadFolderCreatesOneUmbrellaTaskAndWalksNestedDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("write top.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "nested", "inner.txt"), []byte("inner"), 0o644); err != nil {
		t.Fatalf("write inner.txt: %v", err)
	}

	srv := fakeCloudDriveServer(t)
	defer srv.Close()

	e := NewEngine(func(ctx context.Context, tenantID string) (*cloudapi.Client, error) {
		return cloudapi.New(srv.URL, staticToken("tok")), nil
	}, resourceindex.New(), nil, nil)

	task := e.newTask(model.DirectionUpload, model.KindUploadFolder, "tenant-1", "root", root, 0)
	task.ParentToken = "root-tok"
	control := e.registerControl(task.ID)

	before := len(e.Snapshot())
	if err := e.runUploadFolder(context.Background(), task, control); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := len(e.Snapshot())

	if after != before {
		t.Fatalf("expected no additional tracked tasks for per-file uploads within a folder transfer, before=%d after=%d", before, after)
	}

	got, _ := e.Get(task.ID)
	if got.Status != model.StatusSuccess {
		t.Fatalf("expected the umbrella task to succeed, got %s", got.Status)
	}
	if got.Transferred != int64(len("top")+len("inner")) {
		t.Fatalf("expected transferred to sum both files' sizes, got %d", got.Transferred)
	}
}
