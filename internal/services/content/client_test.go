package content_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"porter/internal/services"
	"porter/internal/services/content"
)

func TestReadJSONDecodesDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/project/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"status": "queued"}`))
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "token-1")
	var doc struct {
		Status string `json:"status"`
	}
	if err := client.ReadJSON(context.Background(), "/project/status", &doc); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if doc.Status != "queued" {
		t.Fatalf("unexpected status %q", doc.Status)
	}
}

func TestReadJSONMissingDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "")
	var doc map[string]any
	err := client.ReadJSON(context.Background(), "/missing", &doc)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUploadLockedDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "lockedFile": true}`))
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "")
	err := client.Upload(context.Background(), "/dst/report.xlsx", []byte("bytes"))
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
	if !services.IsSoftFailure(err) {
		t.Fatal("locked upload should classify as a soft failure")
	}
}

func TestUploadRejectedWithMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "errorMsg": "quota exceeded"}`))
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "")
	err := client.Upload(context.Background(), "/dst/a", []byte("bytes"))
	if err == nil || !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"entries": ["/a", "/b"]}`))
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "", content.WithRetries(3, time.Millisecond))
	entries, err := client.List(context.Background(), "/project")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestAuthErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "stale", content.WithRetries(3, time.Millisecond))
	_, err := client.FetchMetadata(context.Background(), "/src/doc.docx")
	if !services.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("auth failure retried %d times", calls.Load())
	}
}

func TestDeleteMissingDocumentIsNoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "")
	if err := client.Delete(context.Background(), "/gone"); err != nil {
		t.Fatalf("Delete of missing document failed: %v", err)
	}
}

func TestDownloadFollowsMetadataURL(t *testing.T) {
	payload := []byte("document bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata/src/doc.docx":
			w.Write([]byte(`{"downloadUrl": "http://` + r.Host + `/blob/doc", "size": 14}`))
		case "/blob/doc":
			w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := content.NewClient(server.URL, "")
	meta, err := client.FetchMetadata(context.Background(), "/src/doc.docx")
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}
	if meta.Size != 14 {
		t.Fatalf("unexpected size %d", meta.Size)
	}
	body, err := client.Download(context.Background(), meta.DownloadURL)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("unexpected body %q", body)
	}
}
