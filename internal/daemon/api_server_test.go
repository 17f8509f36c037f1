package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"porter/internal/api"
	"porter/internal/testsupport"
)

func startAPIDaemon(t *testing.T) (string, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemonWithConfig(t, cfg, store)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected bound API address")
	}
	return "http://" + addr, cfg.Paths.APIToken
}

func apiRequest(t *testing.T, method, url, token string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, payload
}

func TestAPIRequiresBearerToken(t *testing.T) {
	base, token := startAPIDaemon(t)

	resp, _ := apiRequest(t, http.MethodGet, base+"/api/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp, payload := apiRequest(t, http.MethodGet, base+"/api/status", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d: %s", resp.StatusCode, payload)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon in status payload")
	}
}

func TestAPIProjectLifecycle(t *testing.T) {
	base, token := startAPIDaemon(t)

	resp, payload := apiRequest(t, http.MethodPost, base+"/api/projects", token, []byte(sampleManifest))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", resp.StatusCode, payload)
	}
	var created api.CreateProjectResponse
	if err := json.Unmarshal(payload, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Project.Status != "queued" {
		t.Fatalf("created project status = %q", created.Project.Status)
	}

	resp, payload = apiRequest(t, http.MethodGet, base+"/api/projects?status=queued", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list api.ProjectListResponse
	if err := json.Unmarshal(payload, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Projects) != 1 || list.Projects[0].ProjectPath != "/content/site-a" {
		t.Fatalf("unexpected project list: %+v", list.Projects)
	}

	detailURL := fmt.Sprintf("%s/api/projects/%d", base, created.Project.ID)
	resp, payload = apiRequest(t, http.MethodGet, detailURL, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status = %d: %s", resp.StatusCode, payload)
	}
	var detail api.ProjectDetailResponse
	if err := json.Unmarshal(payload, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Batches) == 0 {
		t.Fatal("expected batches in project detail")
	}

	resp, payload = apiRequest(t, http.MethodPost, detailURL+"/retry", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d: %s", resp.StatusCode, payload)
	}
	var retry api.RetryResponse
	if err := json.Unmarshal(payload, &retry); err != nil {
		t.Fatalf("decode retry: %v", err)
	}
	if retry.Resumed {
		t.Fatal("queued project should not report resumed")
	}
}

func TestAPIRejectsBadInput(t *testing.T) {
	base, token := startAPIDaemon(t)

	resp, payload := apiRequest(t, http.MethodPost, base+"/api/projects", token, []byte(`{"projectPath":""}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid manifest status = %d: %s", resp.StatusCode, payload)
	}
	if !strings.Contains(string(payload), "error") {
		t.Fatalf("expected error payload, got %s", payload)
	}

	resp, _ = apiRequest(t, http.MethodGet, base+"/api/projects?status=bogus", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d, want 400", resp.StatusCode)
	}

	resp, _ = apiRequest(t, http.MethodGet, base+"/api/projects/abc", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id = %d, want 400", resp.StatusCode)
	}

	resp, _ = apiRequest(t, http.MethodGet, base+"/api/projects/9999", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project = %d, want 404", resp.StatusCode)
	}
}
