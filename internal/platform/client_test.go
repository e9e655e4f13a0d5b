package platform_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/goleak"

	"steamchain/internal/platform"
	"steamchain/internal/platform/platformtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClientSendsAuthAndWorkspaceHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workspace/get" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if got := r.Header.Get("X-Workspace-Handle"); got != "my-space" {
			t.Fatalf("unexpected workspace header: %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["handle"] != "my-space" {
			t.Fatalf("unexpected handle: %#v", req["handle"])
		}
		_, _ = w.Write([]byte(`{"data":{"id":"ws-9","handle":"my-space"}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := platform.NewClient(srv.URL+"/api/v1", "secret",
		platform.WithWorkspace("my-space"),
		platform.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ws, err := c.Workspace(context.Background())
	if err != nil {
		t.Fatalf("Workspace: %v", err)
	}
	if ws.ID != "ws-9" || ws.Handle != "my-space" {
		t.Fatalf("unexpected workspace: %+v", ws)
	}
}

func TestWorkspaceIsFetchedOnce(t *testing.T) {
	fake := platformtest.New(t)
	c := fake.Client(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Workspace(ctx); err != nil {
			t.Fatalf("Workspace: %v", err)
		}
	}
	if got := fake.Calls("workspace/get"); got != 1 {
		t.Fatalf("expected 1 workspace call, got %d", got)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	fake := platformtest.New(t)
	c := fake.Client(t)

	_, err := c.GetFileByHandle(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "ObjectNotFound" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, err := platform.NewClient(srv.URL, "k", platform.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.CreateFile(context.Background(), platform.FileRequest{})
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if errors.Is(err, platform.ErrNotFound) {
		t.Fatal("bad gateway must not match ErrNotFound")
	}
}

func TestFileLifecycle(t *testing.T) {
	fake := platformtest.New(t)
	c := fake.Client(t)
	ctx := context.Background()

	f, err := c.CreateFile(ctx, platform.FileRequest{
		Handle: "notes",
		Blocks: []platform.Block{{Text: "first"}},
		Tags:   []platform.Tag{{Kind: platform.KindProvenance, Name: platform.ProvenanceFile, Value: map[string]any{platform.ValueString: "/tmp/notes.txt"}}},
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if f.ID == "" || len(f.Blocks) != 1 {
		t.Fatalf("unexpected file: %+v", f)
	}
	if _, err := c.CreateBlock(ctx, f.ID, "second", nil); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}

	got, err := c.GetFileByHandle(ctx, "notes")
	if err != nil {
		t.Fatalf("GetFileByHandle: %v", err)
	}
	if len(got.Blocks) != 2 || got.Blocks[1].Text != "second" {
		t.Fatalf("unexpected blocks: %+v", got.Blocks)
	}
	if got.Tags[0].StringValue() != "/tmp/notes.txt" {
		t.Fatalf("unexpected provenance: %+v", got.Tags)
	}

	files, err := c.QueryFiles(ctx, `kind "provenance"`)
	if err != nil {
		t.Fatalf("QueryFiles: %v", err)
	}
	if len(files) != 1 || files[0].ID != f.ID {
		t.Fatalf("unexpected query result: %+v", files)
	}

	if err := c.DeleteFile(ctx, f.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := c.GetFile(ctx, f.ID); !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected deleted file to be missing, got %v", err)
	}
}

func TestUsePluginFetchIfExists(t *testing.T) {
	fake := platformtest.New(t)
	c := fake.Client(t)
	ctx := context.Background()

	a, err := c.UsePlugin(ctx, platform.PluginRequest{PluginHandle: "gpt-3", InstanceHandle: "gpt-abc", FetchIfExists: true})
	if err != nil {
		t.Fatalf("UsePlugin: %v", err)
	}
	b, err := c.UsePlugin(ctx, platform.PluginRequest{PluginHandle: "gpt-3", InstanceHandle: "gpt-abc", FetchIfExists: true})
	if err != nil {
		t.Fatalf("UsePlugin: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same instance, got %s and %s", a.ID, b.ID)
	}
	reqs := fake.Requests("plugin/instance/create")
	if reqs[0]["fetchIfExists"] != true || reqs[0]["handle"] != "gpt-abc" {
		t.Fatalf("unexpected request: %#v", reqs[0])
	}

	_, err = c.UsePlugin(ctx, platform.PluginRequest{PluginHandle: "gpt-3", InstanceHandle: "gpt-abc"})
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for an existing handle, got %v", err)
	}
}
