package mockcouch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/mockcouch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
)

func newClient(t *testing.T) *couch.Client {
	t.Helper()
	client, err := couch.NewClient(couch.Options{})
	if err != nil {
		t.Fatalf("new couch client: %v", err)
	}
	return client
}

func TestMockCouch_ServesDatabaseEndpoints(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{
		Name: "users", DocCount: 10, DocDelCount: 2, DataSize: 1536, Backend: "bm-cc-1", Shards: 4,
		DesignDocs: []map[string]any{
			{"_id": "_design/app", "views": map[string]any{"by_name": map[string]any{"map": "f"}}},
		},
	})
	srv.AddDatabase(mockcouch.Database{Name: "a/b"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := newClient(t)
	ctx := context.Background()

	names, err := client.ListDatabases(ctx, ts.URL)
	if err != nil {
		t.Fatalf("list databases: %v", err)
	}
	if strings.Join(names, ",") != "a/b,users" {
		t.Fatalf("unexpected names: %v", names)
	}

	resp, err := client.Get(ctx, couch.DatabaseURL(ts.URL, "users"), "tag-1")
	if err != nil {
		t.Fatalf("get info: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Tag != "tag-1" {
		t.Fatalf("unexpected response: %d tag=%q", resp.StatusCode, resp.Tag)
	}
	if got := resp.Header.Get(couch.BackendHeader); got != "bm-cc-1" {
		t.Fatalf("backend header=%q", got)
	}
	body, err := core.DecodeObject(resp.Body)
	if err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if reduce.TotalDocs(body) != 12 || reduce.DataSize(body) != 1536 {
		t.Fatalf("unexpected info body: %v", body)
	}

	resp, err = client.Get(ctx, couch.ShardsURL(ts.URL, "users"), "")
	if err != nil {
		t.Fatalf("get shards: %v", err)
	}
	if n, err := reduce.ParseShardCount(resp.Body); err != nil || n != 4 {
		t.Fatalf("shard count=%d err=%v", n, err)
	}

	resp, err = client.Get(ctx, couch.DesignDocsURL(ts.URL, "users"), "")
	if err != nil {
		t.Fatalf("get design docs: %v", err)
	}
	docs, err := reduce.ParseDesignDocs(resp.Body)
	if err != nil || len(docs) != 1 || docs[0].ID != "_design/app" {
		t.Fatalf("design docs=%v err=%v", docs, err)
	}

	resp, err = client.Get(ctx, couch.DatabaseURL(ts.URL, "a/b"), "")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("escaped database: status=%d err=%v", resp.StatusCode, err)
	}
	if srv.CallsTo("/a%2Fb") != 1 {
		t.Fatalf("expected escaped path to reach the server, calls=%v", srv.Calls())
	}
}

func TestMockCouch_MissingDatabaseIs404(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := newClient(t).Get(context.Background(), couch.DatabaseURL(ts.URL, "gone"), "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMockCouch_FailPath(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{Name: "users"})
	srv.FailPath("/users/_shards", http.StatusServiceUnavailable)
	srv.FailPath("/_all_dbs", http.StatusUnauthorized)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := newClient(t)
	resp, err := client.Get(context.Background(), couch.ShardsURL(ts.URL, "users"), "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	_, err = client.ListDatabases(context.Background(), ts.URL)
	var httpErr *couch.HTTPError
	if err == nil {
		t.Fatal("expected list error")
	}
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized || httpErr.Reason != "injected failure" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMockCouch_BasicAuth(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{Name: "users"})
	srv.RequireBasicAuth("admin", "s3cret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := newClient(t)
	resp, err := client.Get(context.Background(), couch.DatabaseURL(ts.URL, "users"), "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	withCreds := strings.Replace(ts.URL, "http://", "http://admin:s3cret@", 1)
	resp, err = client.Get(context.Background(), couch.DatabaseURL(withCreds, "users"), "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with URL credentials, got %d", resp.StatusCode)
	}
}

func TestLoadFixture(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	data := `
username: admin
password: pw
failures:
  /broken: 500
databases:
  - name: users
    doc_count: 5
    shards: 2
    design_docs:
      - _id: _design/geo
        st_indexes:
          points: {index: "st_index(doc.geometry)"}
  - name: broken
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := mockcouch.LoadFixture(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	if len(f.Databases) != 2 || f.Databases[0].Shards != 2 || f.Failures["/broken"] != 500 {
		t.Fatalf("unexpected fixture: %+v", f)
	}

	srv := mockcouch.NewFromFixture(f)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	withCreds := strings.Replace(ts.URL, "http://", "http://admin:pw@", 1)
	client := newClient(t)
	resp, err := client.Get(context.Background(), couch.DesignDocsURL(withCreds, "users"), "")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("design docs: status=%d err=%v", resp.StatusCode, err)
	}
	docs, err := reduce.ParseDesignDocs(resp.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	profile, _ := reduce.ProfileDesignDocs(docs)
	if profile.GeoIndexes != 1 {
		t.Fatalf("expected one geo index, got %+v", profile)
	}

	resp, err = client.Get(context.Background(), couch.DatabaseURL(withCreds, "broken"), "")
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("broken: status=%d err=%v", resp.StatusCode, err)
	}
}

func TestLoadFixtureRequiresNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte("databases:\n  - doc_count: 1\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := mockcouch.LoadFixture(path); err == nil {
		t.Fatal("expected error for unnamed database")
	}
}
