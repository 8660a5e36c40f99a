package couch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/mockcouch"
)

func TestEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "all dbs", got: couch.AllDBsURL("https://acct.cloudant.com/"), want: "https://acct.cloudant.com/_all_dbs"},
		{name: "db", got: couch.DatabaseURL("https://acct.cloudant.com", "users"), want: "https://acct.cloudant.com/users"},
		{name: "escaped db", got: couch.DatabaseURL("http://h:5984/", "a/b+c"), want: "http://h:5984/a%2Fb+c"},
		{name: "shards", got: couch.ShardsURL("http://h", "users"), want: "http://h/users/_shards"},
		{
			name: "design docs",
			got:  couch.DesignDocsURL("http://h", "users"),
			want: "http://h/users/_all_docs?startkey=%22_design%2F%22&endkey=%22_design0%22&include_docs=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParentURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://u:p@acct.cloudant.com/users", want: "https://u:p@acct.cloudant.com"},
		{in: "http://h:5984/prefix/users/", want: "http://h:5984/prefix"},
		{in: "http://h/a%2Fb", want: "http://h"},
	}
	for _, tt := range tests {
		got, err := couch.ParentURL(tt.in)
		if err != nil {
			t.Fatalf("ParentURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParentURL(%q)=%q want=%q", tt.in, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{Name: "users"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := couch.NewClient(couch.Options{Timeout: 5 * time.Second, MaxConnsPerHost: 4})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	root, err := client.Probe(ctx, ts.URL+"/")
	if err != nil {
		t.Fatalf("probe root: %v", err)
	}
	if root.Host != ts.URL || root.Database != "" {
		t.Fatalf("unexpected root target: %+v", root)
	}

	db, err := client.Probe(ctx, ts.URL+"/users")
	if err != nil {
		t.Fatalf("probe db: %v", err)
	}
	if db.Host != ts.URL || db.Database != "users" {
		t.Fatalf("unexpected db target: %+v", db)
	}

	_, err = client.Probe(ctx, ts.URL+"/missing")
	var httpErr *couch.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if !strings.Contains(err.Error(), "error=not_found") {
		t.Fatalf("expected couch error name in message, got %q", err.Error())
	}
}

func TestHTTPErrorRedactsURL(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.RequireBasicAuth("admin", "pw")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := couch.NewClient(couch.Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	wrong := strings.Replace(ts.URL, "http://", "http://admin:wrong@", 1)
	_, err = client.ListDatabases(context.Background(), wrong)
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Fatalf("credentials leaked into error: %q", err.Error())
	}
}

func TestClientOptionCredentials(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{Name: "users"})
	srv.RequireBasicAuth("admin", "pw")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := couch.NewClient(couch.Options{Username: "admin", Password: "pw", UserAgent: "couch-xray/test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	names, err := client.ListDatabases(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "users" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestNewClientRejectsBadCABundle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := couch.NewClient(couch.Options{CAPath: path}); err == nil {
		t.Fatal("expected CA parse error")
	}
	if _, err := couch.NewClient(couch.Options{CAPath: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Fatal("expected CA read error")
	}
}
