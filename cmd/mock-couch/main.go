package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/couch-xray/pkg/mockcouch"
)

func main() {
	addr := defaultString("MOCK_COUCH_ADDR", ":5984")
	fixture := defaultString("MOCK_COUCH_FIXTURE", "")
	user := defaultString("MOCK_COUCH_USER", "")
	password := defaultString("MOCK_COUCH_PASSWORD", "")
	failPaths := defaultString("MOCK_COUCH_FAIL_500", "")

	fs := flag.NewFlagSet("mock-couch", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixture, "fixture", fixture, "YAML fixture with databases, design docs and injected failures")
	fs.StringVar(&user, "user", user, "Require basic auth with this user (env: MOCK_COUCH_USER)")
	fs.StringVar(&password, "password", password, "Basic auth password (env: MOCK_COUCH_PASSWORD)")
	fs.StringVar(&failPaths, "fail-500", failPaths, "Comma-separated escaped paths that answer 500 (env: MOCK_COUCH_FAIL_500)")
	_ = fs.Parse(os.Args[1:])

	var srv *mockcouch.Server
	if fixture != "" {
		f, err := mockcouch.LoadFixture(fixture)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixture error: %v\n", err)
			os.Exit(2)
		}
		srv = mockcouch.NewFromFixture(f)
	} else {
		srv = mockcouch.New()
	}
	if user != "" {
		srv.RequireBasicAuth(user, password)
	}
	for _, p := range splitCSV(failPaths) {
		srv.FailPath(p, http.StatusInternalServerError)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-couch listening on %s (fixture=%s)\n", addr, fixture)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
