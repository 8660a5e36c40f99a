// Package mockcouch serves the small read-only CouchDB surface the inspector
// queries, backed by in-memory fixtures.
package mockcouch

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

var ginModeOnce sync.Once

// Call records a request made to the mock service.
type Call struct {
	Method string
	// Path is the escaped request path.
	Path  string
	Query string
}

// Server implements a minimal CouchDB-like read API.
type Server struct {
	mu       sync.Mutex
	dbs      map[string]Database
	failures map[string]int
	delays   map[string]time.Duration
	calls    []Call
	accounts gin.Accounts
}

// New constructs an empty server.
func New() *Server {
	ginModeOnce.Do(func() { gin.SetMode(gin.TestMode) })
	return &Server{
		dbs:      make(map[string]Database),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
	}
}

// NewFromFixture constructs a server preloaded with f.
func NewFromFixture(f Fixture) *Server {
	s := New()
	for _, db := range f.Databases {
		s.AddDatabase(db)
	}
	if f.Username != "" {
		s.RequireBasicAuth(f.Username, f.Password)
	}
	for path, status := range f.Failures {
		s.FailPath(path, status)
	}
	return s
}

// AddDatabase creates or replaces a database.
func (s *Server) AddDatabase(db Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbs[db.Name] = db
}

// RemoveDatabase deletes a database so later requests for it answer 404.
func (s *Server) RemoveDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dbs, name)
}

// FailPath makes every GET of the escaped path answer status, e.g.
// FailPath("/users/_shards", 500).
func (s *Server) FailPath(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// DelayPath holds responses for path for d before answering.
func (s *Server) DelayPath(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// RequireBasicAuth enforces HTTP basic auth on every route. Call before Handler.
func (s *Server) RequireBasicAuth(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = gin.Accounts{user: password}
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo counts calls whose path matches exactly.
func (s *Server) CallsTo(path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.recordCall)

	s.mu.Lock()
	accounts := s.accounts
	s.mu.Unlock()
	if len(accounts) > 0 {
		r.Use(gin.BasicAuth(accounts))
	}

	r.Use(s.injectFailures)
	r.GET("/*path", s.serve)
	return r
}

func (s *Server) recordCall(c *gin.Context) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: c.Request.Method,
		Path:   c.Request.URL.EscapedPath(),
		Query:  c.Request.URL.RawQuery,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) injectFailures(c *gin.Context) {
	path := c.Request.URL.EscapedPath()
	s.mu.Lock()
	status, failing := s.failures[path]
	delay := s.delays[path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
		}
	}
	if failing {
		couchError(c, status, strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")), "injected failure")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) serve(c *gin.Context) {
	segments, err := splitPath(c.Request.URL.EscapedPath())
	if err != nil {
		couchError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	switch {
	case len(segments) == 0:
		c.JSON(http.StatusOK, gin.H{"couchdb": "Welcome", "version": "3.3.3", "vendor": gin.H{"name": "mockcouch"}})
	case len(segments) == 1 && segments[0] == "_all_dbs":
		c.JSON(http.StatusOK, s.names())
	case len(segments) == 1:
		s.withDB(c, segments[0], s.serveInfo)
	case len(segments) == 2 && segments[1] == "_shards":
		s.withDB(c, segments[0], serveShards)
	case len(segments) == 2 && segments[1] == "_all_docs":
		s.withDB(c, segments[0], serveDesignDocs)
	default:
		couchError(c, http.StatusNotFound, "not_found", "missing")
	}
}

func (s *Server) withDB(c *gin.Context, name string, fn func(*gin.Context, Database)) {
	s.mu.Lock()
	db, ok := s.dbs[name]
	s.mu.Unlock()
	if !ok {
		couchError(c, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}
	fn(c, db)
}

func (s *Server) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (s *Server) serveInfo(c *gin.Context, db Database) {
	if db.Backend != "" {
		c.Header("X-Cloudant-Backend", db.Backend)
	}
	c.JSON(http.StatusOK, db.info())
}

func serveShards(c *gin.Context, db Database) {
	c.JSON(http.StatusOK, gin.H{"shards": db.shardMap()})
}

func serveDesignDocs(c *gin.Context, db Database) {
	q := c.Request.URL.Query()
	if q.Get("startkey") != `"_design/"` || q.Get("endkey") != `"_design0"` {
		couchError(c, http.StatusBadRequest, "bad_request", "only the design document range is served")
		return
	}
	includeDocs := q.Get("include_docs") == "true"

	rows := make([]gin.H, 0, len(db.DesignDocs))
	for _, doc := range db.sortedDesignDocs() {
		id, _ := doc["_id"].(string)
		row := gin.H{"id": id, "key": id, "value": gin.H{"rev": "1-mock"}}
		if includeDocs {
			row["doc"] = doc
		}
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, gin.H{"total_rows": db.DocCount, "offset": 0, "rows": rows})
}

func couchError(c *gin.Context, status int, name, reason string) {
	c.JSON(status, gin.H{"error": name, "reason": reason})
}

// splitPath returns the unescaped segments of an escaped request path, so a
// database called "a/b" arrives as one segment from "/a%2Fb".
func splitPath(escaped string) ([]string, error) {
	escaped = strings.Trim(escaped, "/")
	if escaped == "" {
		return nil, nil
	}
	parts := strings.Split(escaped, "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q", p)
		}
		out[i] = v
	}
	return out, nil
}
