// Package couch is the HTTP side of the inspector: one resty client (and so
// one connection pool) shared by every stage of a run.
package couch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
)

const (
	DefaultTimeout = 60 * time.Second
	// BackendHeader carries the Cloudant cluster backend name on GET /{db}.
	BackendHeader = "X-Cloudant-Backend"
)

type Options struct {
	// Username and Password are used when a URL carries no userinfo.
	Username string
	Password string
	// CAPath is an optional PEM bundle used as the TLS trust store.
	CAPath string
	// Timeout bounds one request end to end. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxConnsPerHost sizes the idle pool; set it to the worker count.
	MaxConnsPerHost int
	UserAgent       string
	// Logger receives resty's own warnings and errors. zap's SugaredLogger
	// satisfies resty.Logger directly.
	Logger resty.Logger
}

// Client implements core.Getter plus the two discovery calls.
// It is safe for concurrent use.
type Client struct {
	r *resty.Client
}

var _ core.Getter = (*Client)(nil)

// NewClient builds the shared client.
func NewClient(opts Options) (*Client, error) {
	hc, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	r := resty.NewWithClient(hc)
	r.SetHeader("Accept", "application/json")
	// Plain-http basic auth is expected against local clusters.
	r.SetDisableWarn(true)
	if opts.Logger != nil {
		r.SetLogger(opts.Logger)
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		r.SetHeader("User-Agent", ua)
	}
	if opts.Username != "" {
		r.SetBasicAuth(opts.Username, opts.Password)
	}
	return &Client{r: r}, nil
}

func newHTTPClient(opts Options) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.MaxConnsPerHost > 0 {
		tr.MaxIdleConnsPerHost = opts.MaxConnsPerHost
		tr.MaxIdleConns = max(tr.MaxIdleConns, opts.MaxConnsPerHost)
	}
	if p := strings.TrimSpace(opts.CAPath); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CA bundle %s: no certs found", p)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

// Get performs one GET. Any HTTP status is returned as a Response; err is
// only set for transport failures. The tag is echoed back unchanged.
func (c *Client) Get(ctx context.Context, rawURL string, tag string) (core.Response, error) {
	req := c.r.R().SetContext(ctx)
	target, user, pass, ok := splitUserinfo(rawURL)
	if ok {
		req.SetBasicAuth(user, pass)
	}
	resp, err := req.Get(target)
	if err != nil {
		return core.Response{Tag: tag}, err
	}
	return core.Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		Tag:        tag,
	}, nil
}

// Target is what a configured URL points at.
type Target struct {
	// Host is the server root all requests are built from.
	Host string
	// Database is set when the URL named a single database.
	Database string
}

// Probe fetches rawURL and decides whether it is a server root or a single
// database: a database answers with a body carrying db_name.
func (c *Client) Probe(ctx context.Context, rawURL string) (Target, error) {
	rawURL = strings.TrimRight(strings.TrimSpace(rawURL), "/")
	resp, err := c.Get(ctx, rawURL, "")
	if err != nil {
		return Target{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Target{}, newHTTPError("probe", rawURL, resp.StatusCode, http.StatusText(resp.StatusCode), resp.Body)
	}
	var body struct {
		DBName *string `json:"db_name"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Target{}, fmt.Errorf("parse probe response from %s: %w", redact.URL(rawURL), err)
	}
	if body.DBName == nil {
		return Target{Host: rawURL}, nil
	}
	parent, err := ParentURL(rawURL)
	if err != nil {
		return Target{}, err
	}
	return Target{Host: parent, Database: *body.DBName}, nil
}

// ListDatabases returns the names from {host}/_all_dbs in server order.
func (c *Client) ListDatabases(ctx context.Context, host string) ([]string, error) {
	u := AllDBsURL(host)
	resp, err := c.Get(ctx, u, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError("listDatabases", u, resp.StatusCode, http.StatusText(resp.StatusCode), resp.Body)
	}
	var names []string
	if err := json.Unmarshal(resp.Body, &names); err != nil {
		return nil, fmt.Errorf("parse _all_dbs response from %s: %w", redact.URL(u), err)
	}
	return names, nil
}

// splitUserinfo moves URL credentials out of the URL so they travel as a
// basic auth header instead.
func splitUserinfo(raw string) (string, string, string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw, "", "", false
	}
	user := u.User.Username()
	pass, _ := u.User.Password()
	u.User = nil
	return u.String(), user, pass, true
}
