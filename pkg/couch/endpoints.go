package couch

import (
	"net/url"
	"strings"
)

// designDocsQuery selects the _design/ key range with bodies included.
const designDocsQuery = "startkey=%22_design%2F%22&endkey=%22_design0%22&include_docs=true"

// AllDBsURL is {host}/_all_dbs.
func AllDBsURL(host string) string {
	return strings.TrimRight(host, "/") + "/_all_dbs"
}

// DatabaseURL is {host}/{db} with the database name path-escaped.
func DatabaseURL(host, db string) string {
	return strings.TrimRight(host, "/") + "/" + url.PathEscape(db)
}

// ShardsURL is {host}/{db}/_shards.
func ShardsURL(host, db string) string {
	return DatabaseURL(host, db) + "/_shards"
}

// DesignDocsURL is the design-document range of {host}/{db}/_all_docs.
func DesignDocsURL(host, db string) string {
	return DatabaseURL(host, db) + "/_all_docs?" + designDocsQuery
}

// ParentURL drops the last path segment: https://h/x/db becomes https://h/x.
// Userinfo is kept so the parent can still authenticate.
func ParentURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return "", err
	}
	escaped := strings.TrimRight(u.EscapedPath(), "/")
	if i := strings.LastIndex(escaped, "/"); i >= 0 {
		escaped = escaped[:i]
	}
	p, err := url.PathUnescape(escaped)
	if err != nil {
		return "", err
	}
	u.Path = p
	u.RawPath = escaped
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
