// Package cachekey computes the cache identity of requests.
// The identity is the request method plus the canonical absolute URL, so a
// relative request and its absolute same-origin form map to the same entry.
package cachekey

import (
	"net/http"
	"net/url"
)

const methodSeparator = ":"

type CacheKeyer struct {
	// Origin is the base URL relative requests resolve against.
	Origin url.URL
}

func NewCacheKeyer(origin url.URL) CacheKeyer {
	return CacheKeyer{Origin: origin}
}

// Key returns the cache key for a request.
func (c CacheKeyer) Key(r *http.Request) string {
	return r.Method + methodSeparator + c.Origin.ResolveReference(r.URL).String()
}

// KeyForPath returns the cache key a request for the given path would get.
// The path may be relative ("./index.html") or absolute.
func (c CacheKeyer) KeyForPath(method, path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return method + methodSeparator + path
	}
	return method + methodSeparator + c.Origin.ResolveReference(ref).String()
}

// SameOrigin reports whether the request targets the keyer's origin.
// Relative requests are always same-origin.
func (c CacheKeyer) SameOrigin(r *http.Request) bool {
	return r.URL.Host == "" || r.URL.Host == c.Origin.Host
}
