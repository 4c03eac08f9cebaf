package offlinecache

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/offline-cache/offline-cache/cache"
	serializer "github.com/offline-cache/offline-cache/pkg/response-serializer"
)

// networkFirst prefers a live response and falls back through the cache, the
// shell document, and finally a synthesized offline response. It always
// returns a response, never an error: every navigation must resolve to
// something the client can render.
func (a *Agent) networkFirst(r *http.Request, cacheName string) *http.Response {
	log := a.log.With().Str("cache", cacheName).Str("url", r.URL.String()).Logger()

	res, err := a.fetcher.Do(r)
	if err == nil {
		if responseOK(res) {
			res = a.store(cacheName, r, res)
		}
		metricMisses.WithLabelValues(strategyNetworkFirst).Inc()
		res.Header.Set(cacheStatusHeader, "miss")
		return res
	}
	log.Debug().Err(err).Msg("Network fetch failed, falling back to cache")

	c, cerr := a.storage.Open(cacheName)
	if cerr != nil {
		log.Error().Err(cerr).Msg("Could not open cache")
		return a.offlineResponse(r)
	}

	if res := a.match(c, a.keyer.Key(r)); res != nil {
		metricHits.WithLabelValues(strategyNetworkFirst).Inc()
		metricFallbacks.WithLabelValues(fallbackCache).Inc()
		res.Header.Set(cacheStatusHeader, "hit")
		return res
	}

	if a.shellDocument != "" {
		if res := a.match(c, a.keyer.KeyForPath(http.MethodGet, a.shellDocument)); res != nil {
			log.Debug().Str("shell", a.shellDocument).Msg("Serving shell document")
			metricFallbacks.WithLabelValues(fallbackShell).Inc()
			res.Header.Set(cacheStatusHeader, "shell")
			return res
		}
	}

	return a.offlineResponse(r)
}

// staleWhileRevalidate serves a cached response immediately if one exists and
// refreshes the cache in the background. On a cache miss it waits for the
// network instead. With neither cache nor network it returns an error and the
// caller decides how to answer.
func (a *Agent) staleWhileRevalidate(r *http.Request, cacheName string) (*http.Response, error) {
	key := a.keyer.Key(r)

	c, err := a.storage.Open(cacheName)
	if err != nil {
		a.log.Error().Err(err).Str("cache", cacheName).Msg("Could not open cache")
	} else if res := a.match(c, key); res != nil {
		// detach the refresh from the caller's lifetime
		go a.revalidate(cacheName, r.Clone(context.Background()))
		metricHits.WithLabelValues(strategySWR).Inc()
		res.Header.Set(cacheStatusHeader, "hit")
		return res, nil
	}

	res, err := a.fetcher.Do(r)
	if err != nil {
		return nil, err
	}
	if responseOK(res) {
		res = a.store(cacheName, r, res)
	}
	metricMisses.WithLabelValues(strategySWR).Inc()
	res.Header.Set(cacheStatusHeader, "miss")
	return res, nil
}

// revalidate refreshes a cache entry from the network. It runs detached from
// any request: failures are logged and discarded, and a non-success response
// never overwrites a previously stored one.
func (a *Agent) revalidate(cacheName string, r *http.Request) {
	res, err := a.fetcher.Do(r)
	if err != nil {
		a.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Background revalidation failed")
		return
	}
	if !responseOK(res) {
		res.Body.Close()
		return
	}
	res = a.store(cacheName, r, res)
	res.Body.Close()
	metricRevalidations.Inc()
}

// store writes a copy of the response into the named cache. The returned
// response has its body intact and can still be served to the client.
// Storage failures are logged only, the live response is good regardless.
func (a *Agent) store(cacheName string, r *http.Request, res *http.Response) *http.Response {
	key := a.keyer.Key(r)
	b, err := serializer.StoredResponseToBytes(serializer.StoredResponse{
		Response: res,
		StoredAt: time.Now(),
	})
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return res
	}
	c, err := a.storage.Open(cacheName)
	if err != nil {
		a.log.Error().Err(err).Str("cache", cacheName).Msg("Could not open cache")
		return res
	}
	if err := c.Put(key, b); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return res
	}
	a.log.Trace().Str("cache", cacheName).Str("key", key).Msg("Cache write")
	return res
}

// match returns the stored response for the key, or nil on a miss.
// Corrupt entries count as misses.
func (a *Agent) match(c cache.Cache, key string) *http.Response {
	b, ok, err := c.Get(key)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil
	}
	if !ok {
		return nil
	}
	sres, err := serializer.BytesToStoredResponse(b)
	if err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("Could not deserialize stored response")
		return nil
	}
	return sres.Response
}

// offlineResponse synthesizes the terminal fallback: the caller always gets a
// response object, even with no network, no cached entry and no shell.
func (a *Agent) offlineResponse(r *http.Request) *http.Response {
	metricFallbacks.WithLabelValues(fallbackOffline).Inc()
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		Status:     "503 Offline",
		StatusCode: http.StatusServiceUnavailable,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("Offline")),
		Request:    r,
	}
}
