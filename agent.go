// Package offlinecache implements an offline-first caching agent for a web
// application. The agent intercepts resource requests and serves cached or
// live content according to a small set of per-resource-class policies, so
// that the application keeps loading (in a degraded state) without network
// connectivity.
//
// The agent keeps two named durable caches per deployed version: a "static"
// cache holding the application shell plus same-origin assets, and a
// "runtime" cache for everything else. Cache names derive deterministically
// from a namespace and a version string, so two deployments never share
// mutable cache state. The lifecycle (install, activate, message-driven
// promotion) is driven by a Registration, which plays the host role.
package offlinecache

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/offline-cache/offline-cache/cache"
	cachekey "github.com/offline-cache/offline-cache/pkg/cache-key"

	"github.com/rs/zerolog"
)

// DefaultNamespace is the cache name prefix used when none is configured.
const DefaultNamespace = "offline-cache"

// Response header reporting how a response was obtained.
// Values: "hit", "miss", "shell", "offline".
const cacheStatusHeader = "X-Offline-Cache"

type Config struct {
	// Version of the deployment. Changed by the maintainer on every deploy;
	// cache names are derived from it.
	Version string
	// Namespace prefix for cache names. DefaultNamespace if empty.
	Namespace string
	// Storage for the named caches.
	Storage cache.CacheProvider
	// URL of the origin server the agent fronts.
	// Origins with paths are not supported.
	OriginURL url.URL
	// ShellAssets are the paths prefetched into the static cache at install
	// time. Relative paths are resolved against the origin URL.
	ShellAssets []string
	// ShellDocument is the path served as a last-resort fallback for
	// navigation requests when offline. Defaults to the first shell asset.
	ShellDocument string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Fetcher used for network fetches. A NetworkFetcher against OriginURL
	// is used if nil.
	Fetcher Fetcher
	// SkipWaiting makes the agent eligible for activation immediately after
	// install, without waiting for the previous version to release its
	// clients. Off by default: without it a new version stays waiting until
	// a SKIP_WAITING message promotes it. The bundled server turns it on.
	SkipWaiting bool
}

// Agent is one installed version of the offline cache agent.
// All configuration is bound at construction time and immutable afterwards.
type Agent struct {
	version       string
	namespace     string
	storage       cache.CacheProvider
	keyer         cachekey.CacheKeyer
	fetcher       Fetcher
	log           zerolog.Logger
	staticCache   string
	runtimeCache  string
	shellAssets   []string
	shellDocument string
	skipWaiting   bool
}

// New creates an agent for the given version.
func New(config Config) (*Agent, error) {
	if config.Version == "" {
		return nil, fmt.Errorf("version must not be empty")
	}
	if config.Storage == nil {
		return nil, fmt.Errorf("storage must not be nil")
	}

	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("version", config.Version).
		Logger()

	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = NewNetworkFetcher(config.OriginURL)
	}

	shellDocument := config.ShellDocument
	if shellDocument == "" && len(config.ShellAssets) > 0 {
		shellDocument = config.ShellAssets[0]
	}

	return &Agent{
		version:       config.Version,
		namespace:     namespace,
		storage:       config.Storage,
		keyer:         cachekey.NewCacheKeyer(config.OriginURL),
		fetcher:       fetcher,
		log:           logger,
		staticCache:   namespace + "-static-" + config.Version,
		runtimeCache:  namespace + "-runtime-" + config.Version,
		shellAssets:   config.ShellAssets,
		shellDocument: shellDocument,
		skipWaiting:   config.SkipWaiting,
	}, nil
}

// Version returns the deployment version this agent was built for.
func (a *Agent) Version() string {
	return a.version
}

// StaticCacheName returns the name of the current static cache.
func (a *Agent) StaticCacheName() string {
	return a.staticCache
}

// RuntimeCacheName returns the name of the current runtime cache.
func (a *Agent) RuntimeCacheName() string {
	return a.runtimeCache
}

// SkipsWaiting reports whether the agent requested immediate activation.
func (a *Agent) SkipsWaiting() bool {
	return a.skipWaiting
}

// ServeHTTP implements the http.Handler interface.
// It classifies every GET request into one of three routing buckets and
// dispatches to the matching strategy. Non-GET requests are not intercepted
// at all, they go straight to the network.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		metricRequests.WithLabelValues(routePassthrough).Inc()
		a.passthrough(w, r)
		return
	}

	switch {
	case isNavigation(r):
		metricRequests.WithLabelValues(routeNavigate).Inc()
		a.send(w, r, a.networkFirst(r, a.staticCache))
	case a.keyer.SameOrigin(r) && isStaticDestination(r):
		metricRequests.WithLabelValues(routeStatic).Inc()
		a.serveRevalidated(w, r, a.staticCache)
	default:
		metricRequests.WithLabelValues(routeRuntime).Inc()
		a.serveRevalidated(w, r, a.runtimeCache)
	}
}

// serveRevalidated runs the stale-while-revalidate strategy and sends the
// result, or a bad gateway response if the strategy came up empty-handed.
func (a *Agent) serveRevalidated(w http.ResponseWriter, r *http.Request, cacheName string) {
	res, err := a.staleWhileRevalidate(r, cacheName)
	if err != nil {
		a.log.Debug().Err(err).Str("url", r.URL.String()).Msg("No cached or live content")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	a.send(w, r, res)
}

// passthrough forwards the request to the network without touching any cache.
func (a *Agent) passthrough(w http.ResponseWriter, r *http.Request) {
	res, err := a.fetcher.Do(r)
	if err != nil {
		a.log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	a.send(w, r, res)
}

func (a *Agent) send(w http.ResponseWriter, r *http.Request, res *http.Response) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
	a.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Int("status", res.StatusCode).
		Str("cache", res.Header.Get(cacheStatusHeader)).
		Msgf("Wrote response (%d bytes)", bytesWritten)
}

// isNavigation reports whether the request loads a document, identified by
// navigation mode or an accept header asking for HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// isStaticDestination reports whether the request targets one of the asset
// classes kept in the static cache.
func isStaticDestination(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "style", "script", "image", "font":
		return true
	}
	return false
}

func responseOK(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode < 300
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
