package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Install populates the static cache for this version with the shell asset
// manifest, best effort. A failed prefetch is logged and skipped: the agent
// must install even when some shell assets cannot be fetched. Only a storage
// failure is fatal.
func (a *Agent) Install(ctx context.Context) error {
	if _, err := a.storage.Open(a.staticCache); err != nil {
		return fmt.Errorf("open static cache: %w", err)
	}

	prefetched := 0
	for _, asset := range a.shellAssets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
		if err != nil {
			a.log.Warn().Err(err).Str("asset", asset).Msg("Invalid shell asset path")
			continue
		}
		res, err := a.fetcher.Do(req)
		if err != nil {
			a.log.Warn().Err(err).Str("asset", asset).Msg("Could not prefetch shell asset")
			continue
		}
		if !responseOK(res) {
			a.log.Warn().Int("status", res.StatusCode).Str("asset", asset).Msg("Shell asset fetch not ok")
			res.Body.Close()
			continue
		}
		res = a.store(a.staticCache, req, res)
		res.Body.Close()
		prefetched++
	}

	a.log.Info().
		Str("cache", a.staticCache).
		Int("prefetched", prefetched).
		Int("manifest", len(a.shellAssets)).
		Msg("Installed")
	return nil
}

// Activate deletes every cache in this agent's namespace that belongs to a
// previous version. Deletions run concurrently but Activate waits for all of
// them; individual failures are logged and tolerated, and a canceled context
// abandons deletions that have not started. After Activate returns,
// only the current static and runtime caches carry the namespace prefix.
func (a *Agent) Activate(ctx context.Context) error {
	names, err := a.storage.Names()
	if err != nil {
		a.log.Error().Err(err).Msg("Could not enumerate caches, skipping cleanup")
		return nil
	}

	var g errgroup.Group
	for _, name := range names {
		if !strings.HasPrefix(name, a.namespace+"-") {
			continue
		}
		if name == a.staticCache || name == a.runtimeCache {
			continue
		}
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.log.Debug().Str("cache", name).Msg("Deleting stale cache")
			return a.storage.Delete(name)
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Warn().Err(err).Msg("Could not delete all stale caches")
	}

	// both current caches exist from here on
	for _, name := range []string{a.staticCache, a.runtimeCache} {
		if _, err := a.storage.Open(name); err != nil {
			a.log.Error().Err(err).Str("cache", name).Msg("Could not open cache")
		}
	}

	a.log.Info().Str("version", a.version).Msg("Activated")
	return nil
}
