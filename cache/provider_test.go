package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]CacheProvider {
	t.Helper()

	sqlite, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	level, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "leveldb"))
	require.NoError(t, err)
	t.Cleanup(func() { level.Close() })

	return map[string]CacheProvider{
		"memory":  NewMemProvider(),
		"sqlite":  sqlite,
		"leveldb": level,
	}
}

func TestOpenCreatesEmptyCache(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Open("pc-static-v1")
			require.NoError(t, err)

			names, err := p.Names()
			require.NoError(t, err)
			require.Contains(t, names, "pc-static-v1")
		})
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := p.Open("pc-static-v1")
			require.NoError(t, err)

			require.NoError(t, c.Put("GET:http://app.local/", []byte("one")))

			b, ok, err := c.Get("GET:http://app.local/")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("one"), b)
			require.True(t, c.Has("GET:http://app.local/"))

			// a second put replaces the entry
			require.NoError(t, c.Put("GET:http://app.local/", []byte("two")))
			b, ok, err = c.Get("GET:http://app.local/")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("two"), b)
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := p.Open("pc-static-v1")
			require.NoError(t, err)

			_, ok, err := c.Get("GET:http://app.local/nope")
			require.NoError(t, err)
			require.False(t, ok)
			require.False(t, c.Has("GET:http://app.local/nope"))
		})
	}
}

func TestPurge(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := p.Open("pc-static-v1")
			require.NoError(t, err)

			require.NoError(t, c.Put("key", []byte("value")))
			require.NoError(t, c.Purge("key"))

			_, ok, err := c.Get("key")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestAllKeys(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := p.Open("pc-runtime-v1")
			require.NoError(t, err)

			require.NoError(t, c.Put("a", []byte("1")))
			require.NoError(t, c.Put("b", []byte("2")))

			keys := make([]string, 0)
			require.NoError(t, c.AllKeys(func(key string) {
				keys = append(keys, key)
			}))
			require.ElementsMatch(t, []string{"a", "b"}, keys)
		})
	}
}

func TestCachesAreIsolated(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			static, err := p.Open("pc-static-v1")
			require.NoError(t, err)
			runtime, err := p.Open("pc-runtime-v1")
			require.NoError(t, err)

			require.NoError(t, static.Put("key", []byte("static")))

			_, ok, err := runtime.Get("key")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDeleteRemovesCacheAndEntries(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			old, err := p.Open("pc-static-v1")
			require.NoError(t, err)
			current, err := p.Open("pc-static-v2")
			require.NoError(t, err)

			require.NoError(t, old.Put("key", []byte("old")))
			require.NoError(t, current.Put("key", []byte("current")))

			require.NoError(t, p.Delete("pc-static-v1"))

			names, err := p.Names()
			require.NoError(t, err)
			require.NotContains(t, names, "pc-static-v1")
			require.Contains(t, names, "pc-static-v2")

			// surviving cache keeps its entries
			b, ok, err := current.Get("key")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("current"), b)

			// reopening the deleted name yields an empty cache
			reopened, err := p.Open("pc-static-v1")
			require.NoError(t, err)
			_, ok, err = reopened.Get("key")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDeleteUnknownName(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Delete("never-existed"))
		})
	}
}
