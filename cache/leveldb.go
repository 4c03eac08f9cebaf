package cache

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout in the LevelDB keyspace:
//
//	c:<name>            cache registry marker
//	e:<name>\x00<key>   cache entry
//
// Cache names must not contain NUL bytes.
const (
	levelCachePrefix = "c:"
	levelEntryPrefix = "e:"
	levelSeparator   = "\x00"
)

// LevelDBProvider stores all named caches in a single LevelDB database under
// prefixed keys.
type LevelDBProvider struct {
	db *leveldb.DB
}

// NewLevelDBProvider opens (creating if needed) a LevelDB database at path.
func NewLevelDBProvider(path string) (*LevelDBProvider, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBProvider{db: db}, nil
}

// Close closes the underlying database.
func (l *LevelDBProvider) Close() error {
	return l.db.Close()
}

func (l *LevelDBProvider) Open(name string) (Cache, error) {
	marker := []byte(levelCachePrefix + name)
	ok, err := l.db.Has(marker, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := l.db.Put(marker, []byte{}, nil); err != nil {
			return nil, err
		}
	}
	return &levelCache{provider: l, name: name}, nil
}

func (l *LevelDBProvider) Names() ([]string, error) {
	names := make([]string, 0)
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelCachePrefix)), nil)
	defer it.Release()
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(levelCachePrefix))))
	}
	return names, it.Error()
}

func (l *LevelDBProvider) Delete(name string) error {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(levelCachePrefix + name))
	prefix := []byte(levelEntryPrefix + name + levelSeparator)
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		batch.Delete(key)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

type levelCache struct {
	provider *LevelDBProvider
	name     string
}

func (c *levelCache) entryKey(key string) []byte {
	return []byte(levelEntryPrefix + c.name + levelSeparator + key)
}

func (c *levelCache) Get(key string) ([]byte, bool, error) {
	b, err := c.provider.db.Get(c.entryKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *levelCache) Put(key string, bytes []byte) error {
	return c.provider.db.Put(c.entryKey(key), bytes, nil)
}

func (c *levelCache) Purge(key string) error {
	return c.provider.db.Delete(c.entryKey(key), nil)
}

func (c *levelCache) AllKeys(cb func(string)) error {
	prefix := []byte(levelEntryPrefix + c.name + levelSeparator)
	it := c.provider.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		cb(string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return it.Error()
}

func (c *levelCache) Has(key string) bool {
	ok, err := c.provider.db.Has(c.entryKey(key), nil)
	return err == nil && ok
}
