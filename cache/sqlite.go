package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteProvider stores all named caches in a single SQLite database:
// a caches table holding the cache registry and an entries table holding the
// serialized responses, keyed by (cache, key).
type SQLiteProvider struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteProvider creates a provider with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteProvider(filename string) (*SQLiteProvider, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS caches (
			name TEXT PRIMARY KEY,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			cache TEXT NOT NULL,
			key TEXT NOT NULL,
			stored_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (cache, key)
		)`,
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

func (s *SQLiteProvider) Open(name string) (Cache, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)",
		name, time.Now().Unix(),
	)
	if err != nil {
		return nil, err
	}
	return &sqliteCache{provider: s, name: name}, nil
}

func (s *SQLiteProvider) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM caches ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteProvider) Delete(name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM entries WHERE cache = ?", name); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM caches WHERE name = ?", name)
	return err
}

type sqliteCache struct {
	provider *SQLiteProvider
	name     string
}

func (c *sqliteCache) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := c.provider.db.QueryRow(
		"SELECT bytes FROM entries WHERE cache = ? AND key = ?",
		c.name, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (c *sqliteCache) Put(key string, bytes []byte) error {
	c.provider.writeMutex.Lock()
	defer c.provider.writeMutex.Unlock()
	_, err := c.provider.db.Exec(
		"INSERT OR REPLACE INTO entries (cache, key, stored_at, bytes) VALUES (?, ?, ?, ?)",
		c.name, key, time.Now().Unix(), bytes,
	)
	return err
}

func (c *sqliteCache) Purge(key string) error {
	c.provider.writeMutex.Lock()
	defer c.provider.writeMutex.Unlock()
	_, err := c.provider.db.Exec(
		"DELETE FROM entries WHERE cache = ? AND key = ?",
		c.name, key,
	)
	return err
}

func (c *sqliteCache) AllKeys(cb func(string)) error {
	rows, err := c.provider.db.Query(
		"SELECT key FROM entries WHERE cache = ? ORDER BY key",
		c.name,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}

func (c *sqliteCache) Has(key string) bool {
	var one int
	err := c.provider.db.QueryRow(
		"SELECT 1 FROM entries WHERE cache = ? AND key = ?",
		c.name, key,
	).Scan(&one)
	return err == nil
}
