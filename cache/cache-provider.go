package cache

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheStore is an interface for a named-cache storage backend.
// It stores and retrieves []byte values, which represent HTTP response
// snapshots. Entries are partitioned by cache name, so that each logical
// cache can be enumerated and deleted independently.
//
// Implementations must be thread-safe!
type CacheStore interface {
	// Match returns the stored bytes for the given key in the named cache,
	// if they exist. It also returns a boolean indicating whether the
	// lookup was a hit.
	Match(cache, key string) ([]byte, bool, error)
	// Put stores the given bytes in the named cache under the given key,
	// overwriting any previous entry. The store records the time of the
	// write, which determines the order returned by Keys.
	Put(cache, key string, bytes []byte) error
	// Delete removes the entry for the given key from the named cache.
	Delete(cache, key string) error
	// Keys returns the keys of the named cache, oldest write first.
	// The order is based on recorded write times, never on map or row
	// enumeration order.
	Keys(cache string) ([]string, error)
	// Names returns the names of all caches that currently hold entries.
	Names() ([]string, error)
	// DeleteCache removes the named cache and all of its entries.
	DeleteCache(cache string) error
	// Usage returns the total number of stored bytes across all caches.
	Usage() (int64, error)
}

type memCacheEntry struct {
	seq   int64
	bytes []byte
}

// MemCache is an in-memory CacheStore backed by nested maps.
type MemCache struct {
	mutex *sync.RWMutex
	seq   *int64
	db    map[string]map[string]memCacheEntry
}

func NewMemCache() MemCache {
	var seq int64
	return MemCache{
		mutex: &sync.RWMutex{},
		seq:   &seq,
		db:    make(map[string]map[string]memCacheEntry),
	}
}

func (m MemCache) Match(cache, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[cache][key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(cache, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.db[cache] == nil {
		m.db[cache] = make(map[string]memCacheEntry)
	}
	*m.seq++
	m.db[cache][key] = memCacheEntry{seq: *m.seq, bytes: bytes}
	return nil
}

func (m MemCache) Delete(cache, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db[cache], key)
	if len(m.db[cache]) == 0 {
		delete(m.db, cache)
	}
	return nil
}

func (m MemCache) Keys(cache string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	type keyedEntry struct {
		key string
		seq int64
	}
	entries := make([]keyedEntry, 0, len(m.db[cache]))
	for key, entry := range m.db[cache] {
		entries = append(entries, keyedEntry{key, entry.seq})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.key
	}
	return keys, nil
}

func (m MemCache) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemCache) DeleteCache(cache string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, cache)
	return nil
}

func (m MemCache) Usage() (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var usage int64
	for _, entries := range m.db {
		for _, entry := range entries {
			usage += int64(len(entry.bytes))
		}
	}
	return usage, nil
}

// SQLiteCache is a persistent CacheStore backed by a sqlite database.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// Use the dsn `file::memory:?cache=shared` for an in-memory db.
func NewSQLiteCache(filename string) SQLiteCache {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS cache (cache_name TEXT, key TEXT, stored INTEGER, bytes BLOB, PRIMARY KEY (cache_name, key))")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS stored_idx ON cache (cache_name, stored)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Match(cache, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE cache_name = ? AND key = ?", cache, key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(cache, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO cache (cache_name, key, stored, bytes) VALUES (?, ?, ?, ?)",
		cache, key, time.Now().UnixNano(), bytes)
	return err
}

func (s SQLiteCache) Delete(cache, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE cache_name = ? AND key = ?", cache, key)
	return err
}

func (s SQLiteCache) Keys(cache string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE cache_name = ? ORDER BY stored ASC, rowid ASC", cache)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s SQLiteCache) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT cache_name FROM cache ORDER BY cache_name")
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

func (s SQLiteCache) DeleteCache(cache string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE cache_name = ?", cache)
	return err
}

func (s SQLiteCache) Usage() (int64, error) {
	var usage int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(LENGTH(bytes)), 0) FROM cache").Scan(&usage)
	return usage, err
}
