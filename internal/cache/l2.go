package cache

import (
	"database/sql"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/database"
)

// L2 is the durable, SQLite-backed tier. Slower than L1 but survives
// process restarts, grounded on the repository-over-*database.DB pattern
// used across the teacher's repositories package.
type L2 struct {
	db  *database.DB
	log zerolog.Logger
}

func NewL2(db *database.DB, log zerolog.Logger) *L2 {
	return &L2{db: db, log: log.With().Str("component", "cache_l2").Logger()}
}

func (c *L2) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt int64
	err := c.db.QueryRow(`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Error().Err(err).Str("key", key).Msg("L2 get failed")
		}
		return nil, false
	}

	if time.Now().Unix() > expiresAt {
		_, _ = c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, false
	}

	return value, true
}

func (c *L2) Set(key string, value []byte, ttl time.Duration) {
	now := time.Now()
	_, err := c.db.Exec(`
		INSERT INTO cache_entries (key, value, source_provider, confidence, created_at, expires_at)
		VALUES (?, ?, '', 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at
	`, key, value, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("L2 set failed")
	}
}

// SetWithLineage persists source_provider/confidence alongside the value,
// used by the read-through manager when it has a ProviderResponse to hand.
func (c *L2) SetWithLineage(key string, value []byte, ttl time.Duration, sourceProvider string, confidence float64) {
	now := time.Now()
	_, err := c.db.Exec(`
		INSERT INTO cache_entries (key, value, source_provider, confidence, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, source_provider = excluded.source_provider,
			confidence = excluded.confidence, created_at = excluded.created_at, expires_at = excluded.expires_at
	`, key, value, sourceProvider, confidence, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("L2 set-with-lineage failed")
	}
}

func (c *L2) Delete(key string) {
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("L2 delete failed")
	}
}

// DeletePattern loads every key and matches client-side: SQLite's LIKE
// doesn't speak shell globs, and the cache table is small enough that a
// full scan per invalidation (driven by rare significant events, not hot
// path traffic) is cheap.
func (c *L2) DeletePattern(glob string) int {
	rows, err := c.db.Query(`SELECT key FROM cache_entries`)
	if err != nil {
		c.log.Error().Err(err).Msg("L2 delete-pattern scan failed")
		return 0
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			continue
		}
		if matched, _ := path.Match(glob, key); matched {
			matches = append(matches, key)
		}
	}

	for _, key := range matches {
		c.Delete(key)
	}
	return len(matches)
}
