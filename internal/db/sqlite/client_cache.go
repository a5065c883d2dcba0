package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngprep/internal/db"
)

var _ db.Client = (*sqliteClient)(nil)

// GetNormalized returns a cached output and bumps its hit counter.
func (c *sqliteClient) GetNormalized(ctx context.Context, key string) (string, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var entry db.CacheEntry
	err := c.db.GetContext(ctx, &entry, `SELECT key, output, hits, created_at, updated_at FROM normalized_cache WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "get normalized %s", key)
	}

	_, err = c.db.ExecContext(ctx, `UPDATE normalized_cache SET hits = hits + 1, updated_at = ? WHERE key = ?`, c.now().Unix(), key)
	if err != nil {
		log.WithField("context", "sqlite").WithError(err).Warn("cant bump cache hits")
	}
	return entry.Output, true, nil
}

func (c *sqliteClient) SetNormalized(ctx context.Context, key string, output string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now().Unix()
	query := `
		INSERT INTO normalized_cache (key, output, hits, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		output = excluded.output,
		updated_at = excluded.updated_at
	`
	return errors.Wrapf(tool.Err(c.db.ExecContext(ctx, query, key, output, now, now)), "set normalized %s", key)
}

// Purge drops entries not touched within olderThan.
func (c *sqliteClient) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cutoff := c.now().Add(-olderThan).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM normalized_cache WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge normalized cache")
	}
	return res.RowsAffected()
}

func (c *sqliteClient) Stats(ctx context.Context) (db.CacheStats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var stats db.CacheStats
	err := c.db.GetContext(ctx, &stats, `SELECT COUNT(*) AS entries, COALESCE(SUM(hits), 0) AS hits FROM normalized_cache`)
	return stats, errors.Wrap(err, "cache stats")
}
