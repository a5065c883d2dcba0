package db

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/iamwavecut/ngprep/internal/utils/text"
)

type (
	// CacheEntry is one memoized normalization result, timestamps are unix seconds.
	CacheEntry struct {
		Key       string `db:"key"`
		Output    string `db:"output"`
		Hits      int64  `db:"hits"`
		CreatedAt int64  `db:"created_at"`
		UpdatedAt int64  `db:"updated_at"`
	}

	CacheStats struct {
		Entries int64 `db:"entries"`
		Hits    int64 `db:"hits"`
	}
)

// CacheKey derives the storage key for an input. The rules version is part of
// the digest so stale results never survive a rule change.
func CacheKey(input string) string {
	h := sha256.New()
	h.Write([]byte(text.RulesVersion))
	h.Write([]byte{0})
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
