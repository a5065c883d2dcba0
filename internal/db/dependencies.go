package db

import (
	"context"
	"time"
)

type Client interface {
	GetNormalized(ctx context.Context, key string) (string, bool, error)
	SetNormalized(ctx context.Context, key string, output string) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (CacheStats, error)
	Close() error
}
