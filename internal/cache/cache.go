package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш: промах или ошибка не должны ломать вызывающего.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
