package session

import (
	"context"
	"errors"
)

// ErrCorrupt is returned by a KV whose backing storage cannot be parsed
var ErrCorrupt = errors.New("session storage corrupt")

// KV is durable string key/value storage
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
