package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/healwright/internal/core"
)

// releaseScript deletes the lock only while it still holds our token, so an expired lock that
// another worker re-acquired is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PublishLock is a single-instance Redis lock built on SET NX with a TTL.
type PublishLock struct {
	client redis.UniversalClient
	logger *slog.Logger
}

var _ core.PublishLocker = (*PublishLock)(nil)

// NewPublishLock creates a PublishLock.
func NewPublishLock(client redis.UniversalClient, logger *slog.Logger) *PublishLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishLock{client: client, logger: logger.With("component", "publish_lock")}
}

// TryLock acquires key for ttl. ok is false when another holder owns it.
func (l *PublishLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if key == "" {
		return nil, false, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	status, err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		// NX not met comes back as a nil reply.
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis SET NX: %w", err)
	}
	if status != "OK" {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.WarnContext(ctx, "failed to release publish lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
