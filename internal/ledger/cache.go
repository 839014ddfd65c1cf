package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/pkg/models"
)

var (
	// ErrCacheMiss indicates a cache miss
	ErrCacheMiss = errors.New("cache miss")
)

// BalanceCache keeps committed wallet snapshots for read paths. Set must
// ignore a snapshot whose UpdatedAt is not newer than the cached one.
type BalanceCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Set(ctx context.Context, wallet *models.Wallet) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// setIfNewer stores the snapshot in a hash next to its version and refuses
// versions that are not newer than the stored one.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'v')
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisBalanceCache implements BalanceCache using Redis
type RedisBalanceCache struct {
	client redis.Cmdable
	log    *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisBalanceCache creates a new Redis-based balance cache
func NewRedisBalanceCache(client redis.Cmdable, log *zap.Logger, prefix string, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{
		client: client,
		log:    log,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves a cached wallet
func (c *RedisBalanceCache) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	key := c.walletKey(userID)

	data, err := c.client.HGet(ctx, key, "data").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		c.log.Error("failed to get wallet from cache", zap.Error(err), zap.String("key", key))
		return nil, err
	}

	var wallet models.Wallet
	if err := json.Unmarshal(data, &wallet); err != nil {
		c.log.Error("failed to unmarshal cached wallet", zap.Error(err), zap.String("key", key))
		return nil, err
	}

	return &wallet, nil
}

// Set stores a wallet snapshot unless a newer one is already cached
func (c *RedisBalanceCache) Set(ctx context.Context, wallet *models.Wallet) error {
	key := c.walletKey(wallet.UserID)

	data, err := json.Marshal(wallet)
	if err != nil {
		return err
	}

	version := wallet.UpdatedAt.UnixMicro()
	stored, err := setIfNewer.Run(ctx, c.client, []string{key}, version, data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Error("failed to set wallet in cache", zap.Error(err), zap.String("key", key))
		return err
	}
	if stored == 0 {
		c.log.Debug("kept newer cached wallet", zap.String("key", key), zap.Int64("version", version))
	}

	return nil
}

// Delete removes a wallet snapshot
func (c *RedisBalanceCache) Delete(ctx context.Context, userID uuid.UUID) error {
	key := c.walletKey(userID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Error("failed to invalidate wallet cache", zap.Error(err), zap.String("key", key))
		return err
	}

	return nil
}

func (c *RedisBalanceCache) walletKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:wallet:%s", c.prefix, userID)
}
