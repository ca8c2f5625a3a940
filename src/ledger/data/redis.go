package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	noncePrefix = "ledger:nonce:"
	nonceTTL    = 5 * time.Minute
)

func ConnectRedis(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(opt), nil
}

// RedisNonces keeps login challenges keyed by address.
type RedisNonces struct {
	rdb *redis.Client
}

func NewRedisNonces(rdb *redis.Client) RedisNonces {
	return RedisNonces{rdb: rdb}
}

func (n RedisNonces) SetNonce(ctx context.Context, addr, nonce string) error {
	return n.rdb.Set(ctx, noncePrefix+addr, nonce, nonceTTL).Err()
}

// TakeNonce returns and removes the pending challenge, so a signature can
// only be redeemed once.
func (n RedisNonces) TakeNonce(ctx context.Context, addr string) (string, error) {
	return n.rdb.GetDel(ctx, noncePrefix+addr).Result()
}
