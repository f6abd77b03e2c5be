package dedupe

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ticket-workflow:dedupe:"

// RedisHistory keeps each customer's window in a sorted set scored by
// arrival time, so several service replicas share one history.
type RedisHistory struct {
	client  *redis.Client
	size    int
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewRedisHistory wraps an existing client.
func NewRedisHistory(client *redis.Client, size int, ttl time.Duration) *RedisHistory {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultWindowTTL
	}
	return &RedisHistory{client: client, size: size, ttl: ttl, nowFunc: time.Now}
}

// OpenRedisHistory parses a redis:// URL, connects and pings the server.
func OpenRedisHistory(ctx context.Context, url string, size int, ttl time.Duration) (*RedisHistory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "dedupe: connect to redis")
	}
	zap.L().Info("dedupe: redis connected", zap.String("addr", opts.Addr))
	return NewRedisHistory(client, size, ttl), nil
}

// Observe implements History. The trim, read, append and re-trim run in
// one MULTI/EXEC transaction.
func (h *RedisHistory) Observe(ctx context.Context, customer string, e Entry) ([]Entry, error) {
	member, err := json.Marshal(e)
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: encode entry")
	}

	key := redisKeyPrefix + customer
	cutoff := h.nowFunc().Add(-h.ttl).UnixMilli()

	var window *redis.StringSliceCmd
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		window = pipe.ZRange(ctx, key, 0, -1)
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(e.At.UnixMilli()),
			Member: member,
		})
		pipe.ZRemRangeByRank(ctx, key, 0, -int64(h.size)-1)
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: observe customer window")
	}

	prior := make([]Entry, 0, len(window.Val()))
	for _, raw := range window.Val() {
		var old Entry
		if err := json.Unmarshal([]byte(raw), &old); err != nil {
			zap.L().Warn("dedupe: skipping undecodable history entry",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		prior = append(prior, old)
	}
	return prior, nil
}

// Close closes the underlying client.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
