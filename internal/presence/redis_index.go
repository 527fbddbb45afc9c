package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// retention bounds how long a silent member stays in a room's set.
const retention = 10 * time.Minute

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("redis connected")
	return client, nil
}

// RedisIndex keeps one sorted set per room, scored by last activity in unix milliseconds.
type RedisIndex struct {
	client redis.Cmdable
}

func NewRedisIndex(client redis.Cmdable) *RedisIndex {
	return &RedisIndex{client: client}
}

func roomKey(roomID int64) string {
	return fmt.Sprintf("presence:room:%d", roomID)
}

// Touch records userID as active at at, pruning entries past retention.
func (i *RedisIndex) Touch(ctx context.Context, roomID, userID int64, at time.Time) error {
	key := roomKey(roomID)
	pipe := i.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: strconv.FormatInt(userID, 10)})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(at.Add(-retention).UnixMilli(), 10))
	pipe.Expire(ctx, key, retention)
	_, err := pipe.Exec(ctx)
	return err
}

func (i *RedisIndex) Remove(ctx context.Context, roomID, userID int64) error {
	return i.client.ZRem(ctx, roomKey(roomID), strconv.FormatInt(userID, 10)).Err()
}

// ActiveSince lists users whose last activity is strictly after since.
func (i *RedisIndex) ActiveSince(ctx context.Context, roomID int64, since time.Time) ([]int64, error) {
	members, err := i.client.ZRangeByScore(ctx, roomKey(roomID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			log.Warn().Str("member", m).Int64("room_id", roomID).Msg("skipping malformed presence entry")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
