package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vidyadost/vidyadost/internal/logger"
)

const redisKeyPrefix = "vidyadost:history:"

// RedisStore keeps each session as a Redis list of JSON-encoded turns.
type RedisStore struct {
	rdb *goredis.Client
	log *logger.Logger
	now func() time.Time
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, log *logger.Logger) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		rdb: rdb,
		log: logger.OrNop(log).With("service", "RedisTranscript"),
		now: time.Now,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]Turn, error) {
	if key == "" {
		return nil, ErrMissingFields
	}
	raw, err := s.rdb.LRange(ctx, redisKeyPrefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := sonic.UnmarshalString(item, &t); err != nil {
			s.log.Warn("skipping unreadable history entry", "session_key", key, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	sortByTS(turns)
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, key, user, assistant string) (Turn, error) {
	if err := validate(key, user, assistant); err != nil {
		return Turn{}, err
	}
	turn := Turn{User: user, Assistant: assistant, TS: s.now().UnixMilli()}
	raw, err := sonic.MarshalString(turn)
	if err != nil {
		return Turn{}, fmt.Errorf("encode turn: %w", err)
	}
	if err := s.rdb.RPush(ctx, redisKeyPrefix+key, raw).Err(); err != nil {
		return Turn{}, fmt.Errorf("redis rpush: %w", err)
	}
	return turn, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
