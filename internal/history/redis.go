package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vipul43/invy-worker/internal/models"
)

const defaultRedisKey = "{invy}:processed_messages"

// markScript adds ARGV[1] scored by a per-set sequence unless it is already a
// member, then trims the set to the ARGV[2] newest entries.
var markScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
redis.call('ZREMRANGEBYRANK', KEYS[1], 0, -(tonumber(ARGV[2]) + 1))
return 1
`)

// RedisStore keeps the history in a sorted set scored by insertion order
type RedisStore struct {
	client *redis.Client
	key    string
	seqKey string
	limit  int
}

func NewRedisStore(client *redis.Client, limit int) *RedisStore {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	return &RedisStore{
		client: client,
		key:    defaultRedisKey,
		seqKey: defaultRedisKey + ":seq",
		limit:  limit,
	}
}

func (s *RedisStore) Contains(ctx context.Context, messageID string) (bool, error) {
	_, err := s.client.ZScore(ctx, s.key, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	return true, nil
}

// MarkProcessed adds the id only if absent, so a re-add keeps its original age.
// The add and the trim run atomically in one script.
func (s *RedisStore) MarkProcessed(ctx context.Context, messageID string) error {
	err := markScript.Run(ctx, s.client, []string{s.key, s.seqKey}, messageID, s.limit).Err()
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
