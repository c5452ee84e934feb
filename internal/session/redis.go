package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash fields of a session key.
const (
	fieldUnlocked = "unlocked"
	fieldPrevQ    = "prev_query"
	fieldPrevA    = "prev_response"
	fieldUpdated  = "updated_ms"
)

// completeScript applies the progression rule inside Redis so the compare
// and increment cannot interleave with another request.
//
// KEYS[1] session key; ARGV[1] lesson number; ARGV[2] now in ms; ARGV[3] TTL
// in seconds (0 keeps the key forever). Returns 1 when it advanced.
var completeScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'unlocked', 1)
local advanced = 0
local cur = tonumber(redis.call('HGET', KEYS[1], 'unlocked'))
if cur == tonumber(ARGV[1]) then
	redis.call('HSET', KEYS[1], 'unlocked', cur + 1, 'updated_ms', ARGV[2])
	advanced = 1
end
if tonumber(ARGV[3]) > 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return advanced
`)

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // idle sessions expire after TTL; 0 keeps them
}

// RedisStore keeps each session in a Redis hash.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sattur:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	vals, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if len(vals) == 0 {
		return NewState(id), nil
	}
	return parseState(id, vals)
}

func (r *RedisStore) CompleteLesson(ctx context.Context, id string, n int) (*State, bool, error) {
	advanced, err := completeScript.Run(ctx, r.client, []string{r.key(id)},
		n, time.Now().UnixMilli(), int64(r.ttl/time.Second)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("advance session %s: %w", id, err)
	}
	st, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return st, advanced == 1, nil
}

func (r *RedisStore) RecordExchange(ctx context.Context, id, query, response string) error {
	key := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, fieldUnlocked, FirstLesson)
		p.HSet(ctx, key,
			fieldPrevQ, query,
			fieldPrevA, response,
			fieldUpdated, time.Now().UnixMilli(),
		)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record exchange for session %s: %w", id, err)
	}
	return nil
}

func parseState(id string, vals map[string]string) (*State, error) {
	st := &State{ID: id, UnlockedLesson: FirstLesson}
	if v, ok := vals[fieldUnlocked]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("session %s: bad unlocked lesson %q", id, v)
		}
		st.UnlockedLesson = n
	}
	q, hasQ := vals[fieldPrevQ]
	a, hasA := vals[fieldPrevA]
	if hasQ || hasA {
		st.Previous = &Exchange{Query: q, Response: a}
	}
	if v, ok := vals[fieldUpdated]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return st, nil
}
