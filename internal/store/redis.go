package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Conditional writes are Lua scripts so the predicate and the write execute
// as one atomic step on the server. cjson treats a missing field as nil, so
// d["deleted_at"] == nil is exactly attribute_not_exists(deleted_at).
var (
	putIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
return 1`)

	putIfActiveScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local d = cjson.decode(v)
if d['deleted_at'] ~= nil then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
return 1`)

	updateScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local d = cjson.decode(v)
if ARGV[2] == 'active' and d['deleted_at'] ~= nil then return 0 end
local attrs = cjson.decode(ARGV[1])
for k, val in pairs(attrs) do d[k] = val end
redis.call('SET', KEYS[1], cjson.encode(d))
return 1`)
)

// Redis is a KV backend over plain string keys holding JSON documents.
// Pagination rides the Redis SCAN cursor; the filter is applied per page
// inside the adapter after an MGET.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	pageSize  int
}

// NewRedis creates a Redis-backed store. All documents live under
// keyPrefix + key.
func NewRedis(client *redis.Client, keyPrefix string, pageSize int) *Redis {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return &Redis{client: client, keyPrefix: keyPrefix, pageSize: pageSize}
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (s *Redis) Put(ctx context.Context, key string, doc []byte, cond Condition) error {
	rkey := s.keyPrefix + key
	switch cond {
	case ConditionNone:
		if err := s.client.Set(ctx, rkey, doc, 0).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
		return nil
	case ConditionKeyAbsent:
		return s.runConditional(ctx, putIfAbsentScript, rkey, string(doc))
	case ConditionKeyActive:
		return s.runConditional(ctx, putIfActiveScript, rkey, string(doc))
	default:
		return fmt.Errorf("unknown condition %d", cond)
	}
}

func (s *Redis) Update(ctx context.Context, key string, attrs map[string]any, cond Condition) error {
	if cond == ConditionKeyAbsent {
		return fmt.Errorf("update cannot target an absent key")
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	condArg := "any"
	if cond == ConditionKeyActive {
		condArg = "active"
	}
	return s.runConditional(ctx, updateScript, s.keyPrefix+key, string(encoded), condArg)
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Redis) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	start := uint64(0)
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &start); err != nil {
			return Page{}, fmt.Errorf("bad scan cursor %q: %w", cursor, err)
		}
	}

	keys, next, err := s.client.Scan(ctx, start, s.keyPrefix+"*", int64(s.pageSize)).Result()
	if err != nil {
		return Page{}, fmt.Errorf("redis scan: %w", err)
	}

	var page Page
	if len(keys) > 0 {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return Page{}, fmt.Errorf("redis mget: %w", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				// Key vanished between SCAN and MGET.
				continue
			}
			meta, err := parseMeta([]byte(raw))
			if err != nil {
				return Page{}, err
			}
			if meta.matches(filter) {
				page.Docs = append(page.Docs, []byte(raw))
			}
		}
	}
	if next != 0 {
		page.Cursor = fmt.Sprintf("%d", next)
	}
	return page, nil
}

func (s *Redis) runConditional(ctx context.Context, script *redis.Script, key string, args ...any) error {
	res, err := script.Run(ctx, s.client, []string{key}, args...).Int()
	if err != nil {
		if strings.Contains(err.Error(), "cjson") {
			return fmt.Errorf("decode document: %w", err)
		}
		return fmt.Errorf("redis eval: %w", err)
	}
	if res == 0 {
		return ErrConditionFailed
	}
	return nil
}
