package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

const (
	snapshotPrefix   = "wallet:v1:"
	generationPrefix = "wallet:gen:v1:"
	generationTTL    = 24 * time.Hour
)

// Lookup is the outcome of a cache read. Generation must be handed back to
// Set when the caller fills a miss.
type Lookup struct {
	Wallet     ledger.Wallet
	Hit        bool
	Generation int64
}

// SnapshotCache holds recently read wallet snapshots keyed by user id.
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (Lookup, error)
	// Set stores w unless the user was invalidated after generation was read.
	Set(ctx context.Context, w ledger.Wallet, generation int64) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// setIfCurrent writes the snapshot only while the generation counter still
// matches the one observed by the reader.
var setIfCurrent = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[2]) or '0')
if gen ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache is a SnapshotCache backed by Redis string keys with a TTL.
// Each user has a generation counter bumped by Invalidate.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a snapshot cache. A non-positive ttl falls back to 30s.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

type snapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get returns the cached snapshot, if present, with the current generation.
func (c *RedisCache) Get(ctx context.Context, userID string) (Lookup, error) {
	vals, err := c.client.MGet(ctx, snapshotPrefix+userID, generationPrefix+userID).Result()
	if err != nil {
		return Lookup{}, fmt.Errorf("read wallet snapshot: %w", err)
	}

	var out Lookup
	if raw, ok := vals[1].(string); ok {
		if out.Generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Lookup{}, fmt.Errorf("decode wallet generation: %w", err)
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return out, nil
	}
	var s snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Lookup{}, fmt.Errorf("decode wallet snapshot: %w", err)
	}
	out.Hit = true
	out.Wallet = ledger.Wallet{
		ID:        s.ID,
		UserID:    s.UserID,
		Balance:   s.Balance,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	return out, nil
}

// Set stores a snapshot for w.UserID. The write is skipped when Invalidate
// ran for the user since generation was read.
func (c *RedisCache) Set(ctx context.Context, w ledger.Wallet, generation int64) error {
	payload, err := json.Marshal(snapshot{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode wallet snapshot: %w", err)
	}
	keys := []string{snapshotPrefix + w.UserID, generationPrefix + w.UserID}
	if err := setIfCurrent.Run(ctx, c.client, keys, generation, payload, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("write wallet snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the snapshots of the given users and bumps their
// generation so in-flight readers cannot store what they read before.
func (c *RedisCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	pipe := c.client.TxPipeline()
	for i, id := range userIDs {
		keys[i] = snapshotPrefix + id
		pipe.Incr(ctx, generationPrefix+id)
		pipe.Expire(ctx, generationPrefix+id, generationTTL)
	}
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate wallet snapshots: %w", err)
	}
	return nil
}
