package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by [RedisStore].
const DefaultKeyPrefix = "freshtrack"

// RedisClient is the subset of the go-redis API used by [RedisStore].
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisOptions configures [OpenRedis].
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore is a [Store] keeping each owner's items in one hash,
// "<prefix>:items:<owner>", with the item ID as field and the JSON-encoded
// item as value.
type RedisStore struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore] on client. An empty prefix selects
// [DefaultKeyPrefix].
func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// OpenRedis connects to the server described by opts and pings it. The
// returned close function closes the client.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, func() error, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("inventory: ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, opts.KeyPrefix), client.Close, nil
}

// ownerKey returns the hash key holding owner's items.
func (s *RedisStore) ownerKey(owner string) string {
	return s.prefix + ":items:" + owner
}

func (s *RedisStore) Add(ctx context.Context, item *Item) error {
	if err := prepare(item, s.now()); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("inventory: marshal item: %w", err)
	}
	if err := s.client.HSet(ctx, s.ownerKey(item.OwnerID), item.ID, data).Err(); err != nil {
		return fmt.Errorf("inventory: add: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, owner, id string) (Item, error) {
	raw, err := s.client.HGet(ctx, s.ownerKey(owner), id).Result()
	if errors.Is(err, redis.Nil) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("inventory: get %q: %w", id, err)
	}
	var it Item
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return Item{}, fmt.Errorf("inventory: decode %q: %w", id, err)
	}
	return it, nil
}

func (s *RedisStore) List(ctx context.Context, owner string, opts ListOptions) ([]Item, error) {
	all, err := s.client.HGetAll(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	items := make([]Item, 0, len(all))
	for id, raw := range all {
		var it Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, fmt.Errorf("inventory: decode %q: %w", id, err)
		}
		if opts.match(it) {
			items = append(items, it)
		}
	}
	sortItems(items)
	return items, nil
}

func (s *RedisStore) Remove(ctx context.Context, owner, id string) error {
	n, err := s.client.HDel(ctx, s.ownerKey(owner), id).Result()
	if err != nil {
		return fmt.Errorf("inventory: remove %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("inventory: ping redis: %w", err)
	}
	return nil
}
