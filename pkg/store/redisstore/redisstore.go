// Package redisstore keeps resources in Redis. Each collection is a hash of
// encoded bodies keyed by id plus a sorted set recording insertion order.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

const DefaultPrefix = "socketapi:"

type Store struct {
	rdb    redis.UniversalClient
	codecs *encoder.Registry
	prefix string
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func New(rdb redis.UniversalClient, codecs *encoder.Registry, opts ...Option) *Store {
	s := &Store{rdb: rdb, codecs: codecs, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr string, codecs *encoder.Registry, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, codecs, opts...), nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) itemsKey(collection string) string { return s.prefix + collection + ":items" }
func (s *Store) orderKey(collection string) string { return s.prefix + collection + ":order" }
func (s *Store) seqKey(collection string) string   { return s.prefix + collection + ":seq" }

func (s *Store) Get(ctx context.Context, key store.Key) (any, error) {
	body, err := s.rdb.HGet(ctx, s.itemsKey(key.Collection), key.ID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return s.codecs.Decode(key.Collection, body)
}

func (s *Store) List(ctx context.Context, collection string) ([]any, error) {
	ids, err := s.rdb.ZRange(ctx, s.orderKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]any, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	bodies, err := s.rdb.HMGet(ctx, s.itemsKey(collection), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	for _, raw := range bodies {
		body, ok := raw.(string)
		if !ok {
			// removed between ZRANGE and HMGET
			continue
		}
		v, err := s.codecs.Decode(collection, []byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, key store.Key, resource any) error {
	body, err := s.codecs.Encode(key.Collection, resource)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	seq, err := s.rdb.Incr(ctx, s.seqKey(key.Collection)).Result()
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.itemsKey(key.Collection), key.ID, body)
		// NX keeps the position of an existing resource
		pipe.ZAddNX(ctx, s.orderKey(key.Collection), redis.Z{Score: float64(seq), Member: key.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.itemsKey(key.Collection), key.ID)
		pipe.ZRem(ctx, s.orderKey(key.Collection), key.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
