package cache

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each generation in a hash (fingerprint -> encoded entry)
// and tracks generation names in a set, so listing does not need SCAN.
type RedisStore struct {
	rdb         redis.UniversalClient
	ns          string
	codec       Codec
	closeClient bool
}

var _ Store = (*RedisStore)(nil)

type RedisOptions struct {
	Client redis.UniversalClient
	// Namespace prefixes every key; defaults to "swcache".
	Namespace string
	Codec     Codec
	// CloseClient should be true only if the store exclusively owns the client.
	CloseClient bool
}

var ErrNilClient = errors.New("cache: nil redis client")

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Client == nil {
		return nil, ErrNilClient
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "swcache"
	}
	codec := opts.Codec
	if codec == nil {
		c, err := NewCBOR()
		if err != nil {
			return nil, err
		}
		codec = c
	}
	return &RedisStore{rdb: opts.Client, ns: ns, codec: codec, closeClient: opts.CloseClient}, nil
}

func (s *RedisStore) setKey() string          { return s.ns + ":generations" }
func (s *RedisStore) genKey(gen string) string { return s.ns + ":gen:" + gen }

func (s *RedisStore) Open(ctx context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	return s.rdb.SAdd(ctx, s.setKey(), generation).Err()
}

func (s *RedisStore) Get(ctx context.Context, generation, fingerprint string) (Entry, error) {
	if err := checkGeneration(generation); err != nil {
		return Entry{}, err
	}
	b, err := s.rdb.HGet(ctx, s.genKey(generation), fingerprint).Bytes()
	if err == redis.Nil {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return s.codec.Decode(b)
}

// Put registers the generation and writes the entry in one round-trip.
func (s *RedisStore) Put(ctx context.Context, generation, fingerprint string, entry Entry) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	buf, err := s.codec.Encode(entry)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.setKey(), generation)
		p.HSet(ctx, s.genKey(generation), fingerprint, buf)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteGeneration(ctx context.Context, generation string) error {
	if err := checkGeneration(generation); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.genKey(generation))
		p.SRem(ctx, s.setKey(), generation)
		return nil
	})
	return err
}

func (s *RedisStore) ListGenerations(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the client only when this store owns it.
func (s *RedisStore) Close() error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}
