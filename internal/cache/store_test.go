package cache

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(body string) Entry {
	return Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

// runStoreSuite checks the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("miss on unknown generation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope", "GET http://x/")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "dyn-v1", "GET http://x/api/a?q=1", entry(`{"a":1}`)))
		got, err := s.Get(ctx, "dyn-v1", "GET http://x/api/a?q=1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, got.Status)
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
		assert.Equal(t, `{"a":1}`, string(got.Body))

		_, err = s.Get(ctx, "dyn-v1", "GET http://x/api/a?q=2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStore(t)
		fp := "GET http://x/api/crowd"
		require.NoError(t, s.Put(ctx, "dyn-v1", fp, entry("first")))
		got, err := s.Get(ctx, "dyn-v1", fp)
		require.NoError(t, err)
		assert.Equal(t, "first", string(got.Body))

		require.NoError(t, s.Put(ctx, "dyn-v1", fp, entry("second")))
		got, err = s.Get(ctx, "dyn-v1", fp)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got.Body))
	})

	t.Run("generations are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "static-v1", "GET http://x/", entry("shell")))
		_, err := s.Get(ctx, "dyn-v1", "GET http://x/")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("open list and delete", func(t *testing.T) {
		s := newStore(t)
		for _, g := range []string{"s1", "d1", "s2", "d2"} {
			require.NoError(t, s.Open(ctx, g))
		}
		require.NoError(t, s.Open(ctx, "s1")) // idempotent
		names, err := s.ListGenerations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2", "s1", "s2"}, names)

		require.NoError(t, s.Put(ctx, "s1", "GET http://x/", entry("old")))
		require.NoError(t, s.DeleteGeneration(ctx, "s1"))
		require.NoError(t, s.DeleteGeneration(ctx, "s1"))
		require.NoError(t, s.DeleteGeneration(ctx, "never-existed"))

		_, err = s.Get(ctx, "s1", "GET http://x/")
		assert.ErrorIs(t, err, ErrNotFound)
		names, err = s.ListGenerations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2", "s2"}, names)
	})

	t.Run("empty generation name rejected", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Put(ctx, "", "GET http://x/", entry("x")), ErrInvalidGeneration)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Put(ctx, "dyn-v1", "GET http://x/api/same", entry("race")))
			}()
		}
		wg.Wait()
		got, err := s.Get(ctx, "dyn-v1", "GET http://x/api/same")
		require.NoError(t, err)
		assert.Equal(t, "race", string(got.Body))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestBoltStore(t *testing.T) {
	for _, name := range []string{"cbor", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			runStoreSuite(t, func(t *testing.T) Store {
				codec, err := CodecByName(name)
				require.NoError(t, err)
				s, err := Open(filepath.Join(t.TempDir(), "cache.bbolt"), Options{Codec: codec})
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			})
		})
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.bbolt")

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "static-v1", "GET http://x/index.html", entry("<html>")))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "static-v1", "GET http://x/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>", string(got.Body))
}

func TestDaemonClient(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		// Unix socket paths are length-limited, so avoid the long t.TempDir().
		dir, err := os.MkdirTemp("", "swc")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(dir) })
		sock := filepath.Join(dir, "c.sock")

		l, err := net.Listen("unix", sock)
		require.NoError(t, err)
		backing := NewMemoryStore()
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = Serve(l, backing, nil)
		}()
		t.Cleanup(func() {
			_ = l.Close()
			<-done
		})

		c := NewClient(sock)
		require.NoError(t, c.Ping(context.Background()))
		return c
	})
}

func TestDaemonClientUnreachable(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Get(context.Background(), "dyn-v1", "GET http://x/")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SWCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SWCACHE_TEST_REDIS_ADDR not set")
	}
	runStoreSuite(t, func(t *testing.T) Store {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		s, err := NewRedisStore(RedisOptions{
			Client:      rdb,
			Namespace:   "swcache-test-" + t.Name(),
			CloseClient: true,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx := context.Background()
			names, _ := s.ListGenerations(ctx)
			for _, n := range names {
				_ = s.DeleteGeneration(ctx, n)
			}
			_ = s.Close()
		})
		return s
	})
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(RedisOptions{})
	assert.ErrorIs(t, err, ErrNilClient)
}
