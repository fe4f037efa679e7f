// Package strategy resolves requests against the network and a cache
// generation using network-first or cache-first ordering.
package strategy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/cache"
)

// Mode selects how a request is resolved.
type Mode int

const (
	// Passthrough goes straight to the network with no caching.
	Passthrough Mode = iota
	NetworkFirst
	CacheFirst
)

func (m Mode) String() string {
	switch m {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	default:
		return "passthrough"
	}
}

// FallbackPolicy reports whether a received HTTP status should be treated as
// a failure by network-first, triggering a cache lookup. Transport errors
// always trigger one.
type FallbackPolicy func(status int) bool

// TransportOnly never treats a received response as a failure.
func TransportOnly(int) bool { return false }

// ServerErrors treats 5xx responses as failures.
func ServerErrors(status int) bool { return status >= 500 }

type Options struct {
	Store cache.Store
	// Transport performs the single network attempt; nil means http.DefaultTransport.
	Transport http.RoundTripper
	// Fallback defaults to TransportOnly.
	Fallback FallbackPolicy
	Logger   *zap.Logger
}

var ErrNoStore = errors.New("strategy: store is required")

// Stats are cumulative counters since the executor was created.
type Stats struct {
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	NetworkFailures uint64 `json:"network_failures"`
	Fallbacks       uint64 `json:"fallbacks"`
	Writes          uint64 `json:"writes"`
	WriteErrors     uint64 `json:"write_errors"`
}

// Executor runs the strategies. Write-through writes happen on goroutines the
// executor tracks; Flush joins them.
type Executor struct {
	store     cache.Store
	transport http.RoundTripper
	fallback  FallbackPolicy
	log       *zap.Logger

	mu      sync.Mutex      // guards pending
	pending *sync.WaitGroup // writes registered since the last Flush began

	hits, misses, netFailures, fallbacks, written, writeErrs atomic.Uint64
}

func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	e := &Executor{
		store:     opts.Store,
		transport: opts.Transport,
		fallback:  opts.Fallback,
		log:       opts.Logger,
		pending:   new(sync.WaitGroup),
	}
	if e.transport == nil {
		e.transport = http.DefaultTransport
	}
	if e.fallback == nil {
		e.fallback = TransportOnly
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e, nil
}

// Resolve dispatches req to the strategy selected by mode.
func (e *Executor) Resolve(mode Mode, req *http.Request, generation string) (*http.Response, error) {
	switch mode {
	case NetworkFirst:
		return e.NetworkFirst(req, generation)
	case CacheFirst:
		return e.CacheFirst(req, generation)
	default:
		return e.transport.RoundTrip(req)
	}
}

// NetworkFirst tries the network once. A usable response is written through
// to generation and returned. On failure the cached entry for the same
// fingerprint is returned if there is one; otherwise the transport error is
// returned unchanged. When the failure was a status rejected by the fallback
// policy and the cache misses, the network response itself is returned.
func (e *Executor) NetworkFirst(req *http.Request, generation string) (*http.Response, error) {
	fp := cache.Fingerprint(req)
	resp, body, err := e.fetch(req)
	if err == nil && !e.fallback(resp.StatusCode) {
		e.writeThrough(req, generation, fp, resp, body)
		return resp, nil
	}
	if err != nil {
		e.netFailures.Add(1)
		e.log.Debug("network failed", zap.String("fingerprint", fp), zap.Error(err))
	}

	if cached, ok := e.lookup(req.Context(), generation, fp); ok {
		e.fallbacks.Add(1)
		if resp != nil {
			_ = resp.Body.Close()
		}
		e.log.Info("serving cached response after network failure", zap.String("fingerprint", fp), zap.String("generation", generation))
		return cached.Response(req), nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CacheFirst serves a hit from generation without touching the network. On a
// miss it fetches once, writes a usable response through and returns it.
func (e *Executor) CacheFirst(req *http.Request, generation string) (*http.Response, error) {
	fp := cache.Fingerprint(req)
	if cached, ok := e.lookup(req.Context(), generation, fp); ok {
		return cached.Response(req), nil
	}
	resp, body, err := e.fetch(req)
	if err != nil {
		e.netFailures.Add(1)
		e.log.Warn("fetch failed on cache miss", zap.String("fingerprint", fp), zap.Error(err))
		return nil, err
	}
	e.writeThrough(req, generation, fp, resp, body)
	return resp, nil
}

// Flush waits for the write-through writes registered before it was called,
// or for ctx to end. Requests keep registering writes while it waits.
func (e *Executor) Flush(ctx context.Context) error {
	e.mu.Lock()
	prev := e.pending
	// The next group is held open until prev drains, so a later Flush also
	// covers writes an earlier, abandoned Flush was waiting on.
	next := new(sync.WaitGroup)
	next.Add(1)
	e.pending = next
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		prev.Wait()
		next.Done()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) Stats() Stats {
	return Stats{
		Hits:            e.hits.Load(),
		Misses:          e.misses.Load(),
		NetworkFailures: e.netFailures.Load(),
		Fallbacks:       e.fallbacks.Load(),
		Writes:          e.written.Load(),
		WriteErrors:     e.writeErrs.Load(),
	}
}

// fetch performs the network attempt and drains the body so the response
// can be both stored and returned. A failed body read is a transport failure.
func (e *Executor) fetch(req *http.Request) (*http.Response, []byte, error) {
	// Left to itself the transport negotiates gzip and decodes the body, so
	// the stored copy suits clients that did not ask for an encoding.
	if req.Header.Get("Accept-Encoding") != "" {
		req = req.Clone(req.Context())
		req.Header.Del("Accept-Encoding")
	}
	resp, err := e.transport.RoundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, body, nil
}

// lookup treats storage errors as misses.
func (e *Executor) lookup(ctx context.Context, generation, fp string) (cache.Entry, bool) {
	entry, err := e.store.Get(context.WithoutCancel(ctx), generation, fp)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.log.Warn("cache read failed", zap.String("generation", generation), zap.String("fingerprint", fp), zap.Error(err))
		}
		e.misses.Add(1)
		return cache.Entry{}, false
	}
	e.hits.Add(1)
	return entry, true
}

// writeThrough stores complete 2xx responses on a tracked goroutine. The
// fingerprint ignores Range, so ranged requests and partial content are never
// stored. The snapshot owns its own copy of the body and headers.
func (e *Executor) writeThrough(req *http.Request, generation, fp string, resp *http.Response, body []byte) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.StatusCode == http.StatusPartialContent {
		return
	}
	if req.Header.Get("Range") != "" {
		return
	}
	entry := cache.Snapshot(resp, body)
	ctx := context.WithoutCancel(req.Context())

	e.mu.Lock()
	wg := e.pending
	wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer wg.Done()
		if err := e.store.Put(ctx, generation, fp, entry); err != nil {
			e.writeErrs.Add(1)
			e.log.Warn("cache write failed", zap.String("generation", generation), zap.String("fingerprint", fp), zap.Error(err))
			return
		}
		e.written.Add(1)
	}()
}
