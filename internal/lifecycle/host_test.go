package lifecycle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/swcache/internal/cache"
	"github.com/leonardcser/swcache/internal/generation"
)

func TestHostWithoutControllerUsesTransport(t *testing.T) {
	h := NewHost(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTeapot, Body: io.NopCloser(strings.NewReader("")), Request: r}, nil
	}), nil)
	resp, err := h.RoundTrip(httptest.NewRequest(http.MethodGet, shell+"/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Nil(t, h.Current())
}

func TestHostUpgradeHandsOff(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	shared := func(c *Config) { c.Store = store }

	v1 := newFixture(t, "static-v1", "dynamic-v1", shared)
	h := NewHost(nil, nil)
	require.NoError(t, h.Upgrade(ctx, v1.ctrl))
	assert.Same(t, v1.ctrl, h.Current())

	// v1 populates its dynamic generation
	resp, err := h.RoundTrip(httptest.NewRequest(http.MethodGet, "http://localhost:3000/api/transit", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	flush(t, v1.ctrl)

	v2 := newFixture(t, "static-v2", "dynamic-v2", shared)
	require.NoError(t, h.Upgrade(ctx, v2.ctrl))
	assert.Same(t, v2.ctrl, h.Current())
	assert.Equal(t, Redundant, v1.ctrl.State())
	assert.Equal(t, Active, v2.ctrl.State())

	names, err := store.ListGenerations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v2"}, names)

	resp, err = h.RoundTrip(httptest.NewRequest(http.MethodGet, shell+"/manifest.json", nil))
	require.NoError(t, err)
	assert.Equal(t, "cached:/manifest.json", body(t, resp))
}

func TestHostFailedUpgradeKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	shared := func(c *Config) { c.Store = store }

	v1 := newFixture(t, "static-v1", "dynamic-v1", shared)
	h := NewHost(nil, nil)
	require.NoError(t, h.Upgrade(ctx, v1.ctrl))

	v2 := newFixture(t, "static-v2", "dynamic-v2", shared)
	v2.loader.failOn = "/"
	require.Error(t, h.Upgrade(ctx, v2.ctrl))

	assert.Same(t, v1.ctrl, h.Current())
	assert.Equal(t, Active, v1.ctrl.State())
	names, err := store.ListGenerations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v1"}, names)

	reg := v1.ctrl.Registry()
	assert.Equal(t, "static-v1", reg.Name(generation.Static))
}

func TestHostStatusAndPush(t *testing.T) {
	ctx := context.Background()
	h := NewHost(nil, nil)

	st, err := h.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "uninstalled", st.State)
	assert.Empty(t, st.Generations)
	_, err = h.Push(ctx, nil)
	assert.ErrorIs(t, err, ErrNoController)

	f := newFixture(t, "static-v1", "dynamic-v1", nil)
	require.NoError(t, h.Upgrade(ctx, f.ctrl))
	resp, err := h.RoundTrip(httptest.NewRequest(http.MethodGet, shell+"/", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()

	st, err = h.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", st.State)
	assert.Equal(t, "static-v1", st.Version)
	assert.Equal(t, []string{"static-v1", "dynamic-v1"}, st.Current)
	assert.Equal(t, []string{"static-v1"}, st.Generations)
	assert.Equal(t, uint64(1), st.Stats.Hits)

	n, err := h.Push(ctx, []byte("Crowd level rising"))
	require.NoError(t, err)
	assert.Equal(t, "Crowd level rising", n.Body)
	require.NoError(t, h.Close(ctx))
}
