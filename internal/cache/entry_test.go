package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "http://localhost:3000/api/crowd?area=1#top", nil)
	b := httptest.NewRequest(http.MethodGet, "http://localhost:3000/api/crowd?area=2", nil)
	c := httptest.NewRequest(http.MethodHead, "http://localhost:3000/api/crowd?area=1", nil)

	assert.Equal(t, "GET http://localhost:3000/api/crowd?area=1", Fingerprint(a))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestEntryResponseIsIndependent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://x/index.html", nil)
	e := Entry{Status: http.StatusOK, Header: http.Header{"X-A": {"1"}}, Body: []byte("shell")}

	r1 := e.Response(req)
	r2 := e.Response(req)
	b1, err := io.ReadAll(r1.Body)
	require.NoError(t, err)
	b2, err := io.ReadAll(r2.Body)
	require.NoError(t, err)

	assert.Equal(t, "shell", string(b1))
	assert.Equal(t, "shell", string(b2))
	assert.Equal(t, "200 OK", r1.Status)
	assert.Equal(t, int64(5), r1.ContentLength)

	r1.Header.Set("X-A", "mutated")
	assert.Equal(t, "1", e.Header.Get("X-A"))
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusAccepted, Header: http.Header{"X-B": {"v"}}}
	body := []byte("payload")
	e := Snapshot(resp, body)
	body[0] = 'P'
	resp.Header.Set("X-B", "changed")

	assert.Equal(t, "payload", string(e.Body))
	assert.Equal(t, "v", e.Header.Get("X-B"))
	assert.False(t, e.StoredAt.IsZero())
}

func TestCodecs(t *testing.T) {
	for _, name := range []string{"cbor", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			require.NoError(t, err)
			in := entry(`{"ok":true}`)
			b, err := codec.Encode(in)
			require.NoError(t, err)
			out, err := codec.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, in.Status, out.Status)
			assert.Equal(t, in.Header, out.Header)
			assert.Equal(t, in.Body, out.Body)
		})
	}
	_, err := CodecByName("gob")
	assert.Error(t, err)
}
