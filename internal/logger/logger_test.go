package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "swcache.log")
	require.NoError(t, Init(path, "debug"))
	t.Cleanup(func() {
		_ = Close()
		std, sugar, isInitialized = nil, nil, false
	})

	Infof("hello %s", "world")
	Named("store").Info("structured")
	require.NoError(t, L().Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello world"`)
	assert.Contains(t, string(b), `"logger":"store"`)
}

func TestLBeforeInitIsNop(t *testing.T) {
	assert.NotNil(t, L())
	assert.NotPanics(t, func() { L().Info("dropped") })
}
