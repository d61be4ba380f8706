package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
)

func newVault(t *testing.T, secrets map[string]string) (*Vault, *scratch.Dir, *bytes.Buffer) {
	t.Helper()
	dir, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
	return NewVault(dir, secrets, log), dir, &buf
}

func TestOpenWritesPrivateFile(t *testing.T) {
	v, dir, _ := newVault(t, map[string]string{"Instagram": "sessionid=abc"})

	scope, err := v.Open(media.ProviderInstagram)
	require.NoError(t, err)
	require.NotNil(t, scope)
	defer scope.Release()

	assert.Equal(t, dir.Root(), filepath.Dir(scope.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(scope.Path), "instagram_cookies_"))
	assert.True(t, strings.HasSuffix(scope.Path, ".txt"))

	data, err := os.ReadFile(scope.Path)
	require.NoError(t, err)
	assert.Equal(t, "sessionid=abc", string(data))

	st, err := os.Stat(scope.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestOpenWithoutSecret(t *testing.T) {
	v, _, _ := newVault(t, map[string]string{"pinterest": "  "})

	scope, err := v.Open(media.ProviderPinterest)
	require.NoError(t, err)
	assert.Nil(t, scope)
	assert.Empty(t, scope.CookiePath())

	// nil scope release is a no-op
	scope.Release()
	assert.False(t, v.Has(media.ProviderPinterest))
}

func TestReleaseIsIdempotent(t *testing.T) {
	v, dir, _ := newVault(t, map[string]string{"tiktok": "c"})

	scope, err := v.Open(media.ProviderTikTok)
	require.NoError(t, err)

	scope.Release()
	scope.Release()

	_, err = os.Stat(scope.Path)
	assert.True(t, os.IsNotExist(err))
	names, err := dir.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConcurrentScopesNeverShareFiles(t *testing.T) {
	v, dir, _ := newVault(t, map[string]string{"instagram": "c"})

	const n = 20
	paths := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope, err := v.Open(media.ProviderInstagram)
			if !assert.NoError(t, err) {
				return
			}
			paths <- scope.Path
			scope.Release()
		}()
	}
	wg.Wait()
	close(paths)

	seen := map[string]bool{}
	for p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
	assert.Len(t, seen, n)

	names, err := dir.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSecretNeverLogged(t *testing.T) {
	v, _, buf := newVault(t, map[string]string{"instagram": "top-secret-cookie"})

	scope, err := v.Open(media.ProviderInstagram)
	require.NoError(t, err)
	assert.NotContains(t, scope.String(), "top-secret-cookie")
	scope.Release()

	assert.NotContains(t, buf.String(), "top-secret-cookie")
	assert.Contains(t, buf.String(), "credential scope released")
}

func TestProviders(t *testing.T) {
	v, _, _ := newVault(t, map[string]string{"youtube": "a", "instagram": "b", "facebook": ""})
	assert.Equal(t, []media.Provider{media.ProviderInstagram, media.ProviderYouTube}, v.Providers())
}
