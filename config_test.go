package certify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("APPWRITE_API_KEY", "secret")
	t.Setenv("REDIS_ADDR", "redis:6379")

	path := filepath.Join(t.TempDir(), "certify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /var/lib/certify.db
fonts:
  roots: [/opt/fonts]
rasterizers:
  order: [inkscape, playwright]
  timeout: 5s
appwrite:
  endpoint: https://cloud.appwrite.io/v1
  projectId: p
  bucketId: b
cache:
  type: redis
`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/certify.db", config.Database)
	assert.Equal(t, []string{"/opt/fonts"}, config.Fonts.Roots)
	assert.Equal(t, "NotoSansEthiopic", config.Fonts.Family)
	assert.Equal(t, []string{"inkscape", "playwright"}, config.Rasterizers.Order)
	assert.Equal(t, 5*time.Second, config.Rasterizers.Timeout)
	assert.Equal(t, "secret", config.Appwrite.APIKey)
	assert.NoError(t, config.Appwrite.Validate())
	assert.Equal(t, "redis:6379", config.Cache.Addr)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.NotContains(t, config.String(), "secret")
}

func TestLoadConfigUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fontz: {}\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestFlagsApply(t *testing.T) {
	config := DefaultConfig()
	AllFlags{Database: "x.db", FontRoots: []string{"/f"}, Rasterizers: []string{"none"}, CacheType: "none", Concurrency: 8}.Apply(&config)
	assert.Equal(t, "x.db", config.Database)
	assert.Equal(t, []string{"/f"}, config.Fonts.Roots)
	assert.Equal(t, []string{"none"}, config.Rasterizers.Order)
	assert.Equal(t, "none", config.Cache.Type)
	assert.Equal(t, 8, config.Concurrency)
}
